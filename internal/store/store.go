// Package store persists missions and drones. The scheduler only depends on
// the interfaces here; SQLite and in-memory implementations are provided.
package store

import (
	"context"
	"errors"

	"fleetsim/internal/geo"
	"fleetsim/internal/mission"
)

// ErrNotFound is returned when a mission or drone does not exist.
var ErrNotFound = errors.New("not found")

// DroneUpdate is a partial update of mutable drone fields. Nil fields are
// left untouched.
type DroneUpdate struct {
	Status   *mission.DroneStatus
	Battery  *float64
	Location *geo.Point
}

// MissionStore loads and saves mission records, including the resumable
// simulation cursor.
type MissionStore interface {
	GetMission(ctx context.Context, id string) (*mission.Mission, error)
	// SaveMission upserts the full mission record.
	SaveMission(ctx context.Context, m *mission.Mission) error
	ListMissions(ctx context.Context) ([]*mission.Mission, error)
	ListMissionsByStatus(ctx context.Context, s mission.Status) ([]*mission.Mission, error)
}

// DroneStore loads drones and applies partial field updates.
type DroneStore interface {
	GetDrone(ctx context.Context, id string) (*mission.Drone, error)
	SaveDrone(ctx context.Context, d *mission.Drone) error
	UpdateDroneFields(ctx context.Context, id string, upd DroneUpdate) error
}
