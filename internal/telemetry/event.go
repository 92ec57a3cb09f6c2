// Package telemetry defines the mission progress event and the publishers
// that fan it out to observers.
package telemetry

import (
	"time"

	"fleetsim/internal/geo"
)

// EventMissionProgress is the event name broadcast on every simulation tick.
const EventMissionProgress = "missionProgress"

// Event is one mission progress update as observed by subscribers.
type Event struct {
	MissionID       string    `json:"missionId"`
	DroneID         string    `json:"droneId"`
	Status          string    `json:"status"`
	Progress        int       `json:"progress"`
	CurrentWaypoint geo.Point `json:"currentWaypoint"`
	Battery         float64   `json:"battery"`
	Speed           float64   `json:"speed"`
	Timestamp       time.Time `json:"ts"`
}

// Publisher broadcasts mission progress events. Broadcast is fire-and-forget:
// delivery is best-effort and implementations must not block the caller for
// long. Errors are reported for logging only.
type Publisher interface {
	Broadcast(event string, e Event) error
}
