// Package mission holds the fleet domain model: missions, drones, flight
// paths, and the status transition rules between them.
package mission

import (
	"time"

	"fleetsim/internal/geo"
)

// Status is the lifecycle state of a mission.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in-progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusAborted    Status = "aborted"
)

// Terminal reports whether a mission in this status can no longer advance.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// DroneStatus is the lifecycle state of a drone.
type DroneStatus string

const (
	DroneAvailable   DroneStatus = "available"
	DroneInMission   DroneStatus = "in-mission"
	DroneCharging    DroneStatus = "charging"
	DroneMaintenance DroneStatus = "maintenance"
)

// Waypoint is one ordered point of a flight path. Seq is the position within
// the path and is immutable once the mission is created.
type Waypoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
	Alt float64 `json:"alt" yaml:"alt"`
	Seq int     `json:"seq" yaml:"seq"`
}

// Point returns the waypoint as a geo coordinate.
func (w Waypoint) Point() geo.Point {
	return geo.Point{Lat: w.Lat, Lng: w.Lng, Alt: w.Alt}
}

// FlightPath is the ordered waypoint sequence a mission traverses. Paths
// shorter than two waypoints have nothing to simulate.
type FlightPath []Waypoint

// Simulatable reports whether the path has at least one segment.
func (p FlightPath) Simulatable() bool {
	return len(p) >= 2
}

// Segments returns the number of waypoint-to-waypoint segments.
func (p FlightPath) Segments() int {
	if len(p) < 2 {
		return 0
	}
	return len(p) - 1
}

// Cursor is the resumable simulation position within a flight path: the
// current segment and the fraction of it already traversed. It is persisted
// on every tick so a paused or restarted mission continues where it left off.
type Cursor struct {
	SegmentIndex int     `json:"segment_index"`
	Fraction     float64 `json:"fraction"`
}

// Mission is a planned flight of one drone along a flight path.
type Mission struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	DroneID   string     `json:"drone_id"`
	Path      FlightPath `json:"flight_path"`
	Status    Status     `json:"status"`
	Progress  int        `json:"progress"`
	Cursor    Cursor     `json:"cursor"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Drone is a fleet vehicle. Battery is a percentage in [0,100].
type Drone struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Model    string      `json:"model"`
	Status   DroneStatus `json:"status"`
	Battery  float64     `json:"battery_level"`
	Location geo.Point   `json:"location"`
}
