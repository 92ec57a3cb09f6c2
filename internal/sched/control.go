package sched

import (
	"context"
	"fmt"

	"fleetsim/internal/logging"
	"fleetsim/internal/metrics"
	"fleetsim/internal/mission"
	"fleetsim/internal/store"
)

// Manager is the mission state machine: it guards which control operations a
// caller may apply given the mission's current status, applies the drone
// side effects, and delegates the timer work to the Scheduler.
type Manager struct {
	missions store.MissionStore
	drones   store.DroneStore
	sched    *Scheduler
	col      *metrics.Collector
}

// NewManager creates a Manager. col may be nil.
func NewManager(missions store.MissionStore, drones store.DroneStore, s *Scheduler, col *metrics.Collector) *Manager {
	if col == nil {
		col = metrics.NewNopCollector()
	}
	return &Manager{missions: missions, drones: drones, sched: s, col: col}
}

// Start begins simulating a planned mission from the top of its flight path.
func (mgr *Manager) Start(ctx context.Context, missionID string) (err error) {
	defer func() { mgr.col.RecordControl(string(mission.OpStart), err) }()

	m, err := mgr.missions.GetMission(ctx, missionID)
	if err != nil {
		return err
	}
	if err = mission.CheckTransition(mission.OpStart, m.Status); err != nil {
		return err
	}

	// A fresh start always begins at the path origin.
	m.Status = mission.StatusInProgress
	m.Progress = 0
	m.Cursor = mission.Cursor{}
	if err = mgr.missions.SaveMission(ctx, m); err != nil {
		return fmt.Errorf("start mission: %w", err)
	}
	mgr.assignDrone(ctx, m.DroneID)
	return mgr.sched.Start(ctx, missionID)
}

// Pause suspends an in-progress mission, keeping its cursor.
func (mgr *Manager) Pause(ctx context.Context, missionID string) (err error) {
	defer func() { mgr.col.RecordControl(string(mission.OpPause), err) }()

	m, err := mgr.missions.GetMission(ctx, missionID)
	if err != nil {
		return err
	}
	if err = mission.CheckTransition(mission.OpPause, m.Status); err != nil {
		return err
	}
	return mgr.sched.Pause(ctx, missionID)
}

// Resume continues a paused mission from its persisted cursor.
func (mgr *Manager) Resume(ctx context.Context, missionID string) (err error) {
	defer func() { mgr.col.RecordControl(string(mission.OpResume), err) }()

	m, err := mgr.missions.GetMission(ctx, missionID)
	if err != nil {
		return err
	}
	if err = mission.CheckTransition(mission.OpResume, m.Status); err != nil {
		return err
	}
	mgr.assignDrone(ctx, m.DroneID)
	return mgr.sched.Resume(ctx, missionID)
}

// Abort terminates any non-terminal mission, resetting its simulation state
// and releasing its drone.
func (mgr *Manager) Abort(ctx context.Context, missionID string) (err error) {
	defer func() { mgr.col.RecordControl(string(mission.OpAbort), err) }()

	m, err := mgr.missions.GetMission(ctx, missionID)
	if err != nil {
		return err
	}
	if err = mission.CheckTransition(mission.OpAbort, m.Status); err != nil {
		return err
	}
	return mgr.sched.Abort(ctx, missionID)
}

// Recover reinstalls timers for missions that were in progress when the
// process last stopped. The persisted cursor makes this idempotent.
func (mgr *Manager) Recover(ctx context.Context) error {
	active, err := mgr.missions.ListMissionsByStatus(ctx, mission.StatusInProgress)
	if err != nil {
		return fmt.Errorf("recover missions: %w", err)
	}
	log := logging.FromContext(ctx)
	for _, m := range active {
		if err := mgr.sched.Start(ctx, m.ID); err != nil {
			log.Error("recover mission failed", "mission_id", m.ID, "err", err)
			continue
		}
		log.Info("recovered in-progress mission", "mission_id", m.ID,
			"segment", m.Cursor.SegmentIndex, "progress", m.Progress)
	}
	return nil
}

func (mgr *Manager) assignDrone(ctx context.Context, droneID string) {
	inMission := mission.DroneInMission
	if err := mgr.drones.UpdateDroneFields(ctx, droneID, store.DroneUpdate{Status: &inMission}); err != nil {
		logging.FromContext(ctx).Error("assign drone failed", "drone_id", droneID, "err", err)
	}
}
