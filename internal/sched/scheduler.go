// Package sched owns the per-mission simulation timers. Each actively
// simulating mission has exactly one repeating timer; every fire re-loads the
// persisted state, advances the cursor one step, writes it back, and
// broadcasts the result.
package sched

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"fleetsim/internal/geo"
	"fleetsim/internal/logging"
	"fleetsim/internal/metrics"
	"fleetsim/internal/mission"
	"fleetsim/internal/store"
	"fleetsim/internal/telemetry"
)

// Config holds the simulation tuning knobs.
type Config struct {
	TickInterval        time.Duration // default 1s
	SpeedMPS            float64       // default 8 m/s
	BatteryDrainPerTick float64       // default 0.15 percentage points
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.SpeedMPS <= 0 {
		c.SpeedMPS = 8
	}
	if c.BatteryDrainPerTick <= 0 {
		c.BatteryDrainPerTick = 0.15
	}
	return c
}

// missionTimer is one registry entry: a cancelable timer goroutine.
type missionTimer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler drives mission simulations against the stores and broadcasts
// progress through the publisher.
type Scheduler struct {
	cfg      Config
	missions store.MissionStore
	drones   store.DroneStore
	pub      telemetry.Publisher
	col      *metrics.Collector
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*missionTimer
}

// New creates a Scheduler. col may be nil.
func New(cfg Config, missions store.MissionStore, drones store.DroneStore, pub telemetry.Publisher, col *metrics.Collector) *Scheduler {
	if col == nil {
		col = metrics.NewNopCollector()
	}
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		missions: missions,
		drones:   drones,
		pub:      pub,
		col:      col,
		now:      time.Now,
		timers:   make(map[string]*missionTimer),
	}
}

// Start installs the repeating timer for missionID, replacing any existing
// one. A flight path shorter than two waypoints is nothing to simulate and
// returns without installing a timer. An already-initialized cursor is kept,
// which is what makes Resume continue instead of restarting.
func (s *Scheduler) Start(ctx context.Context, missionID string) error {
	s.stopTimer(missionID)

	m, err := s.missions.GetMission(ctx, missionID)
	if err != nil {
		return fmt.Errorf("start mission: %w", err)
	}
	if !m.Path.Simulatable() {
		logging.FromContext(ctx).Warn("flight path too short to simulate",
			"mission_id", missionID, "waypoints", len(m.Path))
		return nil
	}

	m.Status = mission.StatusInProgress
	if err := s.missions.SaveMission(ctx, m); err != nil {
		return fmt.Errorf("start mission: %w", err)
	}

	// The timer must outlive the caller's request context.
	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	mt := &missionTimer{cancel: cancel, done: make(chan struct{})}

	// Install and take out any existing entry in one critical section. The
	// stopTimer above is not enough on its own: a concurrent Start can slip
	// its own entry in during the store round-trip, and overwriting it here
	// would leave its goroutine running with no handle to cancel it.
	s.mu.Lock()
	displaced := s.timers[missionID]
	s.timers[missionID] = mt
	s.col.SetActiveMissions(len(s.timers))
	s.mu.Unlock()
	if displaced != nil {
		displaced.cancel()
		<-displaced.done
	}

	go s.run(tctx, missionID, mt)
	return nil
}

// Pause cancels the timer and persists the paused status. The cursor is left
// untouched: everything needed to continue lives in the persisted record.
func (s *Scheduler) Pause(ctx context.Context, missionID string) error {
	s.stopTimer(missionID)

	m, err := s.missions.GetMission(ctx, missionID)
	if err != nil {
		return fmt.Errorf("pause mission: %w", err)
	}
	m.Status = mission.StatusPaused
	if err := s.missions.SaveMission(ctx, m); err != nil {
		return fmt.Errorf("pause mission: %w", err)
	}
	return nil
}

// Resume restarts the timer from the persisted cursor.
func (s *Scheduler) Resume(ctx context.Context, missionID string) error {
	return s.Start(ctx, missionID)
}

// Abort cancels the timer, resets cursor and progress, and releases the
// drone.
func (s *Scheduler) Abort(ctx context.Context, missionID string) error {
	s.stopTimer(missionID)

	m, err := s.missions.GetMission(ctx, missionID)
	if err != nil {
		return fmt.Errorf("abort mission: %w", err)
	}
	m.Status = mission.StatusAborted
	m.Progress = 0
	m.Cursor = mission.Cursor{}
	if err := s.missions.SaveMission(ctx, m); err != nil {
		return fmt.Errorf("abort mission: %w", err)
	}

	available := mission.DroneAvailable
	if err := s.drones.UpdateDroneFields(ctx, m.DroneID, store.DroneUpdate{Status: &available}); err != nil {
		logging.FromContext(ctx).Error("release drone after abort failed",
			"mission_id", missionID, "drone_id", m.DroneID, "err", err)
	}
	s.col.RecordAbort()
	return nil
}

// Stop cancels the timer for missionID without changing persisted state.
func (s *Scheduler) Stop(missionID string) {
	s.stopTimer(missionID)
}

// Close cancels all timers and waits for in-flight ticks to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	timers := make([]*missionTimer, 0, len(s.timers))
	for id, mt := range s.timers {
		timers = append(timers, mt)
		delete(s.timers, id)
	}
	s.col.SetActiveMissions(0)
	s.mu.Unlock()

	for _, mt := range timers {
		mt.cancel()
		<-mt.done
	}
}

// Running reports whether missionID currently has a timer installed.
func (s *Scheduler) Running(missionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[missionID]
	return ok
}

// stopTimer removes and cancels the registry entry for missionID, waiting for
// any in-flight tick so the caller's subsequent state write is authoritative.
func (s *Scheduler) stopTimer(missionID string) {
	s.mu.Lock()
	mt := s.timers[missionID]
	delete(s.timers, missionID)
	s.col.SetActiveMissions(len(s.timers))
	s.mu.Unlock()

	if mt != nil {
		mt.cancel()
		<-mt.done
	}
}

// removeSelf drops the registry entry from inside the timer goroutine. It
// must not wait on its own done channel, and it must not remove a
// replacement installed by a concurrent Start.
func (s *Scheduler) removeSelf(missionID string, mt *missionTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers[missionID] == mt {
		delete(s.timers, missionID)
		s.col.SetActiveMissions(len(s.timers))
	}
}

// run is the per-mission timer loop.
func (s *Scheduler) run(ctx context.Context, missionID string, mt *missionTimer) {
	defer close(mt.done)
	log := logging.FromContext(ctx)
	log.Info("mission timer started", "mission_id", missionID, "tick_interval", s.cfg.TickInterval)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if stop := s.step(ctx, missionID); stop {
				s.removeSelf(missionID, mt)
				log.Info("mission timer stopped", "mission_id", missionID)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// step executes one simulation tick. The returned flag tells the timer loop
// to terminate. State is re-loaded fresh every fire: a concurrent pause or
// abort may have changed the persisted record between fires.
func (s *Scheduler) step(ctx context.Context, missionID string) (stop bool) {
	log := logging.FromContext(ctx)

	m, err := s.missions.GetMission(ctx, missionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("mission vanished mid-simulation", "mission_id", missionID)
			return true
		}
		log.Error("load mission failed, retrying next tick", "mission_id", missionID, "err", err)
		return false
	}
	if m.Status != mission.StatusInProgress {
		// Inert until the next control operation cancels the timer.
		return false
	}
	path := m.Path
	if !path.Simulatable() {
		return false
	}

	d, err := s.drones.GetDrone(ctx, m.DroneID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("drone vanished mid-simulation", "mission_id", missionID, "drone_id", m.DroneID)
			return true
		}
		log.Error("load drone failed, retrying next tick", "mission_id", missionID, "err", err)
		return false
	}

	s.col.RecordTick()

	lastIdx := len(path) - 1
	seg := clampInt(m.Cursor.SegmentIndex, 0, lastIdx-1)
	from := path[seg].Point()
	to := path[seg+1].Point()

	segLen := math.Max(1, geo.Distance(from, to))
	segDuration := math.Max(0.001, segLen/math.Max(0.001, s.cfg.SpeedMPS))
	frac := m.Cursor.Fraction + s.cfg.TickInterval.Seconds()/segDuration

	// Completion is checked before the fraction rolls over into the next
	// segment; it is authoritative over the percent formula.
	if seg == lastIdx-1 && frac >= 1 {
		m.Status = mission.StatusCompleted
		m.Progress = 100
		m.Cursor = mission.Cursor{SegmentIndex: seg, Fraction: 1}

		if err := s.missions.SaveMission(ctx, m); err != nil {
			s.col.RecordPersistFailure()
			log.Error("persist completion failed, retrying next tick", "mission_id", missionID, "err", err)
			return false
		}
		available := mission.DroneAvailable
		battery := math.Max(0, d.Battery-s.cfg.BatteryDrainPerTick)
		if err := s.drones.UpdateDroneFields(ctx, m.DroneID, store.DroneUpdate{
			Status:   &available,
			Battery:  &battery,
			Location: &to,
		}); err != nil {
			s.col.RecordPersistFailure()
			log.Error("release drone after completion failed", "mission_id", missionID, "err", err)
		}
		s.broadcast(ctx, m, to, battery)
		s.col.RecordCompletion()
		log.Info("mission completed", "mission_id", missionID, "drone_id", m.DroneID)
		return true
	}

	if frac >= 1 {
		frac = 0
		seg++
	}
	m.Cursor = mission.Cursor{SegmentIndex: seg, Fraction: frac}

	i := min(seg, lastIdx-1)
	pos := geo.Interpolate(path[i].Point(), path[i+1].Point(), frac)
	m.Progress = min(99, i*100/lastIdx)

	// Drone writes are best-effort: a dropped battery/location update heals
	// itself on the next tick, which re-reads the stored truth.
	battery := math.Max(0, d.Battery-s.cfg.BatteryDrainPerTick)
	if err := s.drones.UpdateDroneFields(ctx, m.DroneID, store.DroneUpdate{
		Battery:  &battery,
		Location: &pos,
	}); err != nil {
		s.col.RecordPersistFailure()
		log.Error("drone update failed", "mission_id", missionID, "drone_id", m.DroneID, "err", err)
	}

	// The mission cursor is the resumability contract: if it cannot be
	// persisted, the tick ends here and the next one retries from the same
	// point.
	if err := s.missions.SaveMission(ctx, m); err != nil {
		s.col.RecordPersistFailure()
		log.Error("persist cursor failed, retrying next tick", "mission_id", missionID, "err", err)
		return false
	}

	s.broadcast(ctx, m, pos, battery)
	return false
}

func (s *Scheduler) broadcast(ctx context.Context, m *mission.Mission, pos geo.Point, battery float64) {
	e := telemetry.Event{
		MissionID:       m.ID,
		DroneID:         m.DroneID,
		Status:          string(m.Status),
		Progress:        m.Progress,
		CurrentWaypoint: pos,
		Battery:         battery,
		Speed:           s.cfg.SpeedMPS,
		Timestamp:       s.now().UTC(),
	}
	if err := s.pub.Broadcast(telemetry.EventMissionProgress, e); err != nil {
		logging.FromContext(ctx).Error("telemetry broadcast failed", "mission_id", m.ID, "err", err)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
