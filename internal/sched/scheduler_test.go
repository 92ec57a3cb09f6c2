package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fleetsim/internal/mission"
	"fleetsim/internal/store"
	"fleetsim/internal/telemetry"
)

// capturePublisher records broadcast events for validation.
type capturePublisher struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (p *capturePublisher) Broadcast(event string, e telemetry.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) all() []telemetry.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]telemetry.Event(nil), p.events...)
}

// failingMissionStore injects SaveMission failures.
type failingMissionStore struct {
	store.MissionStore
	saveErr error
}

func (f *failingMissionStore) SaveMission(ctx context.Context, m *mission.Mission) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MissionStore.SaveMission(ctx, m)
}

// slowMissionStore delays writes the way a networked store would, widening
// the window between control operations.
type slowMissionStore struct {
	store.MissionStore
	delay time.Duration
}

func (s *slowMissionStore) SaveMission(ctx context.Context, m *mission.Mission) error {
	time.Sleep(s.delay)
	return s.MissionStore.SaveMission(ctx, m)
}

// failingDroneStore injects UpdateDroneFields failures.
type failingDroneStore struct {
	store.DroneStore
	updateErr error
}

func (f *failingDroneStore) UpdateDroneFields(ctx context.Context, id string, upd store.DroneUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.DroneStore.UpdateDroneFields(ctx, id, upd)
}

// shortPath is a single ~111m segment along the equator: at 8 m/s and 1s
// ticks a mission takes 14 ticks to finish.
func shortPath() mission.FlightPath {
	return mission.FlightPath{
		{Lat: 0, Lng: 0, Alt: 10, Seq: 0},
		{Lat: 0, Lng: 0.001, Alt: 10, Seq: 1},
	}
}

func seed(t *testing.T, ms *store.MemoryStore, m *mission.Mission, battery float64) {
	t.Helper()
	ctx := context.Background()
	if err := ms.SaveDrone(ctx, &mission.Drone{
		ID: m.DroneID, Name: "drone-" + m.DroneID, Status: mission.DroneInMission, Battery: battery,
	}); err != nil {
		t.Fatalf("seed drone: %v", err)
	}
	if err := ms.SaveMission(ctx, m); err != nil {
		t.Fatalf("seed mission: %v", err)
	}
}

func newTestScheduler(ms *store.MemoryStore, pub telemetry.Publisher) *Scheduler {
	return New(Config{TickInterval: time.Second, SpeedMPS: 8, BatteryDrainPerTick: 0.15}, ms, ms, pub, nil)
}

func TestStep_AdvancesCursorAndDrainsBattery(t *testing.T) {
	ms := store.NewMemoryStore()
	pub := &capturePublisher{}
	s := newTestScheduler(ms, pub)
	ctx := context.Background()

	m := &mission.Mission{ID: "m1", Name: "survey", DroneID: "d1", Path: shortPath(), Status: mission.StatusInProgress}
	seed(t, ms, m, 100)

	if stop := s.step(ctx, "m1"); stop {
		t.Fatal("first tick must not stop the timer")
	}

	got, _ := ms.GetMission(ctx, "m1")
	if got.Cursor.SegmentIndex != 0 {
		t.Errorf("segment index = %d, want 0", got.Cursor.SegmentIndex)
	}
	// ~111m at 8 m/s: each 1s tick advances the fraction by ~0.072.
	if got.Cursor.Fraction < 0.06 || got.Cursor.Fraction > 0.08 {
		t.Errorf("fraction = %f, want ~0.072", got.Cursor.Fraction)
	}

	d, _ := ms.GetDrone(ctx, "d1")
	if d.Battery != 99.85 {
		t.Errorf("battery = %f, want 99.85", d.Battery)
	}
	if d.Location.Lat == 0 && d.Location.Lng == 0 {
		t.Error("drone location not updated")
	}

	events := pub.all()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.MissionID != "m1" || e.DroneID != "d1" || e.Status != "in-progress" || e.Speed != 8 {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestStep_CompletesInFourteenTicks(t *testing.T) {
	ms := store.NewMemoryStore()
	pub := &capturePublisher{}
	s := newTestScheduler(ms, pub)
	ctx := context.Background()

	m := &mission.Mission{ID: "m1", DroneID: "d1", Path: shortPath(), Status: mission.StatusInProgress}
	seed(t, ms, m, 100)

	ticks := 0
	for ; ticks < 100; ticks++ {
		if s.step(ctx, "m1") {
			ticks++
			break
		}
	}
	if ticks != 14 {
		t.Errorf("completed after %d ticks, want 14", ticks)
	}

	got, _ := ms.GetMission(ctx, "m1")
	if got.Status != mission.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if got.Cursor.SegmentIndex != 0 || got.Cursor.Fraction != 1 {
		t.Errorf("cursor = %+v, want saturated at final segment", got.Cursor)
	}

	d, _ := ms.GetDrone(ctx, "d1")
	if d.Battery < 97.89 || d.Battery > 97.91 {
		t.Errorf("battery = %f, want 97.9", d.Battery)
	}
	if d.Status != mission.DroneAvailable {
		t.Errorf("drone status = %s, want available", d.Status)
	}

	events := pub.all()
	final := events[len(events)-1]
	if final.Status != "completed" || final.Progress != 100 {
		t.Errorf("final event = %+v", final)
	}
	// Final position is the last waypoint.
	if final.CurrentWaypoint.Lng != 0.001 {
		t.Errorf("final waypoint lng = %f, want 0.001", final.CurrentWaypoint.Lng)
	}
}

func TestStep_ProgressAndBatteryMonotonic(t *testing.T) {
	ms := store.NewMemoryStore()
	pub := &capturePublisher{}
	s := newTestScheduler(ms, pub)
	ctx := context.Background()

	path := mission.FlightPath{
		{Lat: 0, Lng: 0, Alt: 10, Seq: 0},
		{Lat: 0, Lng: 0.001, Alt: 10, Seq: 1},
		{Lat: 0, Lng: 0.002, Alt: 20, Seq: 2},
		{Lat: 0, Lng: 0.003, Alt: 10, Seq: 3},
	}
	m := &mission.Mission{ID: "m1", DroneID: "d1", Path: path, Status: mission.StatusInProgress}
	seed(t, ms, m, 100)

	lastProgress := 0
	lastBattery := 100.0
	for i := 0; i < 200; i++ {
		stop := s.step(ctx, "m1")
		got, _ := ms.GetMission(ctx, "m1")
		d, _ := ms.GetDrone(ctx, "d1")
		if got.Progress < lastProgress {
			t.Fatalf("progress decreased: %d -> %d", lastProgress, got.Progress)
		}
		if got.Status == mission.StatusInProgress && got.Progress > 99 {
			t.Fatalf("progress %d while still in progress", got.Progress)
		}
		if d.Battery > lastBattery {
			t.Fatalf("battery increased: %f -> %f", lastBattery, d.Battery)
		}
		lastProgress = got.Progress
		lastBattery = d.Battery
		if stop {
			if got.Status != mission.StatusCompleted {
				t.Fatalf("timer stopped with status %s", got.Status)
			}
			return
		}
	}
	t.Fatal("mission never completed")
}

func TestStep_InertWhenNotInProgress(t *testing.T) {
	ms := store.NewMemoryStore()
	pub := &capturePublisher{}
	s := newTestScheduler(ms, pub)
	ctx := context.Background()

	m := &mission.Mission{
		ID: "m1", DroneID: "d1", Path: shortPath(),
		Status: mission.StatusPaused,
		Cursor: mission.Cursor{SegmentIndex: 0, Fraction: 0.5},
	}
	seed(t, ms, m, 100)

	if stop := s.step(ctx, "m1"); stop {
		t.Error("inert tick must leave the timer running")
	}
	got, _ := ms.GetMission(ctx, "m1")
	if got.Cursor.Fraction != 0.5 {
		t.Errorf("cursor moved on inert tick: %+v", got.Cursor)
	}
	if len(pub.all()) != 0 {
		t.Error("inert tick must not broadcast")
	}
}

func TestStep_MissionVanishedStopsTimer(t *testing.T) {
	ms := store.NewMemoryStore()
	s := newTestScheduler(ms, &capturePublisher{})
	ctx := context.Background()

	m := &mission.Mission{ID: "m1", DroneID: "d1", Path: shortPath(), Status: mission.StatusInProgress}
	seed(t, ms, m, 100)
	ms.DeleteMission("m1")

	if stop := s.step(ctx, "m1"); !stop {
		t.Error("tick for a deleted mission must stop the timer")
	}
}

func TestStep_MissionSaveFailureDoesNotAdvanceCursor(t *testing.T) {
	ms := store.NewMemoryStore()
	pub := &capturePublisher{}
	failing := &failingMissionStore{MissionStore: ms, saveErr: errors.New("store down")}
	s := New(Config{}, failing, ms, pub, nil)
	ctx := context.Background()

	m := &mission.Mission{
		ID: "m1", DroneID: "d1", Path: shortPath(),
		Status: mission.StatusInProgress,
		Cursor: mission.Cursor{SegmentIndex: 0, Fraction: 0.5},
	}
	seed(t, ms, m, 100)

	if stop := s.step(ctx, "m1"); stop {
		t.Error("save failure must not stop the timer")
	}
	got, _ := ms.GetMission(ctx, "m1")
	if got.Cursor.Fraction != 0.5 {
		t.Errorf("cursor advanced despite save failure: %+v", got.Cursor)
	}
	if len(pub.all()) != 0 {
		t.Error("failed tick must not broadcast")
	}
}

func TestStep_DroneWriteFailureIsTolerated(t *testing.T) {
	ms := store.NewMemoryStore()
	pub := &capturePublisher{}
	failing := &failingDroneStore{DroneStore: ms, updateErr: errors.New("store down")}
	s := New(Config{}, ms, failing, pub, nil)
	ctx := context.Background()

	m := &mission.Mission{ID: "m1", DroneID: "d1", Path: shortPath(), Status: mission.StatusInProgress}
	seed(t, ms, m, 100)

	if stop := s.step(ctx, "m1"); stop {
		t.Error("drone write failure must not stop the timer")
	}
	got, _ := ms.GetMission(ctx, "m1")
	if got.Cursor.Fraction == 0 {
		t.Error("cursor must advance despite drone write failure")
	}
	if len(pub.all()) != 1 {
		t.Error("tick must still broadcast")
	}
}

func TestStep_BatteryClampsAtZeroAndMissionContinues(t *testing.T) {
	ms := store.NewMemoryStore()
	s := newTestScheduler(ms, &capturePublisher{})
	ctx := context.Background()

	m := &mission.Mission{ID: "m1", DroneID: "d1", Path: shortPath(), Status: mission.StatusInProgress}
	seed(t, ms, m, 0.2)

	for i := 0; i < 5; i++ {
		if s.step(ctx, "m1") {
			t.Fatal("mission completed too early")
		}
	}
	d, _ := ms.GetDrone(ctx, "d1")
	if d.Battery != 0 {
		t.Errorf("battery = %f, want clamped to 0", d.Battery)
	}
	got, _ := ms.GetMission(ctx, "m1")
	if got.Status != mission.StatusInProgress {
		t.Errorf("status = %s, depleted battery must not end the mission", got.Status)
	}
}

func TestStart_ShortPathIsNoOp(t *testing.T) {
	ms := store.NewMemoryStore()
	s := newTestScheduler(ms, &capturePublisher{})
	ctx := context.Background()

	m := &mission.Mission{
		ID: "m1", DroneID: "d1",
		Path:   mission.FlightPath{{Lat: 0, Lng: 0, Seq: 0}},
		Status: mission.StatusPlanned,
	}
	seed(t, ms, m, 100)

	if err := s.Start(ctx, "m1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Running("m1") {
		t.Error("timer installed for a path with fewer than 2 waypoints")
	}
	got, _ := ms.GetMission(ctx, "m1")
	if got.Status != mission.StatusPlanned {
		t.Errorf("status = %s, want planned", got.Status)
	}
}

func TestStart_KeepsExistingCursor(t *testing.T) {
	ms := store.NewMemoryStore()
	s := newTestScheduler(ms, &capturePublisher{})
	ctx := context.Background()

	m := &mission.Mission{
		ID: "m1", DroneID: "d1", Path: shortPath(),
		Status: mission.StatusPaused,
		Cursor: mission.Cursor{SegmentIndex: 0, Fraction: 0.42},
	}
	seed(t, ms, m, 100)

	if err := s.Start(ctx, "m1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	got, _ := ms.GetMission(ctx, "m1")
	if got.Status != mission.StatusInProgress {
		t.Errorf("status = %s, want in-progress", got.Status)
	}
	if got.Cursor.Fraction != 0.42 {
		t.Errorf("cursor reset on resume: %+v", got.Cursor)
	}
}

func TestPause_IsIdempotentAndKeepsCursor(t *testing.T) {
	ms := store.NewMemoryStore()
	s := newTestScheduler(ms, &capturePublisher{})
	ctx := context.Background()

	m := &mission.Mission{
		ID: "m1", DroneID: "d1", Path: shortPath(),
		Status: mission.StatusInProgress,
		Cursor: mission.Cursor{SegmentIndex: 0, Fraction: 0.3},
	}
	seed(t, ms, m, 100)

	for i := 0; i < 2; i++ {
		if err := s.Pause(ctx, "m1"); err != nil {
			t.Fatalf("Pause #%d: %v", i+1, err)
		}
	}
	got, _ := ms.GetMission(ctx, "m1")
	if got.Status != mission.StatusPaused {
		t.Errorf("status = %s, want paused", got.Status)
	}
	if got.Cursor.Fraction != 0.3 {
		t.Errorf("cursor changed by pause: %+v", got.Cursor)
	}
	if s.Running("m1") {
		t.Error("timer still registered after pause")
	}
}

func TestPauseResume_PreservesTrajectory(t *testing.T) {
	ms := store.NewMemoryStore()
	s := newTestScheduler(ms, &capturePublisher{})
	ctx := context.Background()

	m := &mission.Mission{ID: "m1", DroneID: "d1", Path: shortPath(), Status: mission.StatusInProgress}
	seed(t, ms, m, 100)

	for i := 0; i < 5; i++ {
		s.step(ctx, "m1")
	}
	beforePause, _ := ms.GetMission(ctx, "m1")

	if err := s.Pause(ctx, "m1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := s.Resume(ctx, "m1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	defer s.Close()

	afterResume, _ := ms.GetMission(ctx, "m1")
	if afterResume.Cursor != beforePause.Cursor {
		t.Errorf("cursor at resume %+v != cursor at pause %+v", afterResume.Cursor, beforePause.Cursor)
	}
}

func TestAbort_ResetsSimulationState(t *testing.T) {
	ms := store.NewMemoryStore()
	s := newTestScheduler(ms, &capturePublisher{})
	ctx := context.Background()

	m := &mission.Mission{
		ID: "m1", DroneID: "d1", Path: shortPath(),
		Status:   mission.StatusInProgress,
		Progress: 42,
		Cursor:   mission.Cursor{SegmentIndex: 0, Fraction: 0.9},
	}
	seed(t, ms, m, 100)

	if err := s.Abort(ctx, "m1"); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	got, _ := ms.GetMission(ctx, "m1")
	if got.Status != mission.StatusAborted {
		t.Errorf("status = %s, want aborted", got.Status)
	}
	if got.Progress != 0 {
		t.Errorf("progress = %d, want 0", got.Progress)
	}
	if (got.Cursor != mission.Cursor{}) {
		t.Errorf("cursor = %+v, want reset", got.Cursor)
	}
	d, _ := ms.GetDrone(ctx, "d1")
	if d.Status != mission.DroneAvailable {
		t.Errorf("drone status = %s, want available", d.Status)
	}
	if s.Running("m1") {
		t.Error("timer still registered after abort")
	}
}

func TestTimerLoop_RunsToCompletion(t *testing.T) {
	ms := store.NewMemoryStore()
	pub := &capturePublisher{}
	s := New(Config{TickInterval: 5 * time.Millisecond, SpeedMPS: 8, BatteryDrainPerTick: 0.15}, ms, ms, pub, nil)
	ctx := context.Background()

	// One very short segment: a handful of ticks at 5ms completes it fast.
	m := &mission.Mission{
		ID: "m1", DroneID: "d1",
		Path: mission.FlightPath{
			{Lat: 0, Lng: 0, Alt: 10, Seq: 0},
			{Lat: 0, Lng: 0.0000001, Alt: 10, Seq: 1},
		},
		Status: mission.StatusPlanned,
	}
	seed(t, ms, m, 100)

	if err := s.Start(ctx, "m1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	deadline := time.After(3 * time.Second)
	for {
		got, _ := ms.GetMission(ctx, "m1")
		if got != nil && got.Status == mission.StatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("mission did not complete in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
	// Registry entry is removed once the timer stops itself.
	for i := 0; i < 100 && s.Running("m1"); i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Running("m1") {
		t.Error("timer still registered after completion")
	}
}

// longPath is a ~1.1km segment: far too long to complete during a test.
func longPath() mission.FlightPath {
	return mission.FlightPath{
		{Lat: 0, Lng: 0, Alt: 10, Seq: 0},
		{Lat: 0, Lng: 0.01, Alt: 10, Seq: 1},
	}
}

func TestStart_ConcurrentSameMission(t *testing.T) {
	ms := store.NewMemoryStore()
	slow := &slowMissionStore{MissionStore: ms, delay: 10 * time.Millisecond}
	s := New(Config{TickInterval: 5 * time.Millisecond, SpeedMPS: 8, BatteryDrainPerTick: 0.15},
		slow, ms, &capturePublisher{}, nil)
	ctx := context.Background()

	m := &mission.Mission{ID: "m1", DroneID: "d1", Path: longPath(), Status: mission.StatusPlanned}
	seed(t, ms, m, 100)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Start(ctx, "m1"); err != nil {
				t.Errorf("Start: %v", err)
			}
		}()
	}
	wg.Wait()

	if !s.Running("m1") {
		t.Fatal("no timer installed after concurrent starts")
	}
	s.Close()
	if s.Running("m1") {
		t.Fatal("timer still registered after Close")
	}

	// Close drains every timer: with no leaked duplicate, nothing can move
	// the cursor anymore.
	got, _ := ms.GetMission(ctx, "m1")
	before := got.Cursor
	time.Sleep(60 * time.Millisecond)
	got, _ = ms.GetMission(ctx, "m1")
	if got.Cursor != before {
		t.Fatalf("cursor advanced after Close: %+v -> %+v", before, got.Cursor)
	}
}

func TestStartPause_ConcurrentNoTimerLeak(t *testing.T) {
	ms := store.NewMemoryStore()
	slow := &slowMissionStore{MissionStore: ms, delay: 5 * time.Millisecond}
	s := New(Config{TickInterval: 5 * time.Millisecond, SpeedMPS: 8, BatteryDrainPerTick: 0.15},
		slow, ms, &capturePublisher{}, nil)
	ctx := context.Background()

	m := &mission.Mission{ID: "m1", DroneID: "d1", Path: longPath(), Status: mission.StatusInProgress}
	seed(t, ms, m, 100)

	for i := 0; i < 10; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := s.Start(ctx, "m1"); err != nil {
				t.Errorf("Start: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := s.Pause(ctx, "m1"); err != nil {
				t.Errorf("Pause: %v", err)
			}
		}()
		wg.Wait()
	}
	s.Close()

	got, _ := ms.GetMission(ctx, "m1")
	before := got.Cursor
	time.Sleep(60 * time.Millisecond)
	got, _ = ms.GetMission(ctx, "m1")
	if got.Cursor != before {
		t.Fatalf("cursor advanced after Close: %+v -> %+v", before, got.Cursor)
	}
}

func TestConcurrentMissions_IndependentCursors(t *testing.T) {
	ms := store.NewMemoryStore()
	s := newTestScheduler(ms, &capturePublisher{})
	ctx := context.Background()

	m1 := &mission.Mission{ID: "m1", DroneID: "d1", Path: shortPath(), Status: mission.StatusInProgress}
	m2 := &mission.Mission{
		ID: "m2", DroneID: "d2",
		Path: mission.FlightPath{
			{Lat: 10, Lng: 10, Alt: 50, Seq: 0},
			{Lat: 10, Lng: 10.01, Alt: 50, Seq: 1},
		},
		Status: mission.StatusInProgress,
	}
	seed(t, ms, m1, 100)
	seed(t, ms, m2, 100)

	var wg sync.WaitGroup
	for _, id := range []string{"m1", "m2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				s.step(ctx, id)
			}
		}(id)
	}
	wg.Wait()

	got1, _ := ms.GetMission(ctx, "m1")
	got2, _ := ms.GetMission(ctx, "m2")
	// m1's ~111m segment advances ~0.072/tick; m2's ~1.1km segment ~0.0072.
	if got1.Cursor.Fraction < 0.6 || got1.Cursor.Fraction > 0.8 {
		t.Errorf("m1 fraction = %f, want ~0.72", got1.Cursor.Fraction)
	}
	if got2.Cursor.Fraction < 0.06 || got2.Cursor.Fraction > 0.08 {
		t.Errorf("m2 fraction = %f, want ~0.0072*10", got2.Cursor.Fraction)
	}
}
