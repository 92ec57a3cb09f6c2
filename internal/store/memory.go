package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleetsim/internal/mission"
)

// MemoryStore is a mutex-guarded in-memory implementation of MissionStore and
// DroneStore, used for tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	missions map[string]mission.Mission
	drones   map[string]mission.Drone
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		missions: make(map[string]mission.Mission),
		drones:   make(map[string]mission.Drone),
	}
}

func (s *MemoryStore) GetMission(ctx context.Context, id string) (*mission.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", id, ErrNotFound)
	}
	cp := m
	cp.Path = append(mission.FlightPath(nil), m.Path...)
	return &cp, nil
}

func (s *MemoryStore) SaveMission(ctx context.Context, m *mission.Mission) error {
	if m == nil {
		return errors.New("mission is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	cp.Path = append(mission.FlightPath(nil), m.Path...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.missions[cp.ID] = cp
	return nil
}

func (s *MemoryStore) ListMissions(ctx context.Context) ([]*mission.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*mission.Mission, 0, len(s.missions))
	for id := range s.missions {
		m := s.missions[id]
		cp := m
		cp.Path = append(mission.FlightPath(nil), m.Path...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListMissionsByStatus(ctx context.Context, st mission.Status) ([]*mission.Mission, error) {
	all, err := s.ListMissions(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, m := range all {
		if m.Status == st {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetDrone(ctx context.Context, id string) (*mission.Drone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drones[id]
	if !ok {
		return nil, fmt.Errorf("drone %s: %w", id, ErrNotFound)
	}
	cp := d
	return &cp, nil
}

func (s *MemoryStore) SaveDrone(ctx context.Context, d *mission.Drone) error {
	if d == nil {
		return errors.New("drone is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	if cp.Status == "" {
		cp.Status = mission.DroneAvailable
	}
	s.drones[cp.ID] = cp
	return nil
}

func (s *MemoryStore) UpdateDroneFields(ctx context.Context, id string, upd DroneUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drones[id]
	if !ok {
		return fmt.Errorf("drone %s: %w", id, ErrNotFound)
	}
	if upd.Status != nil {
		d.Status = *upd.Status
	}
	if upd.Battery != nil {
		d.Battery = *upd.Battery
	}
	if upd.Location != nil {
		d.Location = *upd.Location
	}
	s.drones[id] = d
	return nil
}

// DeleteMission removes a mission. Used by tests simulating entities deleted
// mid-flight.
func (s *MemoryStore) DeleteMission(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.missions, id)
}
