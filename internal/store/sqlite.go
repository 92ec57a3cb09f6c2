package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fleetsim/internal/mission"
)

const queryTimeout = 3 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS drones (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  model TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'available',
  battery REAL NOT NULL DEFAULT 100,
  lat REAL NOT NULL DEFAULT 0,
  lng REAL NOT NULL DEFAULT 0,
  alt REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS missions (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  drone_id TEXT NOT NULL REFERENCES drones(id),
  flight_path TEXT NOT NULL DEFAULT '[]',
  status TEXT NOT NULL DEFAULT 'planned',
  progress INTEGER NOT NULL DEFAULT 0,
  segment_index INTEGER NOT NULL DEFAULT 0,
  fraction REAL NOT NULL DEFAULT 0,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_missions_status ON missions(status);
`

// SQLiteStore implements MissionStore and DroneStore on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema
// exists. Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "fleetsim.db"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// journal_mode is unsupported for in-memory databases, ignore errors there.
	_, _ = db.Exec(`PRAGMA journal_mode=WAL`)
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetMission(ctx context.Context, id string) (*mission.Mission, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var m mission.Mission
	var path string
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, drone_id, flight_path, status, progress, segment_index, fraction, created_at, updated_at
		 FROM missions WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.DroneID, &path, &status, &m.Progress,
			&m.Cursor.SegmentIndex, &m.Cursor.Fraction, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mission %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	m.Status = mission.Status(status)
	if err := json.Unmarshal([]byte(path), &m.Path); err != nil {
		return nil, fmt.Errorf("decode flight path of mission %s: %w", id, err)
	}
	return &m, nil
}

func (s *SQLiteStore) SaveMission(ctx context.Context, m *mission.Mission) error {
	if m == nil {
		return errors.New("mission is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	path, err := json.Marshal(m.Path)
	if err != nil {
		return fmt.Errorf("encode flight path: %w", err)
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO missions (id, name, drone_id, flight_path, status, progress, segment_index, fraction, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, drone_id=excluded.drone_id, flight_path=excluded.flight_path,
		   status=excluded.status, progress=excluded.progress,
		   segment_index=excluded.segment_index, fraction=excluded.fraction,
		   updated_at=excluded.updated_at`,
		m.ID, m.Name, m.DroneID, string(path), string(m.Status), m.Progress,
		m.Cursor.SegmentIndex, m.Cursor.Fraction, m.CreatedAt, m.UpdatedAt)
	return err
}

func (s *SQLiteStore) ListMissions(ctx context.Context) ([]*mission.Mission, error) {
	return s.listMissions(ctx, `SELECT id FROM missions ORDER BY created_at`)
}

func (s *SQLiteStore) ListMissionsByStatus(ctx context.Context, st mission.Status) ([]*mission.Mission, error) {
	return s.listMissions(ctx,
		`SELECT id FROM missions WHERE status = ? ORDER BY created_at`, string(st))
}

func (s *SQLiteStore) listMissions(ctx context.Context, query string, args ...any) ([]*mission.Mission, error) {
	lctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(lctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	missions := make([]*mission.Mission, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMission(ctx, id)
		if err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, nil
}

func (s *SQLiteStore) GetDrone(ctx context.Context, id string) (*mission.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var d mission.Drone
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, model, status, battery, lat, lng, alt FROM drones WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &d.Model, &status, &d.Battery,
			&d.Location.Lat, &d.Location.Lng, &d.Location.Alt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("drone %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	d.Status = mission.DroneStatus(status)
	return &d, nil
}

func (s *SQLiteStore) SaveDrone(ctx context.Context, d *mission.Drone) error {
	if d == nil {
		return errors.New("drone is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if d.Status == "" {
		d.Status = mission.DroneAvailable
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drones (id, name, model, status, battery, lat, lng, alt)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, model=excluded.model, status=excluded.status,
		   battery=excluded.battery, lat=excluded.lat, lng=excluded.lng, alt=excluded.alt`,
		d.ID, d.Name, d.Model, string(d.Status), d.Battery,
		d.Location.Lat, d.Location.Lng, d.Location.Alt)
	return err
}

func (s *SQLiteStore) UpdateDroneFields(ctx context.Context, id string, upd DroneUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var sets []string
	var args []any
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Battery != nil {
		sets = append(sets, "battery = ?")
		args = append(args, *upd.Battery)
	}
	if upd.Location != nil {
		sets = append(sets, "lat = ?", "lng = ?", "alt = ?")
		args = append(args, upd.Location.Lat, upd.Location.Lng, upd.Location.Alt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE drones SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("drone %s: %w", id, ErrNotFound)
	}
	return nil
}
