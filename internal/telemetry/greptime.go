package telemetry

import (
	"context"
	"fmt"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
)

// greptimeClient abstracts the ingester client for testing.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimePublisher writes each event as a time-series row to GreptimeDB.
type GreptimePublisher struct {
	client greptimeClient
	table  string
}

// NewGreptimePublisher connects to a GreptimeDB instance. tableName defaults
// to "mission_telemetry".
func NewGreptimePublisher(host, database, tableName string) (*GreptimePublisher, error) {
	if tableName == "" {
		tableName = "mission_telemetry"
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimePublisher{client: client, table: tableName}, nil
}

// Broadcast inserts one telemetry row.
func (p *GreptimePublisher) Broadcast(event string, e Event) error {
	tbl, err := table.New(p.table)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("mission_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("drone_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("status", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("progress", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("lat", types.FLOAT); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("lng", types.FLOAT); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("alt", types.FLOAT); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("battery", types.FLOAT); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("speed", types.FLOAT); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	if err := tbl.AddRow(
		e.MissionID, e.DroneID, e.Status, int64(e.Progress),
		e.CurrentWaypoint.Lat, e.CurrentWaypoint.Lng, e.CurrentWaypoint.Alt,
		e.Battery, e.Speed, e.Timestamp,
	); err != nil {
		return err
	}

	_, err = p.client.Write(context.Background(), tbl)
	return err
}

// Close releases the ingester client's connection.
func (p *GreptimePublisher) Close() error {
	if c, ok := p.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
