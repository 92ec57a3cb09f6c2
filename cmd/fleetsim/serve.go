package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"fleetsim/internal/admin"
	"fleetsim/internal/config"
	"fleetsim/internal/logging"
	"fleetsim/internal/metrics"
	"fleetsim/internal/sched"
	"fleetsim/internal/store"
	"fleetsim/internal/telemetry"
)

var (
	serveConfigPath string
	serveSchemaPath string
	servePrintOnly  bool
	serveJSONLogs   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mission scheduler and admin API",
	Long:  "serve opens the mission store, recovers in-progress missions, and exposes the control API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveConfigPath, serveSchemaPath)
		if err != nil {
			return err
		}

		log := logging.New()
		if serveJSONLogs {
			log = logging.NewJSON()
		}
		ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), log))
		defer cancel()

		st, err := store.OpenSQLite(cfg.Database)
		if err != nil {
			return err
		}
		defer st.Close()

		hub := telemetry.NewHub()
		pub, cleanup, err := buildPublisher(cfg, hub, servePrintOnly)
		if err != nil {
			return err
		}
		defer cleanup()

		reg := prometheus.NewRegistry()
		col := metrics.NewCollector(reg)

		scheduler := sched.New(sched.Config{
			TickInterval:        cfg.Simulation.TickInterval(),
			SpeedMPS:            cfg.Simulation.SpeedMPS,
			BatteryDrainPerTick: cfg.Simulation.BatteryDrainPerTick,
		}, st, st, pub, col)
		defer scheduler.Close()

		mgr := sched.NewManager(st, st, scheduler, col)
		if err := mgr.Recover(ctx); err != nil {
			return err
		}

		srv := admin.NewServer(st, mgr, hub, reg)
		errCh := make(chan error, 1)
		go func() {
			log.Info("admin API listening", "addr", cfg.AdminAddr)
			errCh <- srv.Start(ctx, cfg.AdminAddr)
		}()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigs:
			log.Info("shutting down", "signal", sig.String())
			cancel()
			<-errCh
			return nil
		case err := <-errCh:
			return err
		}
	},
}

// buildPublisher assembles the telemetry fanout from the configured sinks.
// The hub is always first so the API and TUI see every event.
func buildPublisher(cfg *config.Config, hub *telemetry.Hub, printOnly bool) (telemetry.Publisher, func(), error) {
	pubs := []telemetry.Publisher{hub}
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	if printOnly {
		pubs = append(pubs, telemetry.NewJSONStdoutPublisher())
	}
	if cfg.TelemetryLog != "" {
		fp, err := telemetry.NewFilePublisher(cfg.TelemetryLog)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		pubs = append(pubs, fp)
		closers = append(closers, func() { fp.Close() })
	}
	if cfg.MQTT.Broker != "" {
		mp, err := telemetry.NewMQTTPublisher(cfg.MQTT.Broker, "fleetsim", cfg.MQTT.Topic)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		pubs = append(pubs, mp)
		closers = append(closers, mp.Close)
	}
	if cfg.Greptime.Endpoint != "" {
		gp, err := telemetry.NewGreptimePublisher(cfg.Greptime.Endpoint, cfg.Greptime.Database, cfg.Greptime.Table)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		pubs = append(pubs, gp)
		closers = append(closers, func() { gp.Close() })
	}
	return telemetry.NewMultiPublisher(pubs...), cleanup, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to fleetsim configuration YAML")
	serveCmd.Flags().StringVar(&serveSchemaPath, "schema", "schemas/fleetsim.cue", "Path to CUE schema file")
	serveCmd.Flags().BoolVar(&servePrintOnly, "print-only", false, "Also print telemetry to STDOUT")
	serveCmd.Flags().BoolVar(&serveJSONLogs, "json-logs", false, "Emit logs as JSON")
}
