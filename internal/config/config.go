// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Simulation holds the per-tick parameters of the mission scheduler.
type Simulation struct {
	TickIntervalMS      int     `yaml:"tick_interval_ms"`
	SpeedMPS            float64 `yaml:"speed_mps"`
	BatteryDrainPerTick float64 `yaml:"battery_drain_per_tick"`
}

// MQTT configures the optional MQTT telemetry publisher. An empty broker
// disables it.
type MQTT struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

// Greptime configures the optional GreptimeDB telemetry sink. An empty
// endpoint disables it.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Config is the root configuration for the fleetsim server.
type Config struct {
	Simulation   Simulation `yaml:"simulation"`
	Database     string     `yaml:"database"`
	AdminAddr    string     `yaml:"admin_addr"`
	TelemetryLog string     `yaml:"telemetry_log"`
	MQTT         MQTT       `yaml:"mqtt"`
	Greptime     Greptime   `yaml:"greptime"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Simulation: Simulation{
			TickIntervalMS:      1000,
			SpeedMPS:            8,
			BatteryDrainPerTick: 0.15,
		},
		Database:  ":memory:",
		AdminAddr: ":8080",
		MQTT: MQTT{
			Topic: "fleetsim/telemetry",
		},
		Greptime: Greptime{
			Database: "public",
			Table:    "mission_telemetry",
		},
	}
}

// TickInterval converts the configured millisecond value to a duration.
func (s Simulation) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMS) * time.Millisecond
}

// Load loads YAML config and validates it against a CUE schema. Fields
// absent from the file keep their defaults; environment variables win over
// both.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	cfg := Defaults()

	if configPath != "" {
		if cueSchemaPath != "" {
			if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
				return nil, err
			}
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if envTick := os.Getenv("TICK_INTERVAL"); envTick != "" {
		d, err := time.ParseDuration(envTick)
		if err != nil {
			return fmt.Errorf("invalid TICK_INTERVAL: %w", err)
		}
		c.Simulation.TickIntervalMS = int(d / time.Millisecond)
	}
	if v := os.Getenv("FLEETSIM_DB"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("FLEETSIM_ADMIN_ADDR"); v != "" {
		c.AdminAddr = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_TABLE"); v != "" {
		c.Greptime.Table = v
	}
	return nil
}
