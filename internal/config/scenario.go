package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ScenarioDrone declares one drone to seed into the store.
type ScenarioDrone struct {
	ID      string  `yaml:"id"`
	Name    string  `yaml:"name"`
	Model   string  `yaml:"model"`
	Battery float64 `yaml:"battery"`
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
	Alt     float64 `yaml:"alt"`
}

// ScenarioWaypoint is one point of a seeded flight path.
type ScenarioWaypoint struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
	Alt float64 `yaml:"alt"`
}

// ScenarioMission declares one planned mission. Drone refers to a drone in
// the same scenario by name.
type ScenarioMission struct {
	ID        string             `yaml:"id"`
	Name      string             `yaml:"name"`
	Drone     string             `yaml:"drone"`
	Waypoints []ScenarioWaypoint `yaml:"waypoints"`
}

// Scenario is a seedable set of drones and planned missions.
type Scenario struct {
	Drones   []ScenarioDrone   `yaml:"drones"`
	Missions []ScenarioMission `yaml:"missions"`
}

// LoadScenario reads and sanity-checks a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("cannot unmarshal scenario: %w", err)
	}

	names := make(map[string]bool, len(sc.Drones))
	for i, d := range sc.Drones {
		if d.Name == "" {
			return nil, fmt.Errorf("drone %d: missing name", i)
		}
		if names[d.Name] {
			return nil, fmt.Errorf("duplicate drone name %q", d.Name)
		}
		names[d.Name] = true
	}
	for i, m := range sc.Missions {
		if m.Name == "" {
			return nil, fmt.Errorf("mission %d: missing name", i)
		}
		if !names[m.Drone] {
			return nil, fmt.Errorf("mission %q: unknown drone %q", m.Name, m.Drone)
		}
		if len(m.Waypoints) < 2 {
			return nil, fmt.Errorf("mission %q: needs at least 2 waypoints", m.Name)
		}
	}
	return &sc, nil
}
