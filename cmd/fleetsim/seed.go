package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fleetsim/internal/config"
	"fleetsim/internal/geo"
	"fleetsim/internal/logging"
	"fleetsim/internal/mission"
	"fleetsim/internal/store"
)

var (
	seedScenarioPath string
	seedDatabase     string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a scenario of drones and planned missions into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := config.LoadScenario(seedScenarioPath)
		if err != nil {
			return err
		}

		st, err := store.OpenSQLite(seedDatabase)
		if err != nil {
			return err
		}
		defer st.Close()

		log := logging.New()
		ctx := logging.NewContext(context.Background(), log)

		droneIDs := make(map[string]string, len(sc.Drones))
		for _, d := range sc.Drones {
			id := d.ID
			if id == "" {
				id = uuid.NewString()
			}
			droneIDs[d.Name] = id
			battery := d.Battery
			if battery == 0 {
				battery = 100
			}
			drone := &mission.Drone{
				ID:       id,
				Name:     d.Name,
				Model:    d.Model,
				Status:   mission.DroneAvailable,
				Battery:  battery,
				Location: geo.Point{Lat: d.Lat, Lng: d.Lng, Alt: d.Alt},
			}
			if err := st.SaveDrone(ctx, drone); err != nil {
				return fmt.Errorf("seed drone %q: %w", d.Name, err)
			}
			log.Info("seeded drone", "id", id, "name", d.Name)
		}

		for _, sm := range sc.Missions {
			id := sm.ID
			if id == "" {
				id = uuid.NewString()
			}
			path := make(mission.FlightPath, len(sm.Waypoints))
			for i, wp := range sm.Waypoints {
				path[i] = mission.Waypoint{Lat: wp.Lat, Lng: wp.Lng, Alt: wp.Alt, Seq: i}
			}
			m := &mission.Mission{
				ID:      id,
				Name:    sm.Name,
				DroneID: droneIDs[sm.Drone],
				Path:    path,
				Status:  mission.StatusPlanned,
			}
			if err := st.SaveMission(ctx, m); err != nil {
				return fmt.Errorf("seed mission %q: %w", sm.Name, err)
			}
			log.Info("seeded mission", "id", id, "name", sm.Name, "waypoints", len(path))
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedScenarioPath, "scenario", "config/scenario.yaml", "Path to scenario YAML")
	seedCmd.Flags().StringVar(&seedDatabase, "db", "fleetsim.db", "Path to the SQLite database")
}
