package main

import (
	"context"

	"github.com/spf13/cobra"

	"fleetsim/internal/tui"
)

var watchAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live mission telemetry in a terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.Run(context.Background(), watchAddr)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "http://localhost:8080", "Base URL of the fleetsim admin API")
}
