package main

import (
	"os"

	"github.com/spf13/cobra"

	appLog "familyboard/internal/log"
)

const version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "familyboard",
	Short:         "Family calendar board",
	Long:          "Fetches per-person calendars and task lists, lays out overlapping events and serves the board as JSON.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: $FAMILYBOARD_CONFIG or /etc/familyboard/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		appLog.Error("familyboard failed", err)
		os.Exit(1)
	}
}
