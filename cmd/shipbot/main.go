package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	rootCmd    = &cobra.Command{
		Use:   "shipbot",
		Short: "Shipbot - autonomous change delivery",
		Long: `Shipbot turns natural-language work orders into shipped site changes.
It picks up queued orders, has a coding agent build each one on a branch,
classifies the change set by risk, and either merges low-risk work straight
to main or parks the branch for admin approval.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
