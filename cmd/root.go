// Package cmd implements the beacon command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Knowledge-grounded answering service with a paired messaging channel",
	Long: `Beacon answers questions against an ingested knowledge base and can
drive a paired messaging session that answers inbound messages with the
same retrieval pipeline.

Run 'beacon serve' to start the HTTP API and the messaging session.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and builds the process logger from it.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	return cfg, logger, nil
}
