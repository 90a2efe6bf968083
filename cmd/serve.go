package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/beaconhq/beacon/internal/app"
)

var serveNoChannel bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the messaging session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoChannel, "no-channel", false,
		"serve the HTTP API without starting the messaging session")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	if !serveNoChannel {
		if err := a.Manager.Start(ctx); err != nil {
			return fmt.Errorf("starting messaging session: %w", err)
		}
	}

	return a.Server.Run(ctx, cfg.HTTPAddr)
}
