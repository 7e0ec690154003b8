package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/career-crawler/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the optional daily scheduler",
		Long: `Starts the HTTP server exposing the scrape, stream, jobs and run history
endpoints. When scheduler.enabled is set, a cron schedule triggers the daily
scrape in-process. The server drains on SIGINT/SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return err
	}
	app, err := newApp(cmd.Context(), cfg, server.Options{})
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	if err := app.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
