// Package cmd defines and implements the CLI commands for the careercrawler
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/career-crawler/internal/config"
	"github.com/JakeFAU/career-crawler/internal/server"
)

// cfgKeyType is the key for storing the loaded Config in the command context.
type cfgKeyType string

const cfgKey cfgKeyType = "config"

// newApp is the application factory. Tests swap it to inject options.
var newApp = func(ctx context.Context, cfg config.Config, opts server.Options) (*server.App, error) {
	return server.Build(ctx, cfg, opts)
}

type rootOptions struct {
	configFile  string
	envFiles    []string
	development bool
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "careercrawler",
		Short: "Scrapes job listings from company career pages.",
		Long: `careercrawler visits a registry of company career pages with a headless
browser, extracts job listings, and persists them. It runs either as an HTTP
service (serve) or as a one-shot scrape from the command line (scrape).`,
		SilenceUsage: true,

		// Config is loaded once here and handed to subcommands via the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFiles(opts.envFiles...); err != nil {
				return fmt.Errorf("load env files: %w", err)
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.development {
				cfg.Logging.Development = true
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML); environment variables use the CAREER_ prefix")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load before reading config (default .env)")
	cmd.PersistentFlags().BoolVar(&opts.development, "dev", false, "human-readable development logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newTargetsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func configFrom(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}
