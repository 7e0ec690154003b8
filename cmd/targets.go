package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

type targetsOptions struct {
	company string
	asJSON  bool
}

func newTargetsCmd() *cobra.Command {
	opts := &targetsOptions{}
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Lists the configured crawl targets",
		Long: `Prints the target registry: the built-in table, or the file named by
scrape.targets_file. Loading the file validates every entry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTargets(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.company, "company", "", "only list targets whose name contains this value")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print targets as JSON")
	return cmd
}

func runTargets(cmd *cobra.Command, opts *targetsOptions) error {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return err
	}
	registry := crawler.DefaultRegistry()
	if cfg.Scrape.TargetsFile != "" {
		registry, err = crawler.LoadRegistry(cfg.Scrape.TargetsFile)
		if err != nil {
			return fmt.Errorf("load targets: %w", err)
		}
	}
	targets := registry.Filter(opts.company)

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(targets); err != nil {
			return fmt.Errorf("write targets: %w", err)
		}
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Entry URL", "Max Pages", "Container Hint"})
	for _, target := range targets {
		t.AppendRow(table.Row{
			target.Name,
			target.EntryURL,
			target.Pagination.Pages(),
			target.Selectors.ListingContainer,
		})
	}
	t.AppendFooter(table.Row{"", "", "Total", len(targets)})
	t.Render()
	return nil
}
