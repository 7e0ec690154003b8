package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/career-crawler/internal/crawler"
	"github.com/JakeFAU/career-crawler/internal/server"
)

type scrapeOptions struct {
	company string
	keyword string
	events  bool
}

// scrapeOutput mirrors the body of GET /api/scrape-jobs with run details.
type scrapeOutput struct {
	Success    bool                 `json:"success"`
	RunID      string               `json:"runId"`
	Jobs       []crawler.JobListing `json:"jobs"`
	Total      int                  `json:"total"`
	Stored     int                  `json:"stored"`
	StoreError string               `json:"storeError,omitempty"`
	ArchiveURI string               `json:"archiveUri,omitempty"`
	ScrapedAt  time.Time            `json:"scrapedAt"`
}

func newScrapeCmd() *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs one scrape and prints the listings as JSON",
		Long: `Scrapes every registered target (or those matching --company) once,
persists the listings through the configured store, and writes the result to
stdout. With --events, progress events are written to stderr as JSON lines.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.company, "company", "", "only scrape targets whose name contains this value")
	cmd.Flags().StringVar(&opts.keyword, "keyword", "", "only print listings matching this keyword")
	cmd.Flags().BoolVar(&opts.events, "events", false, "write progress events to stderr")
	return cmd
}

func runScrape(cmd *cobra.Command, opts *scrapeOptions) error {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return err
	}
	cfg.Scheduler.Enabled = false

	// A private registry keeps one-shot metrics out of the process default.
	app, err := newApp(cmd.Context(), cfg, server.Options{Registerer: prometheus.NewRegistry()})
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
			app.Logger().Warn("close application failed", zap.Error(cerr))
		}
	}()

	var emit crawler.Emitter
	if opts.events {
		emit = &lineEmitter{w: cmd.ErrOrStderr()}
	}
	result, err := app.Service().Run(cmd.Context(), crawler.RunOptions{Company: opts.company}, emit)
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}

	jobs := crawler.FilterListings(result.Jobs, opts.keyword)
	if jobs == nil {
		jobs = []crawler.JobListing{}
	}
	out := scrapeOutput{
		Success:    true,
		RunID:      result.RunID,
		Jobs:       jobs,
		Total:      len(jobs),
		Stored:     result.Stored,
		ArchiveURI: result.ArchiveURI,
		ScrapedAt:  result.ScrapedAt,
	}
	if result.StoreErr != nil {
		out.StoreError = result.StoreErr.Error()
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// lineEmitter writes each event as one JSON line.
type lineEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

func (e *lineEmitter) Emit(_ context.Context, evt crawler.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintf(e.w, "%s\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
