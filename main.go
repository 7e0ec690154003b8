// Command careercrawler scrapes job listings from company career pages.
//
// Architecture overview:
//   - Registry: a fixed table of crawl targets (or a YAML file) naming each
//     company's careers page, selector hints and pagination bounds.
//   - Runner: visits the targets sequentially in one shared headless browser,
//     pausing between targets, and extracts listings with selector hints and
//     generic fallbacks. Failures degrade to placeholder or mock listings.
//   - Service: one run assigns a run id, emits progress events in order,
//     persists listings (Postgres, Redis, memory, or the HTTP gateway),
//     archives the run to blob storage and publishes a completion notice.
//   - API: GET/POST /api/scrape-jobs, the SSE stream, the daily cron
//     trigger, persisted jobs and run history; see internal/api.
//
// Run locally: careercrawler serve --config config.yaml, or a one-shot
// careercrawler scrape --company stripe --keyword backend.
package main

import (
	"fmt"
	"os"

	"github.com/JakeFAU/career-crawler/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
