// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET/POST /api/scrape-jobs runs the registry and returns the listings.
//   - GET /api/scrape-jobs/stream pushes run events as server-sent events.
//   - GET/POST /api/cron/scrape-daily runs everything and reports a summary.
//   - /api/jobs is the persistence gateway over the listing store.
//   - GET /api/runs and /api/runs/{run_id}/targets report run history via
//     the RunRepository interface.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus.
package api
