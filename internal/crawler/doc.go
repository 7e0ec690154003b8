// Package crawler holds the job-scraping core: the target registry, the
// listing extractor and its fallbacks, the sequential run orchestrator and
// the service that persists, archives and announces each run.
//
// A run visits targets in registry order and pages in ascending order. Every
// target contributes at least one listing; when nothing real can be
// extracted the fallback synthesizer fills in placeholder or mock listings.
// Progress is reported as typed Events to an Emitter in production order.
package crawler
