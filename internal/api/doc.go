// Package api hosts the operator HTTP listener that runs alongside a crawl:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for a snapshot of the running crawl.
package api
