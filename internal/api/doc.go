// Package api hosts the HTTP server, middleware, and REST handlers for serve mode.
// Notable routes:
//   - POST /v1/webhooks/finished accepts a platform webhook and queues a validation.
//   - GET /v1/invocations/{id} and /v1/invocations/{id}/output report progress and results.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
