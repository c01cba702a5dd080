// Package app assembles the enrichment dashboard server.
//
// NewApplication wires the job API client, the push channel to the backend,
// the browser websocket hub and the progress service, then builds the chi
// router that serves them:
//
//	/health, /health/ready, /health/live   liveness and readiness
//	/metrics                               Prometheus scrape
//	/ws?job=<id>                           live progress for one job
//	/auth/status                           job API session state
//	/api/jobs, /api/progress, /api/...     JSON API
//
// Run blocks until the context is cancelled or a termination signal arrives,
// then shuts the server down, releases every tracked job and flushes
// telemetry. Initialization errors are returned; the package never calls
// os.Exit.
package app
