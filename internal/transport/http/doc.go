// Package http implements the dashboard's HTTP handlers.
//
// Handlers stay thin: they validate path and query input, call the job API
// client or the progress service, and render JSON with chi/render. Failures
// are rendered as RFC 7807 problem details by the shared errors.ErrorHandler.
//
// Routes served here:
//
//	/api/jobs/...          proxy to the job API (list, details, create, enrich,
//	                       delete, reports, exports)
//	/api/progress/{jobId}  start tracking, read the reconciled snapshot, stop
//	/ws?job=<id>           websocket push of reconciled snapshots
//	/health, /metrics      health checks and Prometheus scrape endpoint
package http
