// Package jobs is the client of the job API.
//
// The job API owns jobs and their companies: it lists them, accepts new lookup
// jobs, starts enrichment of selected companies and serves per-company reports.
// Every response is validated before it is handed to callers, and non-2xx
// replies come back as *StatusError so HTTP handlers can map them to problem
// responses.
package jobs
