// Package services implements the business logic layer of the dashboard.
// It sits between the HTTP handlers and the job API, push channel and hub.
//
// # Services
//
//	- ProgressService: one progress reconciler per tracked job; every
//	  reconciled state is pushed to the browsers watching the job, and a job
//	  that completes or fails releases its channel subscription while keeping
//	  its final snapshot until it is untracked.
//	- HealthService: health, readiness and liveness reports.
//
// # Common Service Pattern
//
//	type ServiceName struct {
//	    dependency SomeInterface
//	    logger     *slog.Logger
//	}
//
//	func NewServiceName(dep SomeInterface, logger *slog.Logger) *ServiceName
//
// Services take *slog.Logger by injection and fall back to slog.Default().
// Errors are sentinel values declared in errors.go and wrapped with %w.
package services
