// Package shared holds helpers used by more than one package.
//
// The testutil subpackage provides a log-capturing slog handler and fixtures
// for jobs, companies and pipeline frames. It has no production callers.
package shared
