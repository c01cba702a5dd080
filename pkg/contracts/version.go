package contracts

import (
	"fmt"
	"runtime"
)

// Version is the release of the dashboard and CLI
const Version = "0.3.0"

// Set with -ldflags "-X enrichdash/pkg/contracts.GitCommit=..."
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionString describes the running binary on one line
func VersionString(app string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s %s/%s)",
		app, Version, GitCommit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
