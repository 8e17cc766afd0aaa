// Package version reports the featalign build. The variables are overridden
// at link time:
//
//	go build -ldflags "-X featalign/internal/version.Version=1.2.0 -X featalign/internal/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info is a snapshot of the build metadata.
type Info struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
}

// String formats the line printed by a tool's -version flag.
func String(tool string) string {
	i := Get()
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)", tool, i.Version, i.GitCommit, i.BuildTime, i.GoVersion)
}
