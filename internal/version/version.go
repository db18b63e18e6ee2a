package version

import (
	"fmt"
	"runtime"
)

//nolint:gochecknoglobals // Overridden with -ldflags "-X" at build time.
var (
	// Version is the release of strip-control and plug-control.
	Version = "0.1.0-dev"
	// Commit is the short git SHA of the build, "none" for local builds.
	Commit = "none"
	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Short returns the release string alone.
func Short() string {
	return Version
}

// Full returns the release with commit, build time and Go toolchain.
func Full() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", Version, Commit, BuildTime, runtime.Version())
}
