// Package version holds the build metadata shared by the strip-control
// binaries. Version, Commit and BuildTime are set with -ldflags "-X" by
// release builds and keep development defaults otherwise.
package version
