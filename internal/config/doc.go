// Package config defines the settings used by the strip-control binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Values from the file can be overridden with STRIPCTL_* environment
// variables, e.g. STRIPCTL_TIMEOUT=10s or STRIPCTL_DISCOVERY_DISABLED=true.
package config
