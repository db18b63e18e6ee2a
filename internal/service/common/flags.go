//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"github.com/spf13/pflag"

	"github.com/hilo-software/strip-control/internal/config"
)

// BindFlags registers the flags shared by every command on flags.
func BindFlags(flags *pflag.FlagSet, settings *Settings) {
	flags.StringVarP(&settings.ConfigPath, "config", "c", "",
		"path to configuration file (default "+config.DefaultConfigFilename+" when present)")
	flags.StringVar(&settings.LogFile, "log-file", "", "append logs to this file as well, rotated by size")
	flags.StringVar(&settings.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&settings.MetricsFile, "metrics-file", "", "write run metrics to this file in Prometheus text format")
	flags.DurationVar(&settings.Timeout, "timeout", 0, "timeout of each device request (default 5s)")
	flags.BoolVar(&settings.SingleInstance, "single-instance", false,
		"refuse to run while another instance of this command is running")
}
