package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hilo-software/strip-control/internal/service/common"
	"github.com/hilo-software/strip-control/internal/service/strip"
	"github.com/hilo-software/strip-control/internal/version"
)

var (
	// settings stores the flags shared by every command.
	settings common.Settings

	// rootCmd represents the base command for switching a strip.
	rootCmd = &cobra.Command{
		Use:   "strip-control <device_name> <on|anything_else>",
		Short: "Switch every outlet of a Kasa smart strip on or off.",
		Long: `Switches all outlets of a TP-Link Kasa smart strip.

The strip is looked up by its alias, first in the configuration file and then
through the local network discovery probe. Only "on" (in any letter case) turns
the outlets on; any other value turns them off.

This is typically run from cron to power equipment on and off on a schedule.

A strip named like a subcommand (discover, version, help, completion) must be
given after "--", e.g. strip-control -- discover on.`,
		Args: cobra.ExactArgs(2), //nolint:mnd // Device name and switch.
		RunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are valid from here on, errors are runtime failures.
			cmd.SilenceUsage = true

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return strip.Run(ctx, &strip.Options{
				Settings: settings,
				Alias:    args[0],
				Switch:   args[1],
			})
		},
	}
)

// Execute runs the strip-control CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	common.BindFlags(rootCmd.PersistentFlags(), &settings)

	rootCmd.AddCommand(discoverCmd)
}
