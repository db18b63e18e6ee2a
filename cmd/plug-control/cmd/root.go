package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hilo-software/strip-control/internal/service/common"
	"github.com/hilo-software/strip-control/internal/service/plug"
	"github.com/hilo-software/strip-control/internal/version"
)

var (
	// settings stores the flags shared by every command.
	settings common.Settings
	// blinkMinutes enables blink mode for that many minutes.
	blinkMinutes int

	// rootCmd represents the base command for switching a plug.
	rootCmd = &cobra.Command{
		Use:   "plug-control <plug_name> <on|anything_else>",
		Short: "Switch or blink a single Kasa outlet.",
		Long: `Switches one TP-Link Kasa outlet, either a standalone smart plug or a single
outlet of a smart strip, found by its alias.

Only "on" (in any letter case) turns the outlet on; any other value turns it off.
With --blink-mode the outlet alternates on and off every 5 seconds for the given
number of minutes and is then put back the way it was.`,
		Args: cobra.ExactArgs(2), //nolint:mnd // Plug name and switch.
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return plug.Run(ctx, &plug.Options{
				Settings:      settings,
				Alias:         args[0],
				Switch:        args[1],
				BlinkDuration: time.Duration(blinkMinutes) * time.Minute,
				BlinkInterval: plug.DefaultBlinkInterval,
			})
		},
	}
)

// Execute runs the plug-control CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	common.BindFlags(rootCmd.PersistentFlags(), &settings)

	rootCmd.Flags().IntVarP(&blinkMinutes, "blink-mode", "b", 0, "blink the plug for the given number of minutes")
}
