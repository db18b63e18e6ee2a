package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hilo-software/strip-control/internal/service/discover"
)

// discoverCmd lists the Kasa devices answering on the local network.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List the Kasa devices on the local network.",
	Long: `Broadcasts the Kasa sysinfo probe and prints every device that answers,
with its alias, model, address and number of outlets.

Use it to find the exact alias to pass to strip-control or plug-control.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true

		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return discover.Run(ctx, &discover.Options{
			Settings: settings,
			Out:      cmd.OutOrStdout(),
		})
	},
}
