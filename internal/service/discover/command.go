package discover

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"go.uber.org/zap/zapcore"

	"github.com/hilo-software/strip-control/internal/logger"
	"github.com/hilo-software/strip-control/internal/service/common"
)

// toolName names the logger of this command.
const toolName = "discover"

// Options configures a discovery listing.
type Options struct {
	common.Settings

	// Out receives the listing, os.Stdout when nil.
	Out io.Writer
}

// Run discovers the devices on the local network and prints one line per
// device with its alias, model, address and number of outlets.
func Run(ctx context.Context, opts *Options) error {
	ctx, session, err := common.Open(ctx, toolName, &opts.Settings)
	if err != nil {
		return err
	}

	defer session.Close()

	// The listing shares stdout with the console log.
	logger.SetLevel(listingLevel(session.Config.LogLevel))

	if session.Config.Discovery.Disabled {
		logger.Warn(ctx, "Discovery is disabled in the configuration, probing anyway")
	}

	devices, err := common.DiscoverDevices(ctx, session.Config)
	if err != nil {
		return err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(writer, "ALIAS\tMODEL\tADDRESS\tPLUGS")

	for _, device := range devices {
		strip := common.ToStrip(device.Address, device.Info)

		_, _ = fmt.Fprintf(writer, "%s\t%s\t%s\t%d\n", strip.Alias, strip.Model, strip.Address, len(strip.Plugs))
	}

	if err = writer.Flush(); err != nil {
		return fmt.Errorf("write device list: %w", err)
	}

	logger.InfoKV(ctx, "Discovery finished", "devices", len(devices))

	return nil
}

// listingLevel keeps info lines out of the listing unless a level was asked
// for in the configuration, the environment or on the command line.
func listingLevel(configured string) zapcore.Level {
	if configured == "" {
		return zapcore.WarnLevel
	}

	level, _ := logger.ParseLogLevel(configured)

	return level
}
