package strip

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	domain "github.com/hilo-software/strip-control/internal/domain/strip"
	"github.com/hilo-software/strip-control/internal/kasa"
	"github.com/hilo-software/strip-control/internal/logger"
	"github.com/hilo-software/strip-control/internal/metrics"
	"github.com/hilo-software/strip-control/internal/service/common"
)

// toolName names the logger and the metrics of this command.
const toolName = "strip-control"

// Options configures a strip toggle.
type Options struct {
	common.Settings

	// Alias is the strip name as shown in the Kasa app.
	Alias string
	// Switch is the desired-state token; only a case-insensitive "on" means on.
	Switch string
}

// Run resolves the strip and switches every plug on it.
//
// Every plug is attempted even when one fails; the failures are combined
// into the returned error.
func Run(ctx context.Context, opts *Options) (err error) {
	ctx, session, err := common.Open(ctx, toolName, &opts.Settings)
	if err != nil {
		return err
	}

	defer session.Close()

	switchOn := domain.ParseSwitch(opts.Switch)
	started := time.Now()
	run := metrics.NewRun(toolName, opts.Alias)

	logger.InfoKV(ctx, ">>>>> START", "strip", opts.Alias, "switch_on", switchOn, "actor", session.Actor.String())

	defer func() {
		run.Finish(switchOn, started, err)
		session.WriteMetrics(ctx, run)

		if err != nil {
			logger.ErrorKV(ctx, "Strip toggle failed", "strip", opts.Alias, "error", err)
		}

		logger.InfoKV(ctx, ">>>>> FINI", "strip", opts.Alias, "status", err == nil)
	}()

	target, err := common.Locate(ctx, session.Config, opts.Alias, matchStrip(opts.Alias))
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = target.Close()
	}()

	if !target.Info.IsStrip() {
		return fmt.Errorf("%w: %q (%s)", common.ErrNotStrip, opts.Alias, target.Info.Model)
	}

	if target.Info.Alias != opts.Alias {
		logger.WarnKV(ctx, "Configured strip reports another alias", "alias", opts.Alias, "reported", target.Info.Alias)
	}

	strip := target.Strip()
	logger.InfoKV(ctx, "Strip found", "strip", strip.Alias, "model", strip.Model, "address", strip.Address, "plugs", len(strip.Plugs))

	err = Toggle(ctx, target, strip, switchOn)

	// Read the resulting state once, like the Kasa app does after a command.
	if refreshErr := target.Refresh(ctx); refreshErr != nil {
		logger.WarnKV(ctx, "Could not read back plug states", "error", refreshErr)
		return err
	}

	report(ctx, run, target.Strip(), switchOn)

	return err
}

// matchStrip accepts only multi-outlet devices named exactly alias.
func matchStrip(alias string) common.Matcher {
	return func(info *kasa.SysInfo) bool {
		return info.IsStrip() && info.Alias == alias
	}
}

// Toggle sends set_relay_state to every plug of strip in device order and
// returns the combined errors of the plugs that could not be switched.
func Toggle(ctx context.Context, target *common.Target, strip *domain.Strip, on bool) error {
	ctx = logger.WithKV(ctx, "strip", strip.Alias)

	var errs error

	for _, plug := range strip.Plugs {
		if err := target.Client.SetRelayState(ctx, on, plug.ID); err != nil {
			logger.ErrorKV(ctx, "Could not switch plug", "plug", plug.Alias, "state", domain.StateName(on), "error", err)
			errs = multierr.Append(errs, fmt.Errorf("plug %q: %w", plug.Alias, err))

			// A cancelled run will not get further with the next plug.
			if ctx.Err() != nil {
				return errs
			}

			continue
		}

		logger.InfoKV(ctx, "Plug switched", "plug", plug.Alias, "state", domain.StateName(on))
	}

	return errs
}

// report logs the read-back state of every plug and records it in the metrics.
func report(ctx context.Context, run *metrics.Run, strip *domain.Strip, on bool) {
	for _, plug := range strip.Plugs {
		run.ObservePlug(plug.Alias, plug.IsOn)
		logger.DebugKV(ctx, "Plug state", "plug", plug.Alias, "state", domain.StateName(plug.IsOn))
	}

	for _, plug := range strip.Mismatched(on) {
		logger.WarnKV(ctx, "Plug did not reach desired state", "plug", plug.Alias, "state", domain.StateName(plug.IsOn))
	}
}
