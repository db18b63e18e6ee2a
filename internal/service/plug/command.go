package plug

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

const (
	// toolName names the logger and the metrics of this command.
	toolName = "plug-control"

	// DefaultBlinkInterval is how long the plug stays in each state while blinking.
	DefaultBlinkInterval = 5 * time.Second
)

// Options configures a plug command.
type Options struct {
	common.Settings

	// Alias is the plug name as shown in the Kasa app.
	Alias string
	// Switch is the desired-state token; only a case-insensitive "on" means on.
	Switch string
	// BlinkDuration enables blink mode for that long; Switch is ignored then.
	BlinkDuration time.Duration
	// BlinkInterval is the time between two toggles, DefaultBlinkInterval when zero.
	BlinkInterval time.Duration
}

// Run resolves the plug and switches or blinks it.
func Run(ctx context.Context, opts *Options) (err error) {
	ctx, session, err := common.Open(ctx, toolName, &opts.Settings)
	if err != nil {
		return err
	}

	defer session.Close()

	switchOn := domain.ParseSwitch(opts.Switch)
	started := time.Now()
	run := metrics.NewRun(toolName, opts.Alias)

	logger.InfoKV(
		ctx,
		">>>>> START",
		"plug", opts.Alias,
		"switch_on", switchOn,
		"blink", opts.BlinkDuration.String(),
		"actor", session.Actor.String(),
	)

	defer func() {
		run.Finish(switchOn, started, err)
		session.WriteMetrics(ctx, run)

		if err != nil {
			logger.ErrorKV(ctx, "Plug command failed", "plug", opts.Alias, "error", err)
		}

		logger.InfoKV(ctx, ">>>>> FINI", "plug", opts.Alias, "status", err == nil)
	}()

	target, err := common.Locate(ctx, session.Config, opts.Alias, matchPlug(opts.Alias))
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = target.Close()
	}()

	plug, err := FindPlug(target.Info, opts.Alias)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Plug found", "plug", plug.Alias, "device", target.Info.Alias, "address", target.Client.Address())

	if opts.BlinkDuration > 0 {
		interval := opts.BlinkInterval
		if interval <= 0 {
			interval = DefaultBlinkInterval
		}

		// The plug ends up where it started.
		switchOn = plug.IsOn
		err = Blink(ctx, target, plug, opts.BlinkDuration, interval)
	} else {
		err = Switch(ctx, target, plug, switchOn)
	}

	if refreshErr := target.Refresh(ctx); refreshErr != nil {
		logger.WarnKV(ctx, "Could not read back plug state", "error", refreshErr)
		return err
	}

	if current, findErr := FindPlug(target.Info, opts.Alias); findErr == nil {
		run.ObservePlug(current.Alias, current.IsOn)

		if err == nil && current.IsOn != switchOn {
			logger.WarnKV(ctx, "Plug did not reach desired state", "plug", current.Alias, "state", domain.StateName(current.IsOn))
		}
	}

	return err
}

// matchPlug accepts a standalone plug named alias or any device with a child named alias.
func matchPlug(alias string) common.Matcher {
	return func(info *kasa.SysInfo) bool {
		if !info.IsStrip() {
			return info.Alias == alias
		}

		_, found := info.FindChild(alias)

		return found
	}
}

// FindPlug picks the outlet named alias on the device described by info. A
// standalone plug configured under alias is its own outlet whatever name it
// reports.
func FindPlug(info *kasa.SysInfo, alias string) (domain.Plug, error) {
	plugs := common.ToStrip("", info).Plugs

	if !info.IsStrip() {
		return plugs[0], nil
	}

	for _, plug := range plugs {
		if plug.Alias == alias {
			return plug, nil
		}
	}

	return domain.Plug{}, fmt.Errorf("%w: %q on %q", common.ErrPlugNotFound, alias, info.Alias)
}

// Switch sets the power state of one outlet.
func Switch(ctx context.Context, target *common.Target, plug domain.Plug, on bool) error {
	if err := target.Client.SetRelayState(ctx, on, childIDs(plug)...); err != nil {
		return fmt.Errorf("plug %q: %w", plug.Alias, err)
	}

	logger.InfoKV(ctx, "Plug switched", "plug", plug.Alias, "state", domain.StateName(on))

	return nil
}

// Blink alternates the outlet on and off every interval for duration,
// starting with on, then restores the state it had before. The restore is
// attempted even when ctx is cancelled or a toggle fails.
func Blink(ctx context.Context, target *common.Target, plug domain.Plug, duration, interval time.Duration) error {
	logger.InfoKV(
		ctx,
		"Blinking plug",
		"plug", plug.Alias,
		"duration", duration.String(),
		"interval", interval.String(),
		"saved_state", domain.StateName(plug.IsOn),
	)

	blinkErr := blink(ctx, target, plug, duration, interval)

	// Restore even after SIGINT, bounded by the client call timeout.
	restoreErr := target.Client.SetRelayState(context.WithoutCancel(ctx), plug.IsOn, childIDs(plug)...)
	if restoreErr != nil {
		restoreErr = fmt.Errorf("restore plug %q: %w", plug.Alias, restoreErr)
	} else {
		logger.InfoKV(ctx, "Plug state restored", "plug", plug.Alias, "state", domain.StateName(plug.IsOn))
	}

	return multierr.Append(blinkErr, restoreErr)
}

// blink runs the toggle loop until duration elapses or ctx is done.
func blink(ctx context.Context, target *common.Target, plug domain.Plug, duration, interval time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	on := true

	for {
		if err := target.Client.SetRelayState(ctx, on, childIDs(plug)...); err != nil {
			if ctx.Err() != nil {
				logger.WarnKV(ctx, "Blink interrupted", "plug", plug.Alias)
				return ctx.Err()
			}

			return fmt.Errorf("blink plug %q: %w", plug.Alias, err)
		}

		logger.DebugKV(ctx, "Blink", "plug", plug.Alias, "state", domain.StateName(on))

		on = !on

		select {
		case <-ctx.Done():
			logger.WarnKV(ctx, "Blink interrupted", "plug", plug.Alias)
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-ticker.C:
		}
	}
}

// childIDs addresses a strip child, or the relay itself for a standalone plug.
func childIDs(plug domain.Plug) []string {
	if plug.ID == "" {
		return nil
	}

	return []string{plug.ID}
}
