//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hilo-software/strip-control/internal/config"
	domain "github.com/hilo-software/strip-control/internal/domain/strip"
	"github.com/hilo-software/strip-control/internal/kasa"
	"github.com/hilo-software/strip-control/internal/logger"
)

var (
	// ErrDeviceNotFound is returned when no static binding or discovered device matches the alias.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrNotStrip is returned when the alias resolves to a device without outlets to enumerate.
	ErrNotStrip = errors.New("device is not a smart strip")
	// ErrPlugNotFound is returned when a resolved device has no outlet with the alias.
	ErrPlugNotFound = errors.New("plug not found")
)

// Target is a device resolved for one invocation, with its connection open.
type Target struct {
	// Client is the open connection to the device.
	Client *kasa.Client
	// Info is the sysinfo read right after connecting.
	Info *kasa.SysInfo
}

// Close releases the device connection.
func (t *Target) Close() error {
	if t == nil {
		return nil
	}

	return t.Client.Close()
}

// Refresh re-reads the sysinfo of the device.
func (t *Target) Refresh(ctx context.Context) error {
	info, err := t.Client.SysInfo(ctx)
	if err != nil {
		return err
	}

	t.Info = info

	return nil
}

// Strip converts the current sysinfo into the domain model.
func (t *Target) Strip() *domain.Strip {
	return ToStrip(t.Client.Address(), t.Info)
}

// Matcher decides whether a discovered device answers to the requested alias.
type Matcher func(info *kasa.SysInfo) bool

// DialDevice connects to address and reads its sysinfo.
func DialDevice(ctx context.Context, address string, timeout time.Duration) (*Target, error) {
	client, err := kasa.Dial(ctx, address, kasa.WithTimeout(timeout))
	if err != nil {
		return nil, err
	}

	info, err := client.SysInfo(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Target{
		Client: client,
		Info:   info,
	}, nil
}

// Locate resolves alias to a connected device.
//
// A static binding from the configuration wins and is trusted as is.
// Otherwise the devices answering discovery are checked in address order and
// the first one accepted by match is dialed. Nothing is sent to any device
// beyond sysinfo queries, so a failed lookup leaves every outlet untouched.
func Locate(ctx context.Context, cfg *config.Config, alias string, match Matcher) (*Target, error) {
	if device, found := cfg.LookupDevice(alias); found {
		logger.InfoKV(ctx, "Using configured device", "alias", alias, "host", device.Host)

		target, err := DialDevice(ctx, device.Host, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("reach %q at %s: %w", alias, device.Host, err)
		}

		return target, nil
	}

	if cfg.Discovery.Disabled {
		return nil, fmt.Errorf("%w: %q is not configured and discovery is disabled", ErrDeviceNotFound, alias)
	}

	devices, err := DiscoverDevices(ctx, cfg)
	if err != nil {
		return nil, err
	}

	for _, device := range devices {
		if !match(device.Info) {
			continue
		}

		logger.InfoKV(ctx, "Device found", "alias", alias, "address", device.Address)

		target, err := DialDevice(ctx, device.Address, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("reach %q at %s: %w", alias, device.Address, err)
		}

		return target, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, alias)
}

// DiscoverDevices broadcasts the discovery probe and logs every device that answered.
func DiscoverDevices(ctx context.Context, cfg *config.Config) ([]*kasa.Discovered, error) {
	logger.InfoKV(
		ctx,
		"Discovering devices",
		"broadcast_address", cfg.Discovery.BroadcastAddress,
		"timeout", cfg.Discovery.Timeout.String(),
	)

	devices, err := kasa.Discover(ctx, cfg.Discovery.BroadcastAddress, cfg.Discovery.Timeout)
	if err != nil {
		return nil, fmt.Errorf("discover devices: %w", err)
	}

	for _, device := range devices {
		logger.InfoKV(
			ctx,
			"Discovered device",
			"alias", device.Info.Alias,
			"model", device.Info.Model,
			"address", device.Address,
			"is_strip", device.Info.IsStrip(),
		)
	}

	return devices, nil
}

// ToStrip converts a sysinfo reply into the domain model. A standalone plug
// becomes a strip with a single outlet that has no child id.
func ToStrip(address string, info *kasa.SysInfo) *domain.Strip {
	strip := &domain.Strip{
		Alias:   info.Alias,
		Address: address,
		Model:   info.Model,
	}

	if !info.IsStrip() {
		strip.Plugs = []domain.Plug{{
			Alias: info.Alias,
			IsOn:  info.IsOn(),
		}}

		return strip
	}

	strip.Plugs = make([]domain.Plug, 0, len(info.Children))
	for _, child := range info.Children {
		strip.Plugs = append(strip.Plugs, domain.Plug{
			ID:    info.ChildID(child),
			Alias: child.Alias,
			IsOn:  child.IsOn(),
		})
	}

	return strip
}
