package strip

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hilo-software/strip-control/internal/config"
	"github.com/hilo-software/strip-control/internal/kasa"
	"github.com/hilo-software/strip-control/internal/kasa/kasatest"
	"github.com/hilo-software/strip-control/internal/service/common"
)

// writeConfig saves cfg in a temporary directory and returns its path.
func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()

	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = 200 * time.Millisecond
	}

	path := filepath.Join(t.TempDir(), "strip-control.yaml")
	require.NoError(t, config.Save(path, cfg))

	return path
}

// staticConfig binds alias to the fake device and turns discovery off.
func staticConfig(t *testing.T, alias string, device *kasatest.Device) string {
	t.Helper()

	return writeConfig(t, &config.Config{
		Devices:   []config.Device{{Alias: alias, Host: device.Addr()}},
		Discovery: config.Discovery{Disabled: true},
	})
}

// requireAllPlugs asserts every child of the fake strip is in state on.
func requireAllPlugs(t *testing.T, device *kasatest.Device, on bool) {
	t.Helper()

	for _, child := range device.SysInfo().Children {
		require.Equal(t, on, child.IsOn(), child.Alias)
	}
}

// TestRun_OnVariants turns the strip on for every case variant of "on".
func TestRun_OnVariants(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"on", "ON", "On"} {
		device := kasatest.NewStrip(t, "Office Strip", "Monitor", "Lamp", "Printer")

		err := Run(context.Background(), &Options{
			Settings: common.Settings{ConfigPath: staticConfig(t, "Office Strip", device)},
			Alias:    "Office Strip",
			Switch:   token,
		})
		require.NoError(t, err, token)
		requireAllPlugs(t, device, true)
		require.Len(t, device.Requests(kasa.MethodSetRelayState), 3, token)
	}
}

// TestRun_OffVariants turns the strip off for anything that is not "on".
func TestRun_OffVariants(t *testing.T) {
	t.Parallel()

	for _, token := range []string{"off", "OFF", "xyz", ""} {
		device := kasatest.NewStrip(t, "Office Strip", "Monitor", "Lamp")
		device.SetPlugState(0, true)
		device.SetPlugState(1, true)

		err := Run(context.Background(), &Options{
			Settings: common.Settings{ConfigPath: staticConfig(t, "Office Strip", device)},
			Alias:    "Office Strip",
			Switch:   token,
		})
		require.NoError(t, err, token)
		requireAllPlugs(t, device, false)
	}
}

// TestRun_Discovery resolves the strip through the broadcast probe.
func TestRun_Discovery(t *testing.T) {
	t.Parallel()

	device := kasatest.NewStrip(t, "Office Strip", "Monitor", "Lamp")
	cfgPath := writeConfig(t, &config.Config{
		Discovery: config.Discovery{BroadcastAddress: device.DiscoveryAddr()},
	})

	err := Run(context.Background(), &Options{
		Settings: common.Settings{ConfigPath: cfgPath},
		Alias:    "Office Strip",
		Switch:   "on",
	})
	require.NoError(t, err)
	requireAllPlugs(t, device, true)
}

// TestRun_UnknownAlias fails without modifying any plug state.
func TestRun_UnknownAlias(t *testing.T) {
	t.Parallel()

	device := kasatest.NewStrip(t, "Office Strip", "Monitor", "Lamp")
	device.SetPlugState(1, true)

	cfgPath := writeConfig(t, &config.Config{
		Discovery: config.Discovery{BroadcastAddress: device.DiscoveryAddr()},
	})

	err := Run(context.Background(), &Options{
		Settings: common.Settings{ConfigPath: cfgPath},
		Alias:    "Garage Strip",
		Switch:   "on",
	})
	require.ErrorIs(t, err, common.ErrDeviceNotFound)
	require.Empty(t, device.Requests(kasa.MethodSetRelayState))

	state := device.SysInfo()
	require.False(t, state.Children[0].IsOn())
	require.True(t, state.Children[1].IsOn())
}

// TestRun_NotAStrip refuses a configured alias that points at a single plug.
func TestRun_NotAStrip(t *testing.T) {
	t.Parallel()

	device := kasatest.NewPlug(t, "Kettle")

	err := Run(context.Background(), &Options{
		Settings: common.Settings{ConfigPath: staticConfig(t, "Kettle", device)},
		Alias:    "Kettle",
		Switch:   "on",
	})
	require.ErrorIs(t, err, common.ErrNotStrip)
	require.Empty(t, device.Requests(kasa.MethodSetRelayState))
	info := device.SysInfo()
	require.False(t, info.IsOn())
}

// TestRun_DiscoveredPlugSameAlias ignores a single plug that answers discovery with the strip's alias.
func TestRun_DiscoveredPlugSameAlias(t *testing.T) {
	t.Parallel()

	device := kasatest.NewPlug(t, "Office Strip")
	cfgPath := writeConfig(t, &config.Config{
		Discovery: config.Discovery{BroadcastAddress: device.DiscoveryAddr()},
	})

	err := Run(context.Background(), &Options{
		Settings: common.Settings{ConfigPath: cfgPath},
		Alias:    "Office Strip",
		Switch:   "on",
	})
	require.ErrorIs(t, err, common.ErrDeviceNotFound)
	require.Empty(t, device.Requests(kasa.MethodSetRelayState))
	info := device.SysInfo()
	require.False(t, info.IsOn())
}

// TestMatchStrip rejects plugs and aliases that differ in case.
func TestMatchStrip(t *testing.T) {
	t.Parallel()

	match := matchStrip("Office Strip")

	require.True(t, match(&kasa.SysInfo{Alias: "Office Strip", Children: []kasa.ChildInfo{{ID: "00"}}}))
	require.False(t, match(&kasa.SysInfo{Alias: "Office Strip"}))
	require.False(t, match(&kasa.SysInfo{Alias: "office strip", Children: []kasa.ChildInfo{{ID: "00"}}}))
}

// TestRun_Unreachable reports a connectivity error for a configured strip that is down.
func TestRun_Unreachable(t *testing.T) {
	t.Parallel()

	device := kasatest.NewStrip(t, "Office Strip", "Monitor")
	cfgPath := staticConfig(t, "Office Strip", device)
	device.Close()

	err := Run(context.Background(), &Options{
		Settings: common.Settings{ConfigPath: cfgPath},
		Alias:    "Office Strip",
		Switch:   "on",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Office Strip")
}

// TestRun_PartialFailure switches the healthy plugs and reports the failing one.
func TestRun_PartialFailure(t *testing.T) {
	t.Parallel()

	device := kasatest.NewStrip(t, "Office Strip", "Monitor", "Lamp", "Printer")
	device.FailRelay(1, -3)

	metricsPath := filepath.Join(t.TempDir(), "strip_control.prom")

	err := Run(context.Background(), &Options{
		Settings: common.Settings{
			ConfigPath:  staticConfig(t, "Office Strip", device),
			MetricsFile: metricsPath,
		},
		Alias:  "Office Strip",
		Switch: "on",
	})

	var responseErr *kasa.ResponseError
	require.ErrorAs(t, err, &responseErr)
	require.Contains(t, err.Error(), `plug "Lamp"`)

	state := device.SysInfo()
	require.True(t, state.Children[0].IsOn())
	require.False(t, state.Children[1].IsOn())
	require.True(t, state.Children[2].IsOn())

	contents, readErr := os.ReadFile(metricsPath)
	require.NoError(t, readErr)
	require.Contains(t, string(contents), `strip_control_last_run_success{target="Office Strip",tool="strip-control"} 0`)
	require.Contains(t, string(contents), `strip_control_plug_state{plug="Lamp",target="Office Strip",tool="strip-control"} 0`)
}

// TestRun_LogFile leaves START and FINI lines in the log file.
//
//nolint:paralleltest // The log file sink swaps the global logger.
func TestRun_LogFile(t *testing.T) {
	device := kasatest.NewStrip(t, "Office Strip", "Monitor")
	logPath := filepath.Join(t.TempDir(), "strip_control.log")

	err := Run(context.Background(), &Options{
		Settings: common.Settings{
			ConfigPath: staticConfig(t, "Office Strip", device),
			LogFile:    logPath,
		},
		Alias:  "Office Strip",
		Switch: "on",
	})
	require.NoError(t, err)

	contents, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(contents), ">>>>> START")
	require.Contains(t, string(contents), ">>>>> FINI")
	require.Contains(t, string(contents), "Plug switched")
}
