package kasa_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hilo-software/strip-control/internal/kasa"
	"github.com/hilo-software/strip-control/internal/kasa/kasatest"
	"github.com/hilo-software/strip-control/internal/logger"
)

// TestDiscover finds a fake strip and returns an address usable with Dial.
func TestDiscover(t *testing.T) {
	t.Parallel()

	strip := kasatest.NewStrip(t, "Office Strip", "Monitor", "Lamp")

	devices, err := kasa.Discover(context.Background(), strip.DiscoveryAddr(), 300*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, strip.Addr(), devices[0].Address)
	require.Equal(t, "Office Strip", devices[0].Info.Alias)
	require.Len(t, devices[0].Info.Children, 2)

	// Discovery must not go through the TCP side.
	require.Empty(t, strip.Requests(kasa.MethodGetSysInfo))
}

// TestDiscover_NoReplies returns an empty result once the timeout elapses.
func TestDiscover_NoReplies(t *testing.T) {
	t.Parallel()

	strip := kasatest.NewStrip(t, "Office Strip", "Monitor")
	address := strip.DiscoveryAddr()
	strip.Close()

	devices, err := kasa.Discover(context.Background(), address, 100*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, devices)
}

// TestDiscover_Cancelled returns the context error when the caller gives up.
func TestDiscover_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := kasa.Discover(ctx, "127.0.0.1:9", time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

// TestDiscover_LargeReply accepts sysinfo replies bigger than a few kilobytes.
func TestDiscover_LargeReply(t *testing.T) {
	t.Parallel()

	plugAliases := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		plugAliases = append(plugAliases, fmt.Sprintf("Rack outlet number %02d", i))
	}

	strip := kasatest.NewStrip(t, "Rack Strip", plugAliases...)

	devices, err := kasa.Discover(context.Background(), strip.DiscoveryAddr(), 300*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Len(t, devices[0].Info.Children, 64)
}

// TestDiscover_UndecodableReply skips garbage and logs where it came from.
func TestDiscover_UndecodableReply(t *testing.T) {
	t.Parallel()

	responder, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() {
		_ = responder.Close()
	}()

	go func() {
		buffer := make([]byte, 1024)

		for {
			_, from, readErr := responder.ReadFrom(buffer)
			if readErr != nil {
				return
			}

			_, _ = responder.WriteTo(kasa.EncryptDatagram([]byte("not json")), from)
		}
	}()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	devices, err := kasa.Discover(ctx, responder.LocalAddr().String(), 200*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, devices)

	skipped := logs.FilterMessage("Skipping undecodable discovery reply").All()
	require.NotEmpty(t, skipped)
	require.Equal(t, responder.LocalAddr().String(), skipped[0].ContextMap()["from"])
}
