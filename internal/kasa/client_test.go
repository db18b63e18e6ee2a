package kasa_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hilo-software/strip-control/internal/kasa"
	"github.com/hilo-software/strip-control/internal/kasa/kasatest"
)

// TestNormalizeAddress checks default port handling and port validation.
func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	address, err := kasa.NormalizeAddress("192.168.1.70")
	require.NoError(t, err)
	require.Equal(t, "192.168.1.70:9999", address)

	address, err = kasa.NormalizeAddress("strip.lan:10000")
	require.NoError(t, err)
	require.Equal(t, "strip.lan:10000", address)

	address, err = kasa.NormalizeAddress("fe80::1")
	require.NoError(t, err)
	require.Equal(t, "[fe80::1]:9999", address)

	_, err = kasa.NormalizeAddress("")
	require.Error(t, err)

	_, err = kasa.NormalizeAddress("192.168.1.70:http")
	require.Error(t, err)
}

// TestClient_SysInfo reads the children of a fake strip.
func TestClient_SysInfo(t *testing.T) {
	t.Parallel()

	strip := kasatest.NewStrip(t, "Office Strip", "Monitor", "Lamp", "Printer")

	client, err := kasa.Dial(context.Background(), strip.Addr(), kasa.WithTimeout(time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	info, err := client.SysInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Office Strip", info.Alias)
	require.True(t, info.IsStrip())
	require.Len(t, info.Children, 3)
	require.Equal(t, "Lamp", info.Children[1].Alias)
	require.False(t, info.Children[1].IsOn())
}

// TestClient_SetRelayState_Child switches one child and leaves the others untouched.
func TestClient_SetRelayState_Child(t *testing.T) {
	t.Parallel()

	strip := kasatest.NewStrip(t, "Office Strip", "Monitor", "Lamp")

	client, err := kasa.Dial(context.Background(), strip.Addr())
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	info, err := client.SysInfo(context.Background())
	require.NoError(t, err)

	lamp := info.ChildID(info.Children[1])
	require.NoError(t, client.SetRelayState(context.Background(), true, lamp))

	requests := strip.Requests(kasa.MethodSetRelayState)
	require.Len(t, requests, 1)
	require.Equal(t, []string{lamp}, requests[0].ChildIDs())

	state := strip.SysInfo()
	require.False(t, state.Children[0].IsOn())
	require.True(t, state.Children[1].IsOn())
}

// TestClient_SetRelayState_Plug switches a single-outlet plug.
func TestClient_SetRelayState_Plug(t *testing.T) {
	t.Parallel()

	plug := kasatest.NewPlug(t, "Kettle")

	client, err := kasa.Dial(context.Background(), plug.Addr())
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	require.NoError(t, client.SetRelayState(context.Background(), true))

	info := plug.SysInfo()
	require.True(t, info.IsOn())
}

// TestClient_ResponseError surfaces a non-zero err_code as *kasa.ResponseError.
func TestClient_ResponseError(t *testing.T) {
	t.Parallel()

	strip := kasatest.NewStrip(t, "Office Strip", "Monitor")
	strip.FailRelay(0, -3)

	client, err := kasa.Dial(context.Background(), strip.Addr())
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	info, err := client.SysInfo(context.Background())
	require.NoError(t, err)

	err = client.SetRelayState(context.Background(), true, info.ChildID(info.Children[0]))

	var responseErr *kasa.ResponseError
	require.ErrorAs(t, err, &responseErr)
	require.Equal(t, -3, responseErr.Code)
	require.Equal(t, kasa.MethodSetRelayState, responseErr.Method)
}

// TestClient_UnsupportedModule maps a module level error to *kasa.ResponseError.
func TestClient_UnsupportedModule(t *testing.T) {
	t.Parallel()

	plug := kasatest.NewPlug(t, "Kettle")

	client, err := kasa.Dial(context.Background(), plug.Addr())
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	err = client.Call(context.Background(), kasa.NewRequest("emeter", "get_realtime", nil), nil)

	var responseErr *kasa.ResponseError
	require.ErrorAs(t, err, &responseErr)
	require.Equal(t, "module not support", responseErr.Message)
}

// TestDial_Unreachable reports a connectivity error for a closed port.
func TestDial_Unreachable(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	address := listener.Addr().String()
	require.NoError(t, listener.Close())

	client, err := kasa.Dial(context.Background(), address, kasa.WithTimeout(500*time.Millisecond))
	require.Error(t, err)
	require.Nil(t, client)
}

// TestClient_SilentDevice times out when a device accepts but never answers.
func TestClient_SilentDevice(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() {
		_ = listener.Close()
	}()

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}

		defer func() {
			_ = conn.Close()
		}()

		buffer := make([]byte, 1024)
		for {
			if _, readErr := conn.Read(buffer); readErr != nil {
				return
			}
		}
	}()

	client, err := kasa.Dial(context.Background(), listener.Addr().String(), kasa.WithTimeout(100*time.Millisecond))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	started := time.Now()
	_, err = client.SysInfo(context.Background())
	require.Error(t, err)
	require.Less(t, time.Since(started), 2*time.Second)
}

// TestClient_RedialsAfterCancel keeps working after an exchange was cancelled.
func TestClient_RedialsAfterCancel(t *testing.T) {
	t.Parallel()

	strip := kasatest.NewStrip(t, "Office Strip", "Monitor")

	client, err := kasa.Dial(context.Background(), strip.Addr(), kasa.WithTimeout(time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	// The outcome races with the cancellation; only the next call matters.
	_ = client.SetRelayState(cancelled, true)

	info, err := client.SysInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Office Strip", info.Alias)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}
