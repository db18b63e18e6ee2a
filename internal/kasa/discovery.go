package kasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/hilo-software/strip-control/internal/logger"
)

const (
	// discoveryAttempts is how many probes are sent, since UDP may drop some.
	discoveryAttempts = 3
	// maxDatagramSize bounds a single discovery reply; strips with many
	// children answer with several kilobytes.
	maxDatagramSize = maxFrameSize
)

// Discovered is a device that answered the broadcast probe.
type Discovered struct {
	// Address is the host:port the reply came from, usable with Dial.
	Address string
	// Info is the sysinfo carried by the reply.
	Info *SysInfo
}

// Discover broadcasts a get_sysinfo probe to broadcastAddress and collects
// replies until timeout elapses or ctx is done. Replies that cannot be
// decoded are skipped. The result is sorted by address.
func Discover(ctx context.Context, broadcastAddress string, timeout time.Duration) ([]*Discovered, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := net.ResolveUDPAddr("udp4", broadcastAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast address: %w", err)
	}

	lc := net.ListenConfig{}

	packetConn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("open discovery socket: %w", err)
	}

	defer func() {
		_ = packetConn.Close()
	}()

	probe, err := json.Marshal(NewRequest(ModuleSystem, MethodGetSysInfo, nil))
	if err != nil {
		return nil, fmt.Errorf("encode probe: %w", err)
	}

	datagram := EncryptDatagram(probe)
	for i := 0; i < discoveryAttempts; i++ {
		if _, err = packetConn.WriteTo(datagram, target); err != nil {
			return nil, fmt.Errorf("send probe to %s: %w", broadcastAddress, err)
		}
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err = packetConn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = packetConn.SetReadDeadline(time.Now())
	})
	defer stop()

	found := make(map[string]*Discovered)
	buffer := make([]byte, maxDatagramSize)

	for {
		n, from, readErr := packetConn.ReadFrom(buffer)
		if readErr != nil {
			var netErr net.Error
			if errors.As(readErr, &netErr) && netErr.Timeout() {
				break
			}

			return nil, fmt.Errorf("read discovery reply: %w", readErr)
		}

		if _, seen := found[from.String()]; seen {
			continue
		}

		var info SysInfo
		if decodeErr := decodeResponse(DecryptDatagram(buffer[:n]), ModuleSystem, MethodGetSysInfo, &info); decodeErr != nil {
			logger.DebugKV(ctx, "Skipping undecodable discovery reply", "from", from.String(), "size", n, "error", decodeErr)
			continue
		}

		found[from.String()] = &Discovered{
			Address: from.String(),
			Info:    &info,
		}
	}

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	devices := make([]*Discovered, 0, len(found))
	for _, device := range found {
		devices = append(devices, device)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Address < devices[j].Address
	})

	return devices, nil
}
