// Package kasatest provides an in-process Kasa device for tests, in the
// spirit of net/http/httptest. It speaks the TCP protocol and answers UDP
// discovery probes on the same loopback port.
package kasatest

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/hilo-software/strip-control/internal/kasa"
)

const (
	// bindAttempts is how many TCP ports are tried to find a free UDP twin.
	bindAttempts = 20
	// errCodeNoChild is what real strips answer for an unknown child id.
	errCodeNoChild = -14
	// errCodeNoModule is what real devices answer for an unknown module.
	errCodeNoModule = -1
)

// Device is a fake strip or plug bound to 127.0.0.1.
type Device struct {
	t testing.TB

	mu         sync.Mutex
	info       kasa.SysInfo
	requests   []kasa.Request
	relayFails map[string]int

	listener   net.Listener
	packetConn net.PacketConn
	conns      map[net.Conn]struct{}
	closed     bool
	wg         sync.WaitGroup
}

// NewStrip starts a fake strip with one child per plug alias, all off.
func NewStrip(t testing.TB, alias string, plugAliases ...string) *Device {
	t.Helper()

	deviceID := fmt.Sprintf("8006%036X", len(alias))
	info := kasa.SysInfo{
		Alias:    alias,
		Model:    "HS300(US)",
		DeviceID: deviceID,
		Type:     "IOT.SMARTPLUGSWITCH",
		ChildNum: len(plugAliases),
	}

	for i, plugAlias := range plugAliases {
		info.Children = append(info.Children, kasa.ChildInfo{
			ID:    deviceID + fmt.Sprintf("%02d", i),
			Alias: plugAlias,
		})
	}

	return start(t, info)
}

// NewPlug starts a fake single-outlet plug, initially off.
func NewPlug(t testing.TB, alias string) *Device {
	t.Helper()

	return start(t, kasa.SysInfo{
		Alias:    alias,
		Model:    "KP115(US)",
		DeviceID: fmt.Sprintf("8006%036X", len(alias)+1),
		Type:     "IOT.SMARTPLUGSWITCH",
	})
}

// start binds TCP and UDP on the same port and serves both until cleanup.
func start(t testing.TB, info kasa.SysInfo) *Device {
	t.Helper()

	d := &Device{
		t:          t,
		info:       info,
		relayFails: make(map[string]int),
		conns:      make(map[net.Conn]struct{}),
	}

	var err error

	for i := 0; i < bindAttempts; i++ {
		d.listener, err = net.Listen("tcp4", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("kasatest: listen: %v", err)
		}

		d.packetConn, err = net.ListenPacket("udp4", d.listener.Addr().String())
		if err == nil {
			break
		}

		_ = d.listener.Close()
	}

	if err != nil {
		t.Fatalf("kasatest: no free tcp/udp port pair: %v", err)
	}

	d.wg.Add(2)

	go d.serveTCP()
	go d.serveUDP()

	t.Cleanup(d.Close)

	return d
}

// Close stops the device and waits for its goroutines.
func (d *Device) Close() {
	_ = d.listener.Close()
	_ = d.packetConn.Close()

	d.mu.Lock()
	d.closed = true
	for conn := range d.conns {
		_ = conn.Close()
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// Addr is the TCP address to use with kasa.Dial.
func (d *Device) Addr() string {
	return d.listener.Addr().String()
}

// DiscoveryAddr is the UDP address to send discovery probes to.
func (d *Device) DiscoveryAddr() string {
	return d.packetConn.LocalAddr().String()
}

// SysInfo returns a copy of the current device state.
func (d *Device) SysInfo() kasa.SysInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := d.info
	info.Children = append([]kasa.ChildInfo(nil), d.info.Children...)

	return info
}

// SetPlugState changes the state of the child at index, or of the relay for a plug.
func (d *Device) SetPlugState(index int, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.info.Children) == 0 {
		d.info.RelayState = boolToState(on)
		return
	}

	d.info.Children[index].State = boolToState(on)
}

// FailRelay makes set_relay_state for the child at index answer err_code.
func (d *Device) FailRelay(index, errCode int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.relayFails[d.info.ChildID(d.info.Children[index])] = errCode
}

// Requests returns the TCP requests received for method, in order.
func (d *Device) Requests(method string) []kasa.Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	var matched []kasa.Request

	for _, req := range d.requests {
		if _, m := req.Target(); m == method {
			matched = append(matched, req)
		}
	}

	return matched
}

// serveTCP accepts connections until the listener is closed.
func (d *Device) serveTCP() {
	defer d.wg.Done()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			_ = conn.Close()

			return
		}

		d.conns[conn] = struct{}{}
		d.mu.Unlock()

		d.wg.Add(1)

		go d.serveConn(conn)
	}
}

// serveConn answers framed requests on one connection until EOF.
func (d *Device) serveConn(conn net.Conn) {
	defer d.wg.Done()

	defer func() {
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()

		_ = conn.Close()
	}()

	for {
		header := make([]byte, 4)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}

		frame := make([]byte, 4+int(binary.BigEndian.Uint32(header)))
		copy(frame, header)

		if _, err := io.ReadFull(conn, frame[4:]); err != nil {
			return
		}

		payload, err := kasa.Decrypt(frame)
		if err != nil {
			d.t.Errorf("kasatest: decrypt request: %v", err)
			return
		}

		reply, err := d.handle(payload, true)
		if err != nil {
			d.t.Errorf("kasatest: %v", err)
			return
		}

		if _, err = conn.Write(kasa.Encrypt(reply)); err != nil {
			return
		}
	}
}

// serveUDP answers discovery probes until the socket is closed.
func (d *Device) serveUDP() {
	defer d.wg.Done()

	buffer := make([]byte, 4096)

	for {
		n, from, err := d.packetConn.ReadFrom(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			continue
		}

		reply, err := d.handle(kasa.DecryptDatagram(buffer[:n]), false)
		if err != nil {
			continue
		}

		_, _ = d.packetConn.WriteTo(kasa.EncryptDatagram(reply), from)
	}
}

// handle executes one request against the fake state and builds the reply.
func (d *Device) handle(payload []byte, record bool) ([]byte, error) {
	req, err := kasa.ParseRequest(payload)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if record {
		d.requests = append(d.requests, req)
	}

	module, method := req.Target()

	switch {
	case module == kasa.ModuleSystem && method == kasa.MethodGetSysInfo:
		return d.sysInfoReply()
	case module == kasa.ModuleSystem && method == kasa.MethodSetRelayState:
		return d.setRelayReply(req)
	default:
		return json.Marshal(map[string]any{
			module: map[string]any{"err_code": errCodeNoModule, "err_msg": "module not support"},
		})
	}
}

// sysInfoReply serializes the current state with err_code 0.
func (d *Device) sysInfoReply() ([]byte, error) {
	raw, err := json.Marshal(d.info)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err = json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}

	result["err_code"] = 0

	return json.Marshal(map[string]any{
		kasa.ModuleSystem: map[string]any{kasa.MethodGetSysInfo: result},
	})
}

// setRelayReply applies set_relay_state to the relay or to the targeted children.
func (d *Device) setRelayReply(req kasa.Request) ([]byte, error) {
	var params struct {
		State int `json:"state"`
	}

	if err := req.Params(&params); err != nil {
		return nil, err
	}

	errCode := 0
	childIDs := req.ChildIDs()

	switch {
	case len(childIDs) == 0 && len(d.info.Children) == 0:
		d.info.RelayState = params.State
	case len(childIDs) == 0:
		for i := range d.info.Children {
			d.info.Children[i].State = params.State
		}
	default:
		errCode = d.applyToChildren(childIDs, params.State)
	}

	return json.Marshal(map[string]any{
		kasa.ModuleSystem: map[string]any{kasa.MethodSetRelayState: map[string]any{"err_code": errCode}},
	})
}

// applyToChildren sets state on every listed child and returns the first error code.
func (d *Device) applyToChildren(childIDs []string, state int) int {
	for _, id := range childIDs {
		if code, failing := d.relayFails[id]; failing {
			return code
		}

		index := -1

		for i, child := range d.info.Children {
			if d.info.ChildID(child) == id {
				index = i
			}
		}

		if index < 0 {
			return errCodeNoChild
		}

		d.info.Children[index].State = state
	}

	return 0
}

// boolToState maps on/off to the protocol's 1/0.
func boolToState(on bool) int {
	if on {
		return 1
	}

	return 0
}
