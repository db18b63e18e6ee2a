package kasa

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultPort is the TCP and UDP port of the Kasa local protocol.
	DefaultPort = 9999

	// DefaultTimeout bounds a single request when no option overrides it.
	DefaultTimeout = 5 * time.Second

	// maxFrameSize guards against garbage length prefixes.
	maxFrameSize = 64 * 1024
)

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errFrameTooLarge is returned when a reply announces an implausible size.
	errFrameTooLarge = errors.New("reply frame too large")
)

// Client is a connection to a single Kasa device. Requests are serialized
// over one TCP connection, which is opened by Dial and released by Close.
// A connection that failed mid-exchange is dropped and redialed by the next
// request, so a stale reply is never read as the answer to a new one.
type Client struct {
	// address is the host:port of the device.
	address string
	// conn is the underlying TCP connection, nil after a failed exchange.
	conn net.Conn
	// mu serializes request/reply exchanges on conn.
	mu sync.Mutex

	// callTimeout is the default timeout for dialing and for individual requests.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithTimeout sets a default timeout for dialing and for each request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// NormalizeAddress appends DefaultPort to a bare host and validates the port.
func NormalizeAddress(host string) (string, error) {
	if host == "" {
		return "", errAddressRequired
	}

	h, port, err := net.SplitHostPort(host)
	if err != nil {
		// No port: treat the whole value as the host.
		return net.JoinHostPort(host, strconv.Itoa(DefaultPort)), nil //nolint:nilerr // A bare host is valid input.
	}

	if h == "" {
		return "", fmt.Errorf("invalid device address %q: %w", host, errAddressRequired)
	}

	number, err := strconv.Atoi(port)
	if err != nil || number <= 0 || number > 65535 {
		return "", fmt.Errorf("invalid device port in %q", host)
	}

	return host, nil
}

// Dial connects to the device at host, using DefaultPort when host has no port.
func Dial(ctx context.Context, host string, opts ...Option) (*Client, error) {
	address, err := NormalizeAddress(host)
	if err != nil {
		return nil, err
	}

	client := &Client{
		address:     address,
		callTimeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	if err = client.connect(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

// connect opens the TCP connection.
func (c *Client) connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: c.callTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.address, err)
	}

	c.conn = conn

	return nil
}

// Address returns the host:port the client is connected to.
func (c *Client) Address() string {
	return c.address
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil

	return err
}

// SysInfo queries system.get_sysinfo.
func (c *Client) SysInfo(ctx context.Context) (*SysInfo, error) {
	var info SysInfo
	if err := c.Call(ctx, NewRequest(ModuleSystem, MethodGetSysInfo, nil), &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// SetRelayState switches the device relay, or only the given strip children
// when childIDs is not empty.
func (c *Client) SetRelayState(ctx context.Context, on bool, childIDs ...string) error {
	state := 0
	if on {
		state = 1
	}

	req := NewRequest(ModuleSystem, MethodSetRelayState, map[string]int{"state": state}, childIDs...)

	return c.Call(ctx, req, nil)
}

// Call sends a single-method request and decodes its result into out.
func (c *Client) Call(ctx context.Context, req Request, out any) error {
	module, method := req.Target()

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s.%s: %w", module, method, err)
	}

	reply, err := c.roundTrip(ctx, payload)
	if err != nil {
		return fmt.Errorf("%s.%s on %s: %w", module, method, c.address, err)
	}

	return decodeResponse(reply, module, method, out)
}

// roundTrip writes one frame and reads the matching reply frame.
func (c *Client) roundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return nil, err
		}
	}

	deadline := c.callDeadline(ctx)
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.drop()
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	// Unblock pending I/O as soon as the caller gives up.
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	defer func() {
		// A late cancellation may have poisoned the deadline of a healthy exchange.
		if !stop() {
			c.drop()
		}
	}()

	if _, err := c.conn.Write(Encrypt(payload)); err != nil {
		return nil, c.ioError(ctx, "write request", err)
	}

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, c.ioError(ctx, "read reply header", err)
	}

	size := binary.BigEndian.Uint32(header)
	if size > maxFrameSize {
		c.drop()
		return nil, fmt.Errorf("%w: %d bytes", errFrameTooLarge, size)
	}

	frame := make([]byte, headerSize+int(size))
	copy(frame, header)

	if _, err := io.ReadFull(c.conn, frame[headerSize:]); err != nil {
		return nil, c.ioError(ctx, "read reply body", err)
	}

	return Decrypt(frame)
}

// callDeadline returns the earlier of the context deadline and the call timeout.
func (c *Client) callDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.callTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}

	return deadline
}

// drop closes a connection whose stream position is no longer known.
func (c *Client) drop() {
	if c.conn == nil {
		return
	}

	_ = c.conn.Close()
	c.conn = nil
}

// ioError drops the connection and prefers the context error when the
// caller cancelled the exchange.
func (c *Client) ioError(ctx context.Context, op string, err error) error {
	c.drop()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}

	return fmt.Errorf("%s: %w", op, err)
}
