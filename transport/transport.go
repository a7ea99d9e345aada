// transport.go - Application server request transport.
// Copyright (C) 2026  Feedbactory Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package transport moves request bodies to the application server and
// back.  Each request uses its own TCP connection: the client writes the
// general request header and body, half closes, and reads the response
// until EOF.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/net/proxy"
	"gopkg.in/op/go-logging.v1"

	"github.com/feedbactory/client/constants"
	"github.com/feedbactory/client/internal/instrument"
	"github.com/feedbactory/client/wire"
)

// NoTime is the server time sent before the clock sync handshake.
const NoTime int64 = -1

const maxResponseLength = 1 << 20

var (
	// ErrNoHandshake is returned when the server time is requested before
	// the clock sync handshake has completed.
	ErrNoHandshake = errors.New("transport: handshake has not been performed")

	// ErrMalformedResponse wraps a response header that could not be
	// decoded.
	ErrMalformedResponse = errors.New("transport: malformed response")
)

// Status is the transport level outcome of a request.
type Status int

const (
	// StatusOK means a response body was received.
	StatusOK Status = iota

	// StatusConsumed means the request was handled without a body for the
	// caller, e.g. the server was busy or the client was shut down.
	StatusConsumed

	// StatusFailedTimeout means the connection or read timed out.
	StatusFailedTimeout

	// StatusFailedNetworkOther means any other connection failure.
	StatusFailedNetworkOther
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusConsumed:
		return "consumed"
	case StatusFailedTimeout:
		return "failed-timeout"
	case StatusFailedNetworkOther:
		return "failed-network-other"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// SendOptions tune a single request.
type SendOptions struct {
	// Timeout bounds the dial and the whole exchange.  Zero uses the
	// client default.
	Timeout time.Duration

	// Priority requests are still sent after Shutdown.
	Priority bool
}

// Observer receives the server state carried in every response header.
// Callbacks run on the requesting goroutine with the request lock held.
type Observer interface {
	AddressStanding(wire.IPAddressStanding)
	ServerStatus(wire.ServerStatus, wire.Message)
	Compatibility(wire.Compatibility)
	BroadcastMessage(wire.Message)
	NetworkFailure(Status)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) AddressStanding(wire.IPAddressStanding)      {}
func (NopObserver) ServerStatus(wire.ServerStatus, wire.Message) {}
func (NopObserver) Compatibility(wire.Compatibility)            {}
func (NopObserver) BroadcastMessage(wire.Message)               {}
func (NopObserver) NetworkFailure(Status)                       {}

// Config is the transport configuration.
type Config struct {
	// Address is the application server host:port.
	Address string

	// RequestIdentifier leads every request.
	RequestIdentifier int32

	// ClientVersion is sent in every request header.
	ClientVersion int64

	// Timeout is the default request timeout.  Zero disables it.
	Timeout time.Duration

	// UpstreamProxy is an optional proxy URL, e.g. socks5://127.0.0.1:9050.
	UpstreamProxy string

	Logger   *logging.Logger
	Observer Observer

	// Dialer overrides the dialer derived from UpstreamProxy.
	Dialer proxy.ContextDialer

	// Clock overrides time.Now.
	Clock func() time.Time
}

// Client is the request transport.  Requests are serialized.
type Client struct {
	cfg    Config
	log    *logging.Logger
	obs    Observer
	dialer proxy.ContextDialer
	now    func() time.Time

	mu              sync.Mutex
	lastServerTime  int64
	timeDifference  time.Duration
	lastStatus      wire.ServerStatus
	lastCompat      wire.Compatibility
	haveCompat      bool
	serverAvailable bool

	connMu   sync.Mutex
	conn     net.Conn
	shutdown bool
}

// New returns a Client.
func New(cfg *Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("transport: no server address")
	}
	c := &Client{
		cfg:            *cfg,
		log:            cfg.Logger,
		obs:            cfg.Observer,
		dialer:         cfg.Dialer,
		now:            cfg.Clock,
		lastServerTime: NoTime,
	}
	if c.log == nil {
		c.log = logging.MustGetLogger("transport")
	}
	if c.obs == nil {
		c.obs = NopObserver{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.dialer == nil {
		d, err := newDialer(cfg.UpstreamProxy)
		if err != nil {
			return nil, err
		}
		c.dialer = d
	}
	return c, nil
}

func newDialer(upstream string) (proxy.ContextDialer, error) {
	direct := &net.Dialer{}
	if upstream == "" {
		return direct, nil
	}
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid upstream proxy: %w", err)
	}
	d, err := proxy.FromURL(u, direct)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid upstream proxy: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("transport: upstream proxy %q does not support timeouts", u.Scheme)
	}
	return cd, nil
}

// HasHandshake returns true once the clock sync handshake has completed.
func (c *Client) HasHandshake() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastServerTime != NoTime
}

// CheckHandshake performs the clock sync handshake, an empty request, if
// it has not yet been done.
func (c *Client) CheckHandshake() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkHandshake(SendOptions{})
}

func (c *Client) checkHandshake(opts SendOptions) (Status, error) {
	if c.lastServerTime != NoTime {
		return StatusOK, nil
	}
	st, _, err := c.send(nil, opts)
	return st, err
}

// ApproximateServerTime returns the local clock corrected by the
// difference observed in the most recent response, in epoch milliseconds.
func (c *Client) ApproximateServerTime() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastServerTime == NoTime {
		return 0, ErrNoHandshake
	}
	return c.now().Add(c.timeDifference).UnixMilli(), nil
}

// ServerTimeDifference returns server time minus local time.
func (c *Client) ServerTimeDifference() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastServerTime == NoTime {
		return 0, ErrNoHandshake
	}
	return c.timeDifference, nil
}

// Send sends body, performing the handshake first if required, and
// returns the response body that follows the general response header.
// An error is only returned for a malformed response header.
func (c *Client) Send(body []byte, opts SendOptions) (Status, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, err := c.checkHandshake(opts); st != StatusOK || err != nil {
		return st, nil, err
	}
	return c.send(body, opts)
}

// LastServerStatus returns the server status and client compatibility
// reported by the most recent response.
func (c *Client) LastServerStatus() (wire.ServerStatus, wire.Compatibility) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus, c.lastCompat
}

// Shutdown rejects further non priority requests and aborts any request in
// flight.
func (c *Client) Shutdown() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.shutdown = true
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) isShutdown() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.shutdown
}

func (c *Client) send(body []byte, opts SendOptions) (Status, []byte, error) {
	if !opts.Priority && c.isShutdown() {
		return StatusConsumed, nil, nil
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.cfg.Timeout
	}

	w := wire.NewWriter(20 + len(body))
	w.PutInt32(c.cfg.RequestIdentifier)
	w.PutInt64(c.cfg.ClientVersion)
	w.PutInt64(c.lastServerTime)
	w.PutBytes(body)

	start := time.Now()
	resp, err := c.roundTrip(w.Bytes(), timeout)
	instrument.RequestDuration(time.Since(start))
	if err != nil {
		st := c.classify(err)
		if st != StatusConsumed {
			c.obs.NetworkFailure(st)
		}
		return st, nil, nil
	}
	if len(resp) == 0 {
		c.log.Warning("Empty response from server.")
		return StatusConsumed, nil, nil
	}
	return c.processResponse(resp)
}

func (c *Client) classify(err error) Status {
	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return StatusFailedTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return StatusFailedTimeout
	case c.isShutdown():
		return StatusConsumed
	}
	c.log.Errorf("Request failed: %v", err)
	return StatusFailedNetworkOther
}

func (c *Client) roundTrip(req []byte, timeout time.Duration) ([]byte, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
	}()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(io.LimitReader(conn, maxResponseLength))
}

func (c *Client) processResponse(resp []byte) (Status, []byte, error) {
	r := wire.NewReader(resp)

	standing, err := wire.ParseIPAddressStanding(r.Byte("ip address standing"))
	r.Check("ip address standing", err)
	if r.Err() != nil {
		return StatusOK, nil, fmt.Errorf("%w: %w", ErrMalformedResponse, r.Err())
	}
	if standing != wire.StandingOK {
		c.log.Warningf("Server reports address standing %d.", standing)
		c.obs.AddressStanding(standing)
		return StatusConsumed, nil, nil
	}

	status, err := wire.ParseServerStatus(r.Byte("server status"))
	r.Check("server status", err)
	var notice wire.Message
	if status == wire.ServerNotAvailable {
		notice = r.Message("server status message")
	}
	if r.Err() != nil {
		return StatusOK, nil, fmt.Errorf("%w: %w", ErrMalformedResponse, r.Err())
	}
	if status != wire.ServerAvailable {
		c.serverAvailable = false
		c.lastStatus = status
		c.obs.ServerStatus(status, notice)
		return StatusConsumed, nil, nil
	}
	if !c.serverAvailable {
		c.serverAvailable = true
		c.lastStatus = status
		c.obs.ServerStatus(status, wire.Message{})
	}

	compat, err := wire.ParseCompatibility(r.Byte("client compatibility"))
	r.Check("client compatibility", err)
	if r.Err() != nil {
		return StatusOK, nil, fmt.Errorf("%w: %w", ErrMalformedResponse, r.Err())
	}
	if !c.haveCompat || compat != c.lastCompat {
		c.haveCompat = true
		c.lastCompat = compat
		c.obs.Compatibility(compat)
	}
	if compat == wire.UpdateRequired {
		return StatusConsumed, nil, nil
	}

	serverTime := r.Int64("server time")
	broadcast := r.Message("broadcast message")
	if r.Err() != nil {
		return StatusOK, nil, fmt.Errorf("%w: %w", ErrMalformedResponse, r.Err())
	}
	c.lastServerTime = serverTime
	c.timeDifference = time.UnixMilli(serverTime).Sub(c.now())
	if !broadcast.IsEmpty() {
		c.obs.BroadcastMessage(broadcast)
	}
	return StatusOK, r.Rest(), nil
}

// DefaultConfig returns a Config populated with the protocol defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:           constants.DefaultServerAddress,
		RequestIdentifier: constants.DefaultRequestIdentifier,
		ClientVersion:     constants.ClientVersion,
		Timeout:           constants.DefaultDialTimeout,
	}
}
