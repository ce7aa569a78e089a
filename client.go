// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package mqtt provides a blocking MQTT v3.1.1 client which composes and
// receives every packet in a single fixed-capacity buffer.
package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/mochi-mqtt/client/hooks/storage"
	"github.com/mochi-mqtt/client/packets"
	"github.com/mochi-mqtt/client/system"
	"github.com/mochi-mqtt/client/transports"
	"github.com/rs/xid"
)

const (
	Version            = "1.0.0" // the current client version.
	maxPacketID        = 65535   // packet ids wrap back to 1 on reaching this value
	defaultDialTimeout = 10      // seconds
	defaultHTTPTimeout = 60      // seconds
)

// State is the connection state of a client.
type State uint32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Options contains configurable options for the client.
type Options struct {
	// ClientID is sent in the connect packet. A random id is generated if empty.
	ClientID string `yaml:"client_id" json:"client_id"`

	// Username and Password are sent in the connect packet if set. Credentials
	// in a connect url take precedence.
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// Keepalive is the keepalive period in seconds. Reads time out after half
	// of it, and a blocking wait sends a ping on every timeout. Zero disables
	// both the keepalive and the read timeout.
	Keepalive uint16 `yaml:"keepalive" json:"keepalive"`

	// BufferSize is the fixed capacity of the packet buffer in bytes.
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`

	// DialTimeout is the time in seconds to wait for each connection attempt.
	DialTimeout int64 `yaml:"dial_timeout" json:"dial_timeout"`

	// HTTPTimeout is the read timeout in seconds used by Get.
	HTTPTimeout int64 `yaml:"http_timeout" json:"http_timeout"`

	// RejectRefused closes the connection and returns ErrConnectionRefused if
	// the broker acknowledges a connect with a non-zero return code. By default
	// any connack completes the handshake and the code is left to the caller.
	RejectRefused bool `yaml:"reject_refused" json:"reject_refused"`

	// Hooks contains hooks to add to the client when loaded from configuration.
	Hooks []HookLoadConfig `yaml:"-" json:"-"`

	// TLSConfig is used by secured transports.
	TLSConfig *tls.Config `yaml:"-" json:"-"`

	// Logger specifies a custom configured implementation of log/slog to override
	// the client default logger configuration.
	Logger *slog.Logger `yaml:"-" json:"-"`
}

// ensureDefaults ensures that the client starts with sane default values, if none are provided.
func (o *Options) ensureDefaults() {
	if o.ClientID == "" {
		o.ClientID = xid.New().String()
	}

	if o.BufferSize <= packets.MaxHeaderBytes {
		o.BufferSize = packets.DefaultBufferSize
	}

	if o.DialTimeout == 0 {
		o.DialTimeout = defaultDialTimeout
	}

	if o.HTTPTimeout == 0 {
		o.HTTPTimeout = defaultHTTPTimeout
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
}

// Client is a single broker connection. A client owns one packet buffer which
// every operation reuses, so a client must only be used from one goroutine at
// a time. The statistics in Info may be read concurrently.
type Client struct {
	Options  *Options             // configurable client options
	Info     *system.Info         // values and statistics about the client
	Log      *slog.Logger         // the client logger
	hooks    *Hooks               // hooks added to the client
	packet   *packets.Buffer      // the buffer used for every inbound and outbound frame
	conn     transports.Transport // the transport of the current connection, nil when disconnected
	endpoint transports.Endpoint  // the endpoint of the current connection
	header   packets.FixedHeader  // the fixed header of the last frame read
	secErr   error                // the underlying error of the last secured transport failure
	state    atomic.Uint32        // the State of the connection
	packetID uint16               // the last issued packet id
}

// New returns a new disconnected client.
func New(opts *Options) *Client {
	if opts == nil {
		opts = new(Options)
	}

	opts.ensureDefaults()

	c := &Client{
		Options: opts,
		Info:    system.NewInfo(Version),
		Log:     opts.Logger.With("client", opts.ClientID),
		packet:  packets.NewBuffer(opts.BufferSize),
	}

	c.hooks = &Hooks{
		Log: c.Log,
	}

	return c
}

// ID returns the client id sent when connecting.
func (c *Client) ID() string {
	return c.Options.ClientID
}

// AddHook attaches a new Hook to the client.
func (c *Client) AddHook(hook Hook, config any) error {
	nl := c.Log.With("hook", hook.ID())
	hook.SetOpts(nl, &HookOptions{
		Info: c.Info,
	})

	c.Log.Info("added hook", "hook", hook.ID())
	return c.hooks.Add(hook, config)
}

// AddHooksFromConfig adds hooks to the client which were specified in the hooks config (usually from a config file).
func (c *Client) AddHooksFromConfig(hooks []HookLoadConfig) error {
	for _, h := range hooks {
		if err := c.AddHook(h.Hook, h.Config); err != nil {
			return err
		}
	}
	return nil
}

// StoredMessages returns the messages journalled by any storage hook.
func (c *Client) StoredMessages() ([]storage.Message, error) {
	return c.hooks.StoredMessages()
}

// State returns the connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(uint32(s))
}

// Endpoint returns the endpoint of the most recent connection.
func (c *Client) Endpoint() transports.Endpoint {
	return c.endpoint
}

// SecuredErr returns the underlying secured session error of the most
// recent ErrSecured failure.
func (c *Client) SecuredErr() error {
	return c.secErr
}

// NextPacketID returns the next packet id. Ids increase by one from 1 and
// wrap back to 1 on reaching 65535, so 0 is never issued. The counter is kept
// across reconnects.
func (c *Client) NextPacketID() uint16 {
	c.packetID++
	if c.packetID == maxPacketID {
		c.packetID = 1
	}

	return c.packetID
}

// Close disconnects the client and stops all hooks.
func (c *Client) Close() error {
	err := c.Disconnect()
	c.hooks.Stop()
	return err
}

// transportConfig returns the config used to establish transports.
func (c *Client) transportConfig() *transports.Config {
	return &transports.Config{
		TLSConfig:   c.Options.TLSConfig,
		DialTimeout: time.Duration(c.Options.DialTimeout) * time.Second,
	}
}

// classify wraps a transport error as ErrSecured or ErrNetwork, retaining the
// underlying secured session error.
func (c *Client) classify(err error) error {
	var se *transports.SecuredError
	if errors.As(err, &se) {
		c.secErr = se.Err
		return fmt.Errorf("%w: %w", ErrSecured, err)
	}

	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// fail closes the connection after a transport failure and returns the
// classified error.
func (c *Client) fail(err error) error {
	err = c.classify(err)
	c.closeConn(err)
	return err
}

// closeConn closes the transport, if any, and marks the client disconnected.
// cause is nil when the disconnection was requested.
func (c *Client) closeConn(cause error) error {
	if c.conn == nil {
		c.setState(StateDisconnected)
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.setState(StateDisconnected)
	atomic.StoreInt64(&c.Info.Connected, 0)
	atomic.AddInt64(&c.Info.Disconnects, 1)

	if cause != nil {
		c.Log.Warn("connection closed", "error", cause, "remote", c.endpoint.Address())
	} else {
		c.Log.Info("disconnected", "remote", c.endpoint.Address())
	}

	c.hooks.OnDisconnect(c, cause)
	return err
}
