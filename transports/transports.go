// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transports

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"
)

// MinReadTimeout is the smallest receive timeout derived from a keepalive.
const MinReadTimeout = 500 * time.Millisecond

var (
	// ErrBadURL indicates a url could not be parsed or used an unrecognised scheme.
	ErrBadURL = errors.New("bad url")

	// ErrNoAddresses indicates a host resolved to no candidate addresses.
	ErrNoAddresses = errors.New("host resolved to no addresses")

	// ErrReadTimeout is returned by transports which track read deadlines themselves.
	ErrReadTimeout error = timeoutError{}
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// Transport is a byte stream to a broker. A transport is chosen once when a
// connection is established and is held for the lifetime of the connection.
type Transport interface {
	io.ReadWriteCloser
	SetReadTimeout(d time.Duration) error // zero disables the timeout
	Type() string                         // the transport variant, eg. tcp, tls, ws
	Address() string                      // the remote address
}

// Config contains the values used to establish a transport.
type Config struct {
	TLSConfig   *tls.Config   // used by secured and secured websocket endpoints
	Resolver    *net.Resolver // optional, defaults to net.DefaultResolver
	DialTimeout time.Duration // optional timeout per dial attempt
}

// SecuredError wraps a failure raised by the secured session layer so it can
// be told apart from a plain network failure.
type SecuredError struct {
	Err error
}

// Error returns the underlying error message.
func (e *SecuredError) Error() string {
	return "secured transport: " + e.Err.Error()
}

// Unwrap returns the underlying secured session error.
func (e *SecuredError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if err was caused by a read deadline elapsing.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ReadTimeout returns the receive timeout for a keepalive period in seconds:
// half the keepalive, and no less than MinReadTimeout. A zero keepalive
// disables the timeout.
func ReadTimeout(keepalive uint16) time.Duration {
	if keepalive == 0 {
		return 0
	}

	d := time.Duration(keepalive) * time.Second / 2
	if d < MinReadTimeout {
		d = MinReadTimeout
	}

	return d
}

// Dial resolves the endpoint host, connects to the first candidate address
// which accepts, and returns the transport matching the endpoint kind.
// Secured transports are returned with the handshake already completed.
func Dial(ctx context.Context, ep Endpoint, config *Config) (Transport, error) {
	if config == nil {
		config = new(Config)
	}

	switch ep.Kind {
	case KindWebsocket, KindSecuredWebsocket:
		return dialWebsocket(ctx, ep, config)
	}

	conn, err := dialTCP(ctx, ep, config)
	if err != nil {
		return nil, err
	}

	if ep.Kind == KindSecured {
		return handshake(ctx, conn, ep, config)
	}

	return NewNet(conn, ep.Address()), nil
}

// dialTCP attempts each resolved address of the endpoint in order.
func dialTCP(ctx context.Context, ep Endpoint, config *Config) (net.Conn, error) {
	resolver := config.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupHost(ctx, ep.Host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ep.Host, err)
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAddresses, ep.Host)
	}

	d := net.Dialer{Timeout: config.DialTimeout}
	port := strconv.Itoa(ep.Port)
	for _, addr := range addrs {
		var conn net.Conn
		conn, err = d.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
	}

	return nil, err
}

// handshake completes a client tls handshake over conn.
func handshake(ctx context.Context, conn net.Conn, ep Endpoint, config *Config) (*TLS, error) {
	cfg := new(tls.Config)
	if config.TLSConfig != nil {
		cfg = config.TLSConfig.Clone()
	}

	if cfg.ServerName == "" {
		cfg.ServerName = ep.Host
	}

	tc := tls.Client(conn, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, &SecuredError{Err: err}
	}

	return NewTLS(tc, ep.Address()), nil
}
