// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transports

import (
	"net"
	"time"
)

// Net is a plain transport over an established net.Conn.
type Net struct {
	conn    net.Conn      // the underlying connection
	address string        // the remote address
	timeout time.Duration // the read deadline applied to each read
}

// NewNet returns a plain transport over conn.
func NewNet(conn net.Conn, address string) *Net {
	return &Net{
		conn:    conn,
		address: address,
	}
}

// Type returns the transport variant.
func (t *Net) Type() string {
	return "tcp"
}

// Address returns the remote address.
func (t *Net) Address() string {
	return t.address
}

// SetReadTimeout sets the deadline applied to each subsequent read.
func (t *Net) SetReadTimeout(d time.Duration) error {
	t.timeout = d
	if d == 0 {
		return t.conn.SetReadDeadline(time.Time{})
	}
	return nil
}

// Read reads from the connection, returning a timeout error if no data
// arrives within the read timeout.
func (t *Net) Read(p []byte) (int, error) {
	if t.timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return 0, err
		}
	}

	return t.conn.Read(p)
}

// Write writes to the connection.
func (t *Net) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

// Close closes the connection.
func (t *Net) Close() error {
	return t.conn.Close()
}
