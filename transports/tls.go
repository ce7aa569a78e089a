// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transports

import (
	"crypto/tls"
	"errors"
	"io"
)

// TLS is a secured transport over a tls connection which has completed its
// handshake. Failures other than timeouts and clean closes are returned as
// *SecuredError.
type TLS struct {
	Net
}

// NewTLS returns a secured transport over conn.
func NewTLS(conn *tls.Conn, address string) *TLS {
	return &TLS{
		Net: Net{
			conn:    conn,
			address: address,
		},
	}
}

// Type returns the transport variant.
func (t *TLS) Type() string {
	return "tls"
}

// Read reads decrypted bytes from the secured session.
func (t *TLS) Read(p []byte) (int, error) {
	n, err := t.Net.Read(p)
	return n, secured(err)
}

// Write writes bytes through the secured session.
func (t *TLS) Write(p []byte) (int, error) {
	n, err := t.Net.Write(p)
	return n, secured(err)
}

// Close sends a close notification and closes the underlying connection.
func (t *TLS) Close() error {
	return secured(t.Net.Close())
}

func secured(err error) error {
	if err == nil || IsTimeout(err) || errors.Is(err, io.EOF) {
		return err
	}

	return &SecuredError{Err: err}
}
