// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"errors"
	"fmt"

	"github.com/mochi-mqtt/client/packets"
	"github.com/mochi-mqtt/client/transports"
)

// Status codes shared by every operation, see StatusCode.
const (
	StatusSuccess = 0
	StatusError   = -1 // protocol or malformed packet
	StatusTooBig  = -2 // a frame does not fit the packet buffer
	StatusNetwork = -3 // the transport failed and the connection was closed
	StatusTimeout = -4 // no data arrived before the read timeout
	StatusSecured = -5 // the secured session failed, see Client.SecuredErr
	StatusBadURL  = -6 // a url could not be parsed or used an unrecognised scheme
)

var (
	ErrNetwork           = errors.New("network failure")
	ErrTimeout           = errors.New("timed out waiting for data")
	ErrTooBig            = errors.New("packet exceeds buffer capacity")
	ErrSecured           = errors.New("secured transport failure")
	ErrBadURL            = transports.ErrBadURL
	ErrNotConnected      = fmt.Errorf("%w: not connected", ErrNetwork)
	ErrConnectionRefused = errors.New("connection refused by broker")
	ErrMalformedResponse = errors.New("malformed http response")
)

// HTTPStatusError is returned by Get when the server responds with a status
// other than 200.
type HTTPStatusError struct {
	Code int
}

// Error returns the status code as a readable error.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.Code)
}

// StatusCode maps an error returned by the client to its numeric status code.
// A nil error is StatusSuccess and an *HTTPStatusError is the negated http
// status code.
func StatusCode(err error) int {
	var he *HTTPStatusError
	switch {
	case err == nil:
		return StatusSuccess
	case errors.As(err, &he):
		return -he.Code
	case errors.Is(err, ErrTooBig), errors.Is(err, packets.ErrBufferOverflow):
		return StatusTooBig
	case errors.Is(err, ErrSecured):
		return StatusSecured
	case errors.Is(err, ErrBadURL):
		return StatusBadURL
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	case errors.Is(err, ErrNetwork):
		return StatusNetwork
	}

	return StatusError
}

// encodeErr maps a codec error to the client taxonomy.
func encodeErr(err error) error {
	if errors.Is(err, packets.ErrBufferOverflow) {
		return fmt.Errorf("%w: %w", ErrTooBig, err)
	}

	return err
}
