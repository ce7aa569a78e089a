// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/mochi-mqtt/client/packets"

	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tt := []struct {
		desc string
		err  error
		want int
	}{
		{desc: "nil", err: nil, want: StatusSuccess},
		{desc: "protocol", err: packets.ErrMalformedVariableByteInteger, want: StatusError},
		{desc: "unknown", err: errors.New("test"), want: StatusError},
		{desc: "too big", err: ErrTooBig, want: StatusTooBig},
		{desc: "buffer overflow", err: packets.ErrBufferOverflow, want: StatusTooBig},
		{desc: "network", err: fmt.Errorf("%w: %w", ErrNetwork, io.EOF), want: StatusNetwork},
		{desc: "not connected", err: ErrNotConnected, want: StatusNetwork},
		{desc: "timeout", err: ErrTimeout, want: StatusTimeout},
		{desc: "secured", err: fmt.Errorf("%w: %w", ErrSecured, io.EOF), want: StatusSecured},
		{desc: "bad url", err: fmt.Errorf("%w: missing host", ErrBadURL), want: StatusBadURL},
		{desc: "http status", err: &HTTPStatusError{Code: 404}, want: -404},
		{desc: "wrapped http status", err: fmt.Errorf("get: %w", &HTTPStatusError{Code: 500}), want: -500},
	}

	for _, tx := range tt {
		t.Run(tx.desc, func(t *testing.T) {
			require.Equal(t, tx.want, StatusCode(tx.err))
		})
	}
}

func TestHTTPStatusError(t *testing.T) {
	err := &HTTPStatusError{Code: 503}
	require.Equal(t, "unexpected http status 503", err.Error())
}

func TestEncodeErr(t *testing.T) {
	err := encodeErr(packets.ErrBufferOverflow)
	require.ErrorIs(t, err, ErrTooBig)
	require.ErrorIs(t, err, packets.ErrBufferOverflow)

	err = encodeErr(packets.ErrMalformedTopic)
	require.Equal(t, packets.ErrMalformedTopic, err)
}
