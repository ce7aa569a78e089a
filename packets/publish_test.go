// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishRoundTrip(t *testing.T) {
	b := NewBuffer(DefaultBufferSize)
	pk := PublishPacket{TopicName: "a/b", Payload: []byte("hi"), PacketID: 3}
	require.NoError(t, pk.Encode(b))
	require.Equal(t, []byte{Publish << 4, 7, 0, 3, 'a', '/', 'b', 'h', 'i'}, b.Bytes())

	var out PublishPacket
	require.NoError(t, out.Decode(b))
	require.Equal(t, "a/b", out.TopicName)
	require.Equal(t, []byte("hi"), out.Payload)
	require.Equal(t, uint16(0), out.PacketID)
	require.Equal(t, byte(0), out.FixedHeader.Qos)
	require.Empty(t, b.Rest())
}

func TestPublishEncodeRetain(t *testing.T) {
	b := NewBuffer(DefaultBufferSize)
	pk := PublishPacket{FixedHeader: FixedHeader{Retain: true}, TopicName: "t", Payload: []byte{}}
	require.NoError(t, pk.Encode(b))
	require.Equal(t, []byte{Publish<<4 | 1, 3, 0, 1, 't'}, b.Bytes())
}

func TestPublishEncodeQos1(t *testing.T) {
	b := NewBuffer(DefaultBufferSize)
	pk := PublishPacket{FixedHeader: FixedHeader{Qos: 1}, TopicName: "t", Payload: []byte("x"), PacketID: 9}
	require.NoError(t, pk.Encode(b))
	require.Equal(t, []byte{Publish<<4 | 2, 6, 0, 1, 't', 0, 9, 'x'}, b.Bytes())

	pk.PacketID = 0
	require.ErrorIs(t, pk.Encode(b), ErrMalformedPacketID)
}

func TestPublishEncodeNoTopic(t *testing.T) {
	b := NewBuffer(DefaultBufferSize)
	pk := PublishPacket{Payload: []byte("x")}
	require.ErrorIs(t, pk.Encode(b), ErrMalformedTopic)
}

func TestPublishDecodeWithPacketID(t *testing.T) {
	b := NewBuffer(DefaultBufferSize)
	b.ResetRead()
	p, _ := b.Extend(10)
	copy(p, []byte{Publish<<4 | 1<<1, 8, 0, 3, 'a', '/', 'b', 0, 7, 'z'})

	var pk PublishPacket
	require.NoError(t, pk.Decode(b))
	require.Equal(t, byte(1), pk.FixedHeader.Qos)
	require.Equal(t, "a/b", pk.TopicName)
	require.Equal(t, uint16(7), pk.PacketID)
	require.Equal(t, []byte("z"), pk.Payload)
}

func TestPublishDecodeMalformed(t *testing.T) {
	tt := []struct {
		desc string
		raw  []byte
		err  error
	}{
		{desc: "short topic", raw: []byte{Publish << 4, 3, 0, 5, 'a'}, err: ErrMalformedTopic},
		{desc: "missing packet id", raw: []byte{Publish<<4 | 2, 4, 0, 2, 'a', 'b'}, err: ErrMalformedPacketID},
		{desc: "truncated frame", raw: []byte{Publish << 4, 9, 0, 1, 'a'}, err: ErrMalformedRemainingLength},
		{desc: "not a publish", raw: []byte{Suback << 4, 3, 0, 1, 0}, err: ErrProtocolViolationUnexpected},
	}

	for _, tx := range tt {
		t.Run(tx.desc, func(t *testing.T) {
			b := NewBuffer(DefaultBufferSize)
			b.ResetRead()
			p, _ := b.Extend(len(tx.raw))
			copy(p, tx.raw)

			var pk PublishPacket
			require.ErrorIs(t, pk.Decode(b), tx.err)
		})
	}
}

func TestPublishEncodeTooBig(t *testing.T) {
	b := NewBuffer(16)
	pk := PublishPacket{TopicName: "a/b", Payload: make([]byte, 32)}
	require.ErrorIs(t, pk.Encode(b), ErrBufferOverflow)
}
