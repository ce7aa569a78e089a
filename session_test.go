// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mochi-mqtt/client/packets"
	"github.com/mochi-mqtt/client/transports"

	"github.com/stretchr/testify/require"
)

func TestConnectTransport(t *testing.T) {
	c := newTestClient()
	m := transports.NewMock("mock:1883", transports.MockRead{Data: connackAccepted})

	ack, err := c.ConnectTransport(m)
	require.NoError(t, err)
	require.Equal(t, byte(0), ack.ReturnCode)
	require.False(t, ack.SessionPresent)
	require.Equal(t, StateConnected, c.State())
	require.Equal(t, int64(1), c.Info.Connects)
	require.Equal(t, int64(1), c.Info.Connected)
	require.Equal(t, time.Duration(0), m.Timeout)

	require.Len(t, m.Writes, 1)
	require.Equal(t, []byte{
		packets.Connect << 4, 16,
		0, 4, 'M', 'Q', 'T', 'T',
		4,    // version
		0x02, // clean
		0, 0, // keepalive
		0, 4, 't', 'e', 's', 't',
	}, m.Writes[0])
}

func TestConnectTransportKeepaliveCredentials(t *testing.T) {
	c := New(&Options{
		ClientID:  "c",
		Username:  "u",
		Password:  "p",
		Keepalive: 30,
		Logger:    logger,
	})
	m := transports.NewMock("mock:1883", transports.MockRead{Data: connackAccepted})

	_, err := c.ConnectTransport(m)
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, m.Timeout)
	require.Equal(t, []byte{
		packets.Connect << 4, 19,
		0, 4, 'M', 'Q', 'T', 'T',
		4,
		0xc2,
		0, 30,
		0, 1, 'c',
		0, 1, 'u',
		0, 1, 'p',
	}, m.Writes[0])
}

func TestConnectTransportEndpointCredentials(t *testing.T) {
	c := New(&Options{ClientID: "c", Username: "x", Password: "y", Logger: logger})
	c.endpoint = transports.Endpoint{Username: "u"}
	m := transports.NewMock("mock:1883", transports.MockRead{Data: connackAccepted})

	_, err := c.ConnectTransport(m)
	require.NoError(t, err)
	require.Equal(t, []byte{
		packets.Connect << 4, 16,
		0, 4, 'M', 'Q', 'T', 'T',
		4,
		0x82,
		0, 0,
		0, 1, 'c',
		0, 1, 'u',
	}, m.Writes[0])
}

func TestConnectTransportSessionPresent(t *testing.T) {
	c := newTestClient()
	m := transports.NewMock("mock:1883", transports.MockRead{Data: []byte{packets.Connack << 4, 2, 1, 0}})
	ack, err := c.ConnectTransport(m)
	require.NoError(t, err)
	require.True(t, ack.SessionPresent)
}

func TestConnectTransportRefusedAccepted(t *testing.T) {
	c := newTestClient()
	m := transports.NewMock("mock:1883", transports.MockRead{Data: []byte{packets.Connack << 4, 2, 0, 5}})

	ack, err := c.ConnectTransport(m)
	require.NoError(t, err)
	require.Equal(t, byte(5), ack.ReturnCode)
	require.Equal(t, packets.ErrNotAuthorized, ack.Code())
	require.Equal(t, StateConnected, c.State())
}

func TestConnectTransportRejectRefused(t *testing.T) {
	c := New(&Options{ClientID: "test", RejectRefused: true, Logger: logger})
	m := transports.NewMock("mock:1883", transports.MockRead{Data: []byte{packets.Connack << 4, 2, 0, 4}})

	ack, err := c.ConnectTransport(m)
	require.ErrorIs(t, err, ErrConnectionRefused)
	require.ErrorIs(t, err, packets.ErrBadUsernameOrPassword)
	require.Equal(t, byte(4), ack.ReturnCode)
	require.Equal(t, StateDisconnected, c.State())
	require.True(t, m.IsClosed())
	require.Equal(t, StatusError, StatusCode(err))
}

func TestConnectTransportHookHalts(t *testing.T) {
	c := newTestClient()
	err := c.AddHook(&modifiedHookBase{}, nil)
	require.NoError(t, err)
	c.hooks.GetAll()[0].(*modifiedHookBase).fail = true

	m := transports.NewMock("mock:1883", transports.MockRead{Data: connackAccepted})
	_, err = c.ConnectTransport(m)
	require.ErrorIs(t, err, errTestHook)
	require.Empty(t, m.Writes)
	require.True(t, m.IsClosed())
	require.Equal(t, StateDisconnected, c.State())
}

func TestConnectTransportNoConnack(t *testing.T) {
	c := newTestClient()
	m := transports.NewMock("mock:1883")

	_, err := c.ConnectTransport(m)
	require.ErrorIs(t, err, ErrNetwork)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, StatusNetwork, StatusCode(err))
	require.Equal(t, StateDisconnected, c.State())
	require.True(t, m.IsClosed())
}

func TestConnectTransportWriteFailure(t *testing.T) {
	c := newTestClient()
	m := transports.NewMock("mock:1883")
	m.WriteErr = errors.New("broken pipe")

	_, err := c.ConnectTransport(m)
	require.ErrorIs(t, err, ErrNetwork)
	require.Equal(t, StateDisconnected, c.State())
	require.True(t, m.IsClosed())
}

func TestConnectTransportReplacesConnection(t *testing.T) {
	c, old := newConnectedClient(t)
	m := transports.NewMock("mock:1884", transports.MockRead{Data: connackAccepted})

	_, err := c.ConnectTransport(m)
	require.NoError(t, err)
	require.True(t, old.IsClosed())
	require.Equal(t, 1, old.Written(packets.Disconnect))
	require.Equal(t, []byte{packets.Disconnect << 4, 0}, old.Writes[len(old.Writes)-1])
	require.False(t, m.IsClosed())
	require.Equal(t, 0, m.Written(packets.Disconnect))
	require.Equal(t, int64(2), c.Info.Connects)
	require.Equal(t, int64(1), c.Info.Disconnects)
}

func TestConnectBadProtocol(t *testing.T) {
	c := newTestClient()
	ep, err := transports.ParseURL("http://localhost")
	require.NoError(t, err)

	_, err = c.Connect(context.Background(), ep)
	require.ErrorIs(t, err, ErrBadURL)
	require.Equal(t, StatusBadURL, StatusCode(err))
}

func TestConnectDisconnectsExisting(t *testing.T) {
	c, old := newConnectedClient(t)
	c.Options.DialTimeout = 1

	_, err := c.ConnectURL(context.Background(), "tcp://127.0.0.1:1")
	require.ErrorIs(t, err, ErrNetwork)
	require.True(t, old.IsClosed())
	require.Equal(t, 1, old.Written(packets.Disconnect))
	require.Equal(t, StateDisconnected, c.State())
}

func TestConnectURLBadURL(t *testing.T) {
	c := newTestClient()
	_, err := c.ConnectURL(context.Background(), "gopher://localhost")
	require.ErrorIs(t, err, ErrBadURL)
	require.Equal(t, StatusBadURL, StatusCode(err))
	require.Equal(t, StateDisconnected, c.State())
}

func TestConnectURLRefused(t *testing.T) {
	c := newTestClient()
	_, err := c.ConnectURL(context.Background(), "tcp://127.0.0.1:1")
	require.ErrorIs(t, err, ErrNetwork)
	require.Equal(t, StateDisconnected, c.State())
	require.Equal(t, "127.0.0.1", c.Endpoint().Host)
}

func TestPublish(t *testing.T) {
	c, m := newConnectedClient(t)

	pk := &packets.PublishPacket{TopicName: "a/b", Payload: []byte("hi")}
	err := c.Publish(pk)
	require.NoError(t, err)
	require.Equal(t, uint16(1), pk.PacketID)
	require.Equal(t, publishAB, m.Writes[1])
	require.Equal(t, int64(1), c.Info.MessagesSent)
	require.Equal(t, int64(2), c.Info.PacketsSent)
}

func TestPublishForcesQos0(t *testing.T) {
	c, m := newConnectedClient(t)

	pk := &packets.PublishPacket{TopicName: "a/b", Payload: []byte("hi")}
	pk.FixedHeader.Qos = 1
	err := c.Publish(pk)
	require.NoError(t, err)
	require.Equal(t, publishAB, m.Writes[1])
}

func TestPublishNotConnected(t *testing.T) {
	c := newTestClient()
	err := c.Publish(&packets.PublishPacket{TopicName: "a/b"})
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, err, ErrNetwork)
	require.Equal(t, StatusNetwork, StatusCode(err))
}

func TestPublishTooBig(t *testing.T) {
	c, m := newConnectedClient(t)
	err := c.Publish(&packets.PublishPacket{TopicName: "a/b", Payload: make([]byte, 1024)})
	require.ErrorIs(t, err, ErrTooBig)
	require.Equal(t, StatusTooBig, StatusCode(err))
	require.Len(t, m.Writes, 1)
	require.Equal(t, StateConnected, c.State())
}

func TestPublishInvalidTopic(t *testing.T) {
	c, _ := newConnectedClient(t)
	err := c.Publish(&packets.PublishPacket{})
	require.ErrorIs(t, err, packets.ErrMalformedTopic)
	require.Equal(t, StatusError, StatusCode(err))
}

func TestPublishWriteFailure(t *testing.T) {
	c, m := newConnectedClient(t)
	m.WriteErr = errors.New("broken pipe")

	err := c.Publish(&packets.PublishPacket{TopicName: "a/b"})
	require.ErrorIs(t, err, ErrNetwork)
	require.Equal(t, StateDisconnected, c.State())
	require.True(t, m.IsClosed())
	require.Equal(t, int64(0), c.Info.MessagesSent)
}

func TestSubscribe(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: []byte{packets.Suback << 4, 3, 0, 1, 0}})

	ack, err := c.Subscribe(&packets.SubscribePacket{Filter: "x"})
	require.NoError(t, err)
	require.Equal(t, uint16(1), ack.PacketID)
	require.Equal(t, byte(0), ack.ReturnCode)
	require.Equal(t, []byte{packets.Subscribe<<4 | 0x02, 6, 0, 1, 0, 1, 'x', 0}, m.Writes[1])
}

func TestSubscribeFailureCode(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: []byte{packets.Suback << 4, 3, 0, 1, 0x80}})

	ack, err := c.Subscribe(&packets.SubscribePacket{Filter: "x"})
	require.NoError(t, err)
	require.Equal(t, packets.ErrSubscriptionFailure, ack.Code())
}

func TestSubscribeNotConnected(t *testing.T) {
	c := newTestClient()
	_, err := c.Subscribe(&packets.SubscribePacket{Filter: "x"})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscribeDiscardsOtherFrames(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(
		transports.MockRead{Data: publishAB},
		transports.MockRead{Data: pingresp},
		transports.MockRead{Data: []byte{packets.Suback << 4, 3, 0, 1, 0}},
	)

	ack, err := c.Subscribe(&packets.SubscribePacket{Filter: "x"})
	require.NoError(t, err)
	require.Equal(t, uint16(1), ack.PacketID)
	require.Equal(t, int64(1), c.Info.MessagesReceived)
}

func TestWaitForPingsOnTimeout(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(
		transports.MockRead{},
		transports.MockRead{},
		transports.MockRead{},
		transports.MockRead{Data: []byte{packets.Suback << 4, 3, 0, 7, 0}},
	)

	typ, err := c.WaitFor(packets.Suback)
	require.NoError(t, err)
	require.Equal(t, packets.Suback, typ)
	require.Equal(t, 3, m.Written(packets.Pingreq))
	require.Equal(t, int64(3), c.Info.PingsSent)
	require.Equal(t, int64(3), c.Info.Timeouts)

	var ack packets.SubackPacket
	require.NoError(t, ack.Decode(c.packet))
	require.Equal(t, uint16(7), ack.PacketID)
}

func TestWaitForReadTimeoutError(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(
		transports.MockRead{Err: transports.ErrReadTimeout},
		transports.MockRead{Data: pingresp},
	)

	typ, err := c.WaitFor(packets.Pingresp)
	require.NoError(t, err)
	require.Equal(t, packets.Pingresp, typ)
	require.Equal(t, 1, m.Written(packets.Pingreq))
}

func TestWaitForNetworkError(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{}, transports.MockRead{Err: io.ErrClosedPipe})

	_, err := c.WaitFor(packets.Suback)
	require.ErrorIs(t, err, ErrNetwork)
	require.Equal(t, 1, m.Written(packets.Pingreq))
	require.Equal(t, StateDisconnected, c.State())
}

func TestWaitForPingFailure(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{})
	m.WriteErr = errors.New("broken pipe")

	_, err := c.WaitFor(packets.Suback)
	require.ErrorIs(t, err, ErrNetwork)
	require.Equal(t, StateDisconnected, c.State())
}

func TestPing(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: pingresp})

	require.NoError(t, c.Ping())
	require.Equal(t, 1, m.Written(packets.Pingreq))
	require.Equal(t, []byte{packets.Pingreq << 4, 0}, m.Writes[1])
	require.Equal(t, int64(1), c.Info.PingsSent)
}

func TestSendPing(t *testing.T) {
	c, m := newConnectedClient(t)

	require.NoError(t, c.SendPing())
	require.Equal(t, 1, m.Written(packets.Pingreq))
	require.Equal(t, int64(1), c.Info.PingsSent)
	require.Equal(t, StateConnected, c.State())
}

func TestPingNotConnected(t *testing.T) {
	c := newTestClient()
	require.ErrorIs(t, c.Ping(), ErrNotConnected)
}

func TestDisconnect(t *testing.T) {
	c, m := newConnectedClient(t)

	require.NoError(t, c.Disconnect())
	require.Equal(t, 1, m.Written(packets.Disconnect))
	require.Equal(t, []byte{packets.Disconnect << 4, 0}, m.Writes[1])
	require.True(t, m.IsClosed())
	require.Equal(t, StateDisconnected, c.State())
	require.Equal(t, int64(1), c.Info.Disconnects)
	require.Equal(t, int64(0), c.Info.Connected)

	require.NoError(t, c.Disconnect())
	require.Equal(t, int64(1), c.Info.Disconnects)
}

func TestDisconnectWriteFailure(t *testing.T) {
	c, m := newConnectedClient(t)
	m.WriteErr = errors.New("broken pipe")

	require.NoError(t, c.Disconnect())
	require.True(t, m.IsClosed())
	require.Equal(t, StateDisconnected, c.State())
}

func TestEventNotConnected(t *testing.T) {
	c := newTestClient()
	_, err := c.Event()
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestEventTimeout(t *testing.T) {
	c, m := newConnectedClient(t)
	err := c.AddHook(new(modifiedHookBase), nil)
	require.NoError(t, err)
	m.Queue(transports.MockRead{})

	_, err = c.Event()
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, StatusTimeout, StatusCode(err))
	require.Equal(t, StateConnected, c.State())
	require.False(t, m.IsClosed())
	require.Equal(t, 1, c.hooks.GetAll()[0].(*modifiedHookBase).calls["OnTimeout"])
}

func TestEventPublish(t *testing.T) {
	c, m := newConnectedClient(t)
	err := c.AddHook(new(modifiedHookBase), nil)
	require.NoError(t, err)
	m.Queue(transports.MockRead{Data: publishAB})

	typ, err := c.Event()
	require.NoError(t, err)
	require.Equal(t, packets.Publish, typ)
	require.Equal(t, int64(1), c.Info.MessagesReceived)
	require.Equal(t, int64(2), c.Info.PacketsReceived)
	require.Equal(t, int64(len(connackAccepted)+len(publishAB)), c.Info.BytesReceived)

	mh := c.hooks.GetAll()[0].(*modifiedHookBase)
	require.Equal(t, 1, mh.calls["OnPacketRead"])
	require.Equal(t, 1, mh.calls["OnPublishReceived"])

	pk, err := c.ReadPublish()
	require.NoError(t, err)
	require.Equal(t, "a/b", pk.TopicName)
	require.Equal(t, []byte("hi"), pk.Payload)
	require.Equal(t, uint16(0), pk.PacketID)
}

func TestEventFragmentedFrame(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(
		transports.MockRead{Data: publishAB[:1]},
		transports.MockRead{Data: publishAB[1:4]},
		transports.MockRead{Data: publishAB[4:]},
	)

	typ, err := c.Event()
	require.NoError(t, err)
	require.Equal(t, packets.Publish, typ)

	pk, err := c.ReadPublish()
	require.NoError(t, err)
	require.Equal(t, "a/b", pk.TopicName)
}

func TestEventLargestFrame(t *testing.T) {
	c, m := newConnectedClient(t)

	// a two byte remaining length leaves 397 bytes free in a 400 byte
	// buffer, one of which is kept in reserve.
	frame := []byte{packets.Publish << 4, 0x8c, 0x03, 0, 1, 't'}
	frame = append(frame, bytes.Repeat([]byte{'z'}, 393)...)
	m.Queue(transports.MockRead{Data: frame})

	typ, err := c.Event()
	require.NoError(t, err)
	require.Equal(t, packets.Publish, typ)

	pk, err := c.ReadPublish()
	require.NoError(t, err)
	require.Len(t, pk.Payload, 393)
}

func TestEventTooBig(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: []byte{packets.Publish << 4, 0x8d, 0x03}})

	_, err := c.Event()
	require.ErrorIs(t, err, ErrTooBig)
	require.Equal(t, StatusTooBig, StatusCode(err))
	require.Equal(t, StateDisconnected, c.State())
	require.True(t, m.IsClosed())
}

func TestEventTooBigCapacity(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: []byte{packets.Publish << 4, 0x90, 0x03}})

	_, err := c.Event()
	require.ErrorIs(t, err, ErrTooBig)
	require.Equal(t, StateDisconnected, c.State())
}

func TestEventMalformedLength(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: []byte{packets.Publish << 4, 0xff, 0xff, 0xff, 0xff}})

	_, err := c.Event()
	require.ErrorIs(t, err, packets.ErrMalformedVariableByteInteger)
	require.Equal(t, StatusError, StatusCode(err))
	require.Equal(t, StateDisconnected, c.State())
	require.True(t, m.IsClosed())
}

func TestEventInvalidFlags(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: []byte{packets.Suback<<4 | 1, 3, 0, 1, 0}})

	_, err := c.Event()
	require.ErrorIs(t, err, packets.ErrInvalidFlags)
	require.Equal(t, StateDisconnected, c.State())
}

func TestEventTruncatedBody(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: publishAB[:5], Err: io.EOF})

	_, err := c.Event()
	require.ErrorIs(t, err, ErrNetwork)
	require.Equal(t, StateDisconnected, c.State())
}

func TestEventTimeoutMidFrame(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: publishAB[:5]}, transports.MockRead{})

	_, err := c.Event()
	require.ErrorIs(t, err, ErrNetwork)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, StateDisconnected, c.State())
}

func TestEventSecuredFailure(t *testing.T) {
	c, m := newConnectedClient(t)
	cause := errors.New("bad record mac")
	m.Queue(transports.MockRead{Err: &transports.SecuredError{Err: cause}})

	_, err := c.Event()
	require.ErrorIs(t, err, ErrSecured)
	require.Equal(t, StatusSecured, StatusCode(err))
	require.Equal(t, cause, c.SecuredErr())
	require.Equal(t, StateDisconnected, c.State())
}

func TestEventZeroLengthFrame(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: pingresp})

	typ, err := c.Event()
	require.NoError(t, err)
	require.Equal(t, packets.Pingresp, typ)
}

func TestReadPublishUnexpected(t *testing.T) {
	c, m := newConnectedClient(t)
	m.Queue(transports.MockRead{Data: pingresp})

	_, err := c.Event()
	require.NoError(t, err)

	_, err = c.ReadPublish()
	require.ErrorIs(t, err, packets.ErrProtocolViolationUnexpected)
}

func TestSessionHooks(t *testing.T) {
	c := newTestClient()
	err := c.AddHook(new(modifiedHookBase), nil)
	require.NoError(t, err)
	mh := c.hooks.GetAll()[0].(*modifiedHookBase)

	m := transports.NewMock("mock:1883",
		transports.MockRead{Data: connackAccepted},
		transports.MockRead{Data: []byte{packets.Suback << 4, 3, 0, 2, 0}},
	)
	_, err = c.ConnectTransport(m)
	require.NoError(t, err)

	err = c.Publish(&packets.PublishPacket{TopicName: "a/b"})
	require.NoError(t, err)

	_, err = c.Subscribe(&packets.SubscribePacket{Filter: "a/#"})
	require.NoError(t, err)
	require.NoError(t, c.Disconnect())

	require.Equal(t, 1, mh.calls["OnConnect"])
	require.Equal(t, 1, mh.calls["OnConnack"])
	require.Equal(t, 1, mh.calls["OnPublished"])
	require.Equal(t, 1, mh.calls["OnSubscribed"])
	require.Equal(t, 1, mh.calls["OnDisconnect"])
	require.Equal(t, 3, mh.calls["OnPacketSent"])
	require.Equal(t, 2, mh.calls["OnPacketRead"])
}
