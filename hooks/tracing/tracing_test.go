// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package tracing

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mochi-mqtt/client"
	"github.com/mochi-mqtt/client/packets"
	"github.com/mochi-mqtt/client/transports"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newHook(t *testing.T, opts *Options) (*Hook, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	if opts == nil {
		opts = new(Options)
	}
	opts.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	h := new(Hook)
	h.SetOpts(logger, nil)
	require.NoError(t, h.Init(opts))
	return h, sr
}

func attr(attrs []attribute.KeyValue, key string) attribute.Value {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestID(t *testing.T) {
	require.Equal(t, "tracing", new(Hook).ID())
}

func TestProvides(t *testing.T) {
	h := new(Hook)
	require.True(t, h.Provides(mqtt.OnConnect))
	require.True(t, h.Provides(mqtt.OnPacketSent))
	require.True(t, h.Provides(mqtt.OnDisconnect))
	require.False(t, h.Provides(mqtt.StoredMessages))
	require.False(t, h.Provides(mqtt.OnPublished))
}

func TestInitBadConfig(t *testing.T) {
	h := new(Hook)
	require.ErrorIs(t, h.Init(map[string]any{}), mqtt.ErrInvalidConfigType)
}

func TestInitDefaults(t *testing.T) {
	h := new(Hook)
	require.NoError(t, h.Init(nil))
	require.Equal(t, defaultTracerName, h.config.TracerName)
	require.NotNil(t, h.config.TracerProvider)
	require.NotNil(t, h.tracer)
}

func TestInitTypedNilConfig(t *testing.T) {
	h := new(Hook)
	require.NoError(t, h.Init((*Options)(nil)))
	require.NotNil(t, h.config)
	require.Equal(t, defaultTracerName, h.config.TracerName)
	require.NotNil(t, h.tracer)
}

func TestClientSession(t *testing.T) {
	h, sr := newHook(t, &Options{IncludePayload: true})

	cl := mqtt.New(&mqtt.Options{ClientID: "traced", Keepalive: 10, Logger: logger})
	require.NoError(t, cl.AddHook(h, h.config))

	m := transports.NewMock("mock:1883",
		transports.MockRead{Data: []byte{packets.Connack << 4, 2, 0, 0}},
		transports.MockRead{},
		transports.MockRead{Data: []byte{packets.Publish << 4, 7, 0, 3, 'a', '/', 'b', 'h', 'i'}},
	)
	_, err := cl.ConnectTransport(m)
	require.NoError(t, err)

	_, err = cl.Event()
	require.ErrorIs(t, err, mqtt.ErrTimeout)

	typ, err := cl.Event()
	require.NoError(t, err)
	require.Equal(t, packets.Publish, typ)

	require.NoError(t, cl.Disconnect())

	spans := sr.Ended()
	require.Len(t, spans, 4)

	require.Equal(t, "mqtt.send connect", spans[0].Name())
	require.Equal(t, "mqtt.receive connack", spans[1].Name())
	require.Equal(t, "mqtt.receive publish", spans[2].Name())
	require.Equal(t, "a/b", attr(spans[2].Attributes(), "messaging.destination.name").AsString())
	require.Equal(t, "hi", attr(spans[2].Attributes(), "mqtt.payload").AsString())
	require.Equal(t, int64(9), attr(spans[2].Attributes(), "mqtt.packet.size").AsInt64())

	session := spans[3]
	require.Equal(t, "mqtt.connection", session.Name())
	require.Equal(t, "traced", attr(session.Attributes(), "mqtt.client_id").AsString())
	require.Equal(t, int64(0), attr(session.Attributes(), "mqtt.connack.code").AsInt64())
	require.Equal(t, codes.Unset, session.Status().Code)
	require.Len(t, session.Events(), 1)
	require.Equal(t, "read timeout", session.Events()[0].Name)

	for _, s := range spans[:3] {
		require.Equal(t, session.SpanContext().SpanID(), s.Parent().SpanID())
	}
}

func TestDisconnectError(t *testing.T) {
	h, sr := newHook(t, nil)
	cl := mqtt.New(&mqtt.Options{ClientID: "traced", Logger: logger})

	require.NoError(t, h.OnConnect(cl, packets.ConnectPacket{ClientID: "traced"}))
	h.OnConnack(cl, packets.ConnackPacket{ReturnCode: 3})
	h.OnDisconnect(cl, errors.New("broken pipe"))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, "broken pipe", spans[0].Status().Description)
	require.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestPayloadExcludedByDefault(t *testing.T) {
	h, sr := newHook(t, nil)
	cl := mqtt.New(&mqtt.Options{ClientID: "traced", Logger: logger})

	frame := []byte{packets.Publish << 4, 7, 0, 3, 'a', '/', 'b', 'h', 'i'}
	h.OnPacketSent(cl, packets.FixedHeader{Type: packets.Publish, Remaining: 7}, frame)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "mqtt.send publish", spans[0].Name())
	require.False(t, spans[0].Parent().IsValid())
	require.Equal(t, "a/b", attr(spans[0].Attributes(), "messaging.destination.name").AsString())
	require.Equal(t, attribute.INVALID, attr(spans[0].Attributes(), "mqtt.payload").Type())
}

func TestSubscribedAndStop(t *testing.T) {
	h, sr := newHook(t, nil)
	cl := mqtt.New(&mqtt.Options{ClientID: "traced", Logger: logger})

	h.OnSubscribed(cl, packets.SubscribePacket{Filter: "x"}, packets.SubackPacket{})
	h.OnTimeout(cl)
	h.OnConnack(cl, packets.ConnackPacket{})
	require.Empty(t, sr.Ended())

	require.NoError(t, h.OnConnect(cl, packets.ConnectPacket{}))
	h.OnSubscribed(cl, packets.SubscribePacket{Filter: "x"}, packets.SubackPacket{PacketID: 4})
	require.NoError(t, h.Stop())

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "subscribed", spans[0].Events()[0].Name)
	require.Nil(t, h.session)
}

func TestDecodePublish(t *testing.T) {
	pk, ok := decodePublish([]byte{packets.Publish << 4, 7, 0, 3, 'a', '/', 'b', 'h', 'i'})
	require.True(t, ok)
	require.Equal(t, "a/b", pk.TopicName)

	_, ok = decodePublish([]byte{packets.Publish << 4, 9, 0})
	require.False(t, ok)
}
