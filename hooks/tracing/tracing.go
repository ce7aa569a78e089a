// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package tracing records client sessions and packets as OpenTelemetry spans.
package tracing

import (
	"bytes"
	"context"
	"strings"

	"github.com/mochi-mqtt/client"
	"github.com/mochi-mqtt/client/packets"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "mochi-mqtt-client"

// Options contains configuration settings for the tracing hook.
type Options struct {
	// TracerName is the name of the tracer (default: "mochi-mqtt-client").
	TracerName string `yaml:"tracer_name" json:"tracer_name"`

	// IncludePayload records publish payloads as span attributes.
	// May contain sensitive information - disabled by default.
	IncludePayload bool `yaml:"include_payload" json:"include_payload"`

	// TracerProvider provides the tracer. The global provider is used if nil.
	TracerProvider trace.TracerProvider `yaml:"-" json:"-"`
}

// Hook traces each connection as a span, with a child span for every packet
// sent or received while it is open.
type Hook struct {
	mqtt.HookBase
	config  *Options
	tracer  trace.Tracer
	ctx     context.Context // the context of the open connection span
	session trace.Span      // the open connection span, nil when disconnected
}

// ID returns the id of the hook.
func (h *Hook) ID() string {
	return "tracing"
}

// Provides indicates which hook methods this hook provides.
func (h *Hook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnect,
		mqtt.OnConnack,
		mqtt.OnDisconnect,
		mqtt.OnPacketRead,
		mqtt.OnPacketSent,
		mqtt.OnSubscribed,
		mqtt.OnTimeout,
	}, []byte{b})
}

// Init resolves the tracer.
func (h *Hook) Init(config any) error {
	o, ok := config.(*Options)
	if !ok && config != nil {
		return mqtt.ErrInvalidConfigType
	}

	if o == nil {
		o = new(Options)
	}

	h.config = o
	if h.config.TracerName == "" {
		h.config.TracerName = defaultTracerName
	}

	if h.config.TracerProvider == nil {
		h.config.TracerProvider = otel.GetTracerProvider()
	}

	h.tracer = h.config.TracerProvider.Tracer(h.config.TracerName)
	h.ctx = context.Background()

	return nil
}

// Stop ends any open connection span.
func (h *Hook) Stop() error {
	h.endSession(nil)
	return nil
}

// OnConnect starts the connection span.
func (h *Hook) OnConnect(cl *mqtt.Client, pk packets.ConnectPacket) error {
	h.endSession(nil)

	ep := cl.Endpoint()
	h.ctx, h.session = h.tracer.Start(
		context.Background(),
		"mqtt.connection",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("mqtt.client_id", pk.ClientID),
			attribute.Int("mqtt.keepalive", int(pk.Keepalive)),
			attribute.Bool("mqtt.clean", pk.Clean),
			attribute.String("server.address", ep.Host),
			attribute.Int("server.port", ep.Port),
			attribute.String("url.scheme", ep.Scheme),
		),
	)

	return nil
}

// OnConnack records the handshake result on the connection span.
func (h *Hook) OnConnack(cl *mqtt.Client, pk packets.ConnackPacket) {
	if h.session == nil {
		return
	}

	h.session.SetAttributes(
		attribute.Int("mqtt.connack.code", int(pk.ReturnCode)),
		attribute.Bool("mqtt.connack.session_present", pk.SessionPresent),
	)

	if pk.ReturnCode != packets.CodeSuccess.Code {
		h.session.SetStatus(codes.Error, pk.Code().Reason)
	}
}

// OnDisconnect ends the connection span, recording the cause if any.
func (h *Hook) OnDisconnect(cl *mqtt.Client, err error) {
	h.endSession(err)
}

// OnPacketRead records a received packet.
func (h *Hook) OnPacketRead(cl *mqtt.Client, fh packets.FixedHeader, b []byte) {
	h.packetSpan("receive", trace.SpanKindConsumer, fh, b)
}

// OnPacketSent records a sent packet.
func (h *Hook) OnPacketSent(cl *mqtt.Client, fh packets.FixedHeader, b []byte) {
	h.packetSpan("send", trace.SpanKindProducer, fh, b)
}

// OnSubscribed records an acknowledged subscription on the connection span.
func (h *Hook) OnSubscribed(cl *mqtt.Client, pk packets.SubscribePacket, ack packets.SubackPacket) {
	if h.session == nil {
		return
	}

	h.session.AddEvent("subscribed", trace.WithAttributes(
		attribute.String("mqtt.filter", pk.Filter),
		attribute.Int("mqtt.packet_id", int(ack.PacketID)),
		attribute.Int("mqtt.suback.code", int(ack.ReturnCode)),
	))
}

// OnTimeout records a read timeout on the connection span.
func (h *Hook) OnTimeout(cl *mqtt.Client) {
	if h.session == nil {
		return
	}

	h.session.AddEvent("read timeout")
}

// packetSpan records a packet as a span which starts and ends immediately.
func (h *Hook) packetSpan(op string, kind trace.SpanKind, fh packets.FixedHeader, b []byte) {
	name := strings.ToLower(packets.Names[fh.Type])
	attrs := []attribute.KeyValue{
		attribute.String("mqtt.packet.type", name),
		attribute.Int("mqtt.packet.size", len(b)),
		attribute.Int("mqtt.packet.remaining", fh.Remaining),
	}

	if fh.Type == packets.Publish {
		attrs = append(attrs, attribute.Bool("mqtt.retain", fh.Retain))
		if pk, ok := decodePublish(b); ok {
			attrs = append(attrs, attribute.String("messaging.destination.name", pk.TopicName))
			if h.config.IncludePayload {
				attrs = append(attrs, attribute.String("mqtt.payload", string(pk.Payload)))
			}
		}
	}

	_, span := h.tracer.Start(h.ctx, "mqtt."+op+" "+name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	span.End()
}

// endSession ends the open connection span.
func (h *Hook) endSession(err error) {
	if h.session == nil {
		return
	}

	if err != nil {
		h.session.RecordError(err)
		h.session.SetStatus(codes.Error, err.Error())
	}

	h.session.End()
	h.session = nil
	h.ctx = context.Background()
}

// decodePublish decodes a copy of a publish frame, leaving the client packet
// buffer untouched.
func decodePublish(b []byte) (pk packets.PublishPacket, ok bool) {
	buf := packets.NewBuffer(len(b) + packets.MaxHeaderBytes + 1)
	if err := buf.WritePayload(b); err != nil {
		return pk, false
	}

	if err := pk.Decode(buf); err != nil {
		return pk, false
	}

	return pk, true
}
