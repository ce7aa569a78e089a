// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package debug

import (
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/mochi-mqtt/client"
	"github.com/mochi-mqtt/client/packets"
)

// Options contains configuration settings for the debug output.
type Options struct {
	ShowPacketData bool `yaml:"show_packet_data" json:"show_packet_data"` // include raw frame bytes (default false)
	ShowPings      bool `yaml:"show_pings" json:"show_pings"`             // show ping requests and responses (default false)
	ShowPasswords  bool `yaml:"show_passwords" json:"show_passwords"`     // show connecting user passwords (default false)
}

// Hook is a debugging hook which logs additional low-level information from the client.
type Hook struct {
	mqtt.HookBase
	config *Options
	Log    *slog.Logger
}

// ID returns the ID of the hook.
func (h *Hook) ID() string {
	return "debug"
}

// Provides indicates that this hook provides all methods.
func (h *Hook) Provides(b byte) bool {
	return true
}

// Init is called when the hook is initialized.
func (h *Hook) Init(config any) error {
	o, ok := config.(*Options)
	if !ok && config != nil {
		return mqtt.ErrInvalidConfigType
	}

	if o == nil {
		o = new(Options)
	}

	h.config = o

	return nil
}

// SetOpts is called when the hook receives inheritable client parameters.
func (h *Hook) SetOpts(l *slog.Logger, opts *mqtt.HookOptions) {
	h.Log = l
	h.Log.Debug("", "method", "SetOpts")
}

// Stop is called when the hook is stopped.
func (h *Hook) Stop() error {
	h.Log.Debug("", "method", "Stop")
	return nil
}

// OnConnect is called before the connect packet is sent.
func (h *Hook) OnConnect(cl *mqtt.Client, pk packets.ConnectPacket) error {
	m := []any{
		"method", "OnConnect",
		"id", pk.ClientID,
		"clean", pk.Clean,
		"keepalive", pk.Keepalive,
		"username", string(pk.Username),
	}

	if h.config.ShowPasswords {
		m = append(m, "password", string(pk.Password))
	}

	h.Log.Debug("connecting", m...)
	return nil
}

// OnConnack is called when the connect handshake completes.
func (h *Hook) OnConnack(cl *mqtt.Client, pk packets.ConnackPacket) {
	h.Log.Debug("connack received", "method", "OnConnack", "session_present", pk.SessionPresent, "reason", pk.Code().Reason)
}

// OnDisconnect is called when the connection is closed.
func (h *Hook) OnDisconnect(cl *mqtt.Client, err error) {
	h.Log.Debug("disconnected", "method", "OnDisconnect", "error", err)
}

// OnPacketRead is called when a frame has been read from the broker.
func (h *Hook) OnPacketRead(cl *mqtt.Client, fh packets.FixedHeader, b []byte) {
	if !h.showPacket(fh) {
		return
	}

	h.Log.Debug(strings.ToUpper(packets.Names[fh.Type])+" << "+cl.ID(), h.packetMeta(fh, b)...)
}

// OnPacketSent is called when a frame has been sent to the broker.
func (h *Hook) OnPacketSent(cl *mqtt.Client, fh packets.FixedHeader, b []byte) {
	if !h.showPacket(fh) {
		return
	}

	h.Log.Debug(strings.ToUpper(packets.Names[fh.Type])+" >> "+cl.ID(), h.packetMeta(fh, b)...)
}

// OnPublished is called when a publish has been sent.
func (h *Hook) OnPublished(cl *mqtt.Client, pk packets.PublishPacket) {
	h.Log.Debug("published", "method", "OnPublished", "topic", pk.TopicName, "payload", string(pk.Payload), "id", pk.PacketID)
}

// OnPublishReceived is called when a publish has been received.
func (h *Hook) OnPublishReceived(cl *mqtt.Client, pk packets.PublishPacket) {
	h.Log.Debug("publish received", "method", "OnPublishReceived", "topic", pk.TopicName, "payload", string(pk.Payload), "retain", pk.FixedHeader.Retain)
}

// OnSubscribed is called when a subscription has been acknowledged.
func (h *Hook) OnSubscribed(cl *mqtt.Client, pk packets.SubscribePacket, ack packets.SubackPacket) {
	h.Log.Debug("subscribed", "method", "OnSubscribed", "filter", pk.Filter, "id", ack.PacketID, "reason", ack.Code().Reason)
}

// OnTimeout is called when a read times out.
func (h *Hook) OnTimeout(cl *mqtt.Client) {
	if !h.config.ShowPings {
		return
	}

	h.Log.Debug("read timed out", "method", "OnTimeout")
}

// showPacket returns false for pings unless they have been enabled.
func (h *Hook) showPacket(fh packets.FixedHeader) bool {
	return h.config.ShowPings || (fh.Type != packets.Pingreq && fh.Type != packets.Pingresp)
}

// packetMeta adds additional frame metadata to the debug logs.
func (h *Hook) packetMeta(fh packets.FixedHeader, b []byte) []any {
	m := []any{"remaining", fh.Remaining}
	if fh.Type == packets.Publish {
		m = append(m, "qos", fh.Qos, "retain", fh.Retain, "dup", fh.Dup)
	}

	if h.config.ShowPacketData {
		m = append(m, "packet", hex.EncodeToString(b))
	}

	return m
}
