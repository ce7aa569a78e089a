// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mochi-mqtt/client/packets"
	"github.com/rs/xid"
)

const (
	MessageKey = "MSG" // unique key to denote journalled messages in a store
	Received   = "RX"  // the message was received from the broker
	Sent       = "TX"  // the message was published to the broker
)

var (
	// ErrDBFileNotOpen indicates that the file database (e.g. bolt/badger) wasn't open for reading.
	ErrDBFileNotOpen = errors.New("db file not open")
)

// Serializable is an interface for objects that can be serialized and deserialized.
type Serializable interface {
	UnmarshalBinary([]byte) error
	MarshalBinary() (data []byte, err error)
}

// Message is a storable representation of a publish packet which was sent
// or received by a client.
type Message struct {
	Payload   []byte `json:"payload"`          // the message payload
	ID        string `json:"id" storm:"id"`    // the storage key
	T         string `json:"t"`                // the direction of the message (RX or TX)
	Client    string `json:"client"`           // the id of the client which sent or received the message
	TopicName string `json:"topic_name"`       // the topic the message was published on
	Created   int64  `json:"created"`          // the time the message was journalled in unix seconds
	PacketID  uint16 `json:"packet_id"`        // the packet id of the message
	Qos       byte   `json:"qos"`              // the qos of the message
	Retain    bool   `json:"retain,omitempty"` // the retain flag of the message
	Dup       bool   `json:"dup,omitempty"`    // the duplicate flag of the message
}

// NewMessage returns a storable message for pk. The topic and payload are
// copied out of the packet buffer.
func NewMessage(t, client string, pk packets.PublishPacket) Message {
	return Message{
		ID:        MessageKey + "_" + xid.New().String(),
		T:         t,
		Client:    client,
		TopicName: strings.Clone(pk.TopicName),
		Payload:   bytes.Clone(pk.Payload),
		Created:   time.Now().Unix(),
		PacketID:  pk.PacketID,
		Qos:       pk.FixedHeader.Qos,
		Retain:    pk.FixedHeader.Retain,
		Dup:       pk.FixedHeader.Dup,
	}
}

// MarshalBinary encodes the values into a json string.
func (d Message) MarshalBinary() (data []byte, err error) {
	return json.Marshal(d)
}

// UnmarshalBinary decodes a json string into a struct.
func (d *Message) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, d)
}

// ToPacket converts a storage.Message to a publish packet.
func (d *Message) ToPacket() packets.PublishPacket {
	return packets.PublishPacket{
		FixedHeader: packets.FixedHeader{
			Type:   packets.Publish,
			Qos:    d.Qos,
			Retain: d.Retain,
			Dup:    d.Dup,
		},
		TopicName: d.TopicName,
		Payload:   d.Payload,
		PacketID:  d.PacketID,
	}
}
