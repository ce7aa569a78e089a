// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// PublishPacket contains the values of a PUBLISH packet. When decoded, TopicName and
// Payload are views into the packet buffer and must be copied if they are
// needed after the next read on the same buffer.
type PublishPacket struct {
	FixedHeader FixedHeader `json:"fixed_header"`
	TopicName   string      `json:"topic_name"`
	Payload     []byte      `json:"payload"`
	PacketID    uint16      `json:"packet_id"` // only on the wire when qos > 0
}

// Encode resets the buffer and writes the packet into it.
func (pk *PublishPacket) Encode(b *Buffer) error {
	if pk.TopicName == "" {
		return ErrMalformedTopic
	}

	b.Reset()
	b.WriteString(pk.TopicName)
	if pk.FixedHeader.Qos > 0 {
		if pk.PacketID == 0 {
			return ErrMalformedPacketID
		}
		b.WriteUint16(pk.PacketID)
	}
	b.WritePayload(pk.Payload)

	pk.FixedHeader.Type = Publish
	return b.WriteHeader(Publish, pk.FixedHeader.Flags(), b.Len())
}

// Decode reads a PUBLISH packet from the current frame of the buffer.
func (pk *PublishPacket) Decode(b *Buffer) error {
	fh, err := b.ReadHeader()
	if err != nil {
		return err
	}

	if fh.Type != Publish {
		return ErrProtocolViolationUnexpected
	}

	if fh.Remaining != len(b.Rest()) {
		return ErrMalformedRemainingLength
	}

	pk.FixedHeader = fh
	pk.TopicName, err = b.ReadString()
	if err != nil {
		return ErrMalformedTopic
	}

	pk.PacketID = 0
	if fh.Qos > 0 {
		pk.PacketID, err = b.ReadUint16()
		if err != nil {
			return ErrMalformedPacketID
		}
	}

	pk.Payload = b.Rest()
	b.ptr = b.end

	return nil
}
