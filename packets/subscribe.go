// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// SubscribePacket contains the values of a SUBSCRIBE packet for a single filter.
type SubscribePacket struct {
	Filter   string `json:"filter"`
	PacketID uint16 `json:"packet_id"`
	Qos      byte   `json:"qos"` // the requested qos, always 0 for this client
}

// Encode resets the buffer and writes the packet into it.
func (pk *SubscribePacket) Encode(b *Buffer) error {
	if pk.PacketID == 0 {
		return ErrMalformedPacketID
	}

	if pk.Filter == "" {
		return ErrMalformedTopic
	}

	b.Reset()
	b.WriteUint16(pk.PacketID)
	b.WriteString(pk.Filter)
	b.WriteByte(pk.Qos)

	return b.WriteHeader(Subscribe, 1<<1, b.Len())
}

// SubackPacket contains the values of a SUBACK packet for a single filter.
type SubackPacket struct {
	PacketID   uint16 `json:"packet_id"`
	ReturnCode byte   `json:"return_code"`
}

// Decode reads a SUBACK packet from the current frame of the buffer.
func (pk *SubackPacket) Decode(b *Buffer) error {
	fh, err := b.ReadHeader()
	if err != nil {
		return err
	}

	if fh.Type != Suback {
		return ErrProtocolViolationUnexpected
	}

	pk.PacketID, err = b.ReadUint16()
	if err != nil {
		return ErrMalformedPacketID
	}

	pk.ReturnCode, err = b.ReadByte()
	if err != nil {
		return ErrMalformedReturnCode
	}

	return nil
}

// Encode resets the buffer and writes the packet into it.
func (pk *SubackPacket) Encode(b *Buffer) error {
	b.Reset()
	b.WriteUint16(pk.PacketID)
	b.WriteByte(pk.ReturnCode)
	return b.WriteHeader(Suback, 0, b.Len())
}

// Code returns the readable reason for the return code.
func (pk *SubackPacket) Code() Code {
	if c, ok := SubackCodes[pk.ReturnCode]; ok {
		return c
	}

	return ErrUnspecifiedError
}
