// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// ConnectPacket contains the values of a CONNECT packet. Will messages are not
// supported and are never encoded.
type ConnectPacket struct {
	ProtocolName    string `json:"protocol_name"`
	ClientID        string `json:"client_id"`
	Username        []byte `json:"username"` // nil when not present
	Password        []byte `json:"-"`        // nil when not present
	Keepalive       uint16 `json:"keepalive"`
	ProtocolVersion byte   `json:"protocol_version"`
	Clean           bool   `json:"clean"`
}

// Flags returns the connect flags byte.
func (pk *ConnectPacket) Flags() byte {
	return encodeBool(pk.Username != nil)<<7 |
		encodeBool(pk.Password != nil)<<6 |
		encodeBool(pk.Clean)<<1
}

// Encode resets the buffer and writes the packet into it.
func (pk *ConnectPacket) Encode(b *Buffer) error {
	name, version := pk.ProtocolName, pk.ProtocolVersion
	if name == "" {
		name = ProtocolName
	}
	if version == 0 {
		version = ProtocolVersion
	}

	b.Reset()
	b.WriteString(name)
	b.WriteByte(version)
	b.WriteByte(pk.Flags())
	b.WriteUint16(pk.Keepalive)
	b.WriteString(pk.ClientID)
	b.WriteBytes(pk.Username)
	b.WriteBytes(pk.Password)

	return b.WriteHeader(Connect, 0, b.Len())
}

// ConnackPacket contains the values of a CONNACK packet.
type ConnackPacket struct {
	SessionPresent bool `json:"session_present"`
	ReturnCode     byte `json:"return_code"`
}

// Decode reads a CONNACK packet from the current frame of the buffer.
func (pk *ConnackPacket) Decode(b *Buffer) error {
	fh, err := b.ReadHeader()
	if err != nil {
		return err
	}

	if fh.Type != Connack {
		return ErrProtocolViolationUnexpected
	}

	flags, err := b.ReadByte()
	if err != nil {
		return ErrMalformedSessionPresent
	}
	pk.SessionPresent = flags&0x01 > 0

	pk.ReturnCode, err = b.ReadByte()
	if err != nil {
		return ErrMalformedReturnCode
	}

	return nil
}

// Encode resets the buffer and writes the packet into it.
func (pk *ConnackPacket) Encode(b *Buffer) error {
	b.Reset()
	b.WriteByte(encodeBool(pk.SessionPresent))
	b.WriteByte(pk.ReturnCode)
	return b.WriteHeader(Connack, 0, b.Len())
}

// Code returns the readable reason for the return code.
func (pk *ConnackPacket) Code() Code {
	if c, ok := ConnackCodes[pk.ReturnCode]; ok {
		return c
	}

	return ErrUnspecifiedError
}
