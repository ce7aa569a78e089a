// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// All of the valid packet types and their packet identifier.
const (
	Reserved    byte = iota
	Connect          // 1
	Connack          // 2
	Publish          // 3
	Puback           // 4
	Pubrec           // 5
	Pubrel           // 6
	Pubcomp          // 7
	Subscribe        // 8
	Suback           // 9
	Unsubscribe      // 10
	Unsuback         // 11
	Pingreq          // 12
	Pingresp         // 13
	Disconnect       // 14
)

const (
	// ProtocolName is the protocol name sent in the connect variable header.
	ProtocolName = "MQTT"

	// ProtocolVersion is the v3.1.1 protocol level.
	ProtocolVersion byte = 4
)

// Names is a map that provides human-readable names for the different
// MQTT packet types based on their ids.
var Names = map[byte]string{
	0:  "RESERVED",
	1:  "CONNECT",
	2:  "CONNACK",
	3:  "PUBLISH",
	4:  "PUBACK",
	5:  "PUBREC",
	6:  "PUBREL",
	7:  "PUBCOMP",
	8:  "SUBSCRIBE",
	9:  "SUBACK",
	10: "UNSUBSCRIBE",
	11: "UNSUBACK",
	12: "PINGREQ",
	13: "PINGRESP",
	14: "DISCONNECT",
}

// EncodePingreq resets the buffer and writes a header-only PINGREQ packet.
func EncodePingreq(b *Buffer) error {
	b.Reset()
	return b.WriteHeader(Pingreq, 0, 0)
}

// EncodePingresp resets the buffer and writes a header-only PINGRESP packet.
func EncodePingresp(b *Buffer) error {
	b.Reset()
	return b.WriteHeader(Pingresp, 0, 0)
}

// EncodeDisconnect resets the buffer and writes a header-only DISCONNECT packet.
func EncodeDisconnect(b *Buffer) error {
	b.Reset()
	return b.WriteHeader(Disconnect, 0, 0)
}
