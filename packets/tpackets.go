// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// TPacketCase contains data for cross-checking the encoding and decoding
// of packets and expected scenarios.
type TPacketCase struct {
	RawBytes []byte // the bytes that make the packet
	Group    string // a group that should run the test, blank for all
	Desc     string // a description of the test
	Expect   error  // expected decode failure
	Packet   any    // the packet that is expected, nil for header-only packets
	Case     byte   // the identifying byte of the case
}

// TPacketCases is a slice of TPacketCase.
type TPacketCases []TPacketCase

// Get returns a case matching a given T byte.
func (f TPacketCases) Get(b byte) TPacketCase {
	for _, v := range f {
		if v.Case == b {
			return v
		}
	}

	return TPacketCase{}
}

// Load copies the raw bytes of the case into b as a received frame.
func (tc TPacketCase) Load(b *Buffer) {
	b.ResetRead()
	p, _ := b.Extend(len(tc.RawBytes))
	copy(p, tc.RawBytes)
}

const (
	TConnectClean byte = iota
	TConnectUserPass
	TConnectNoKeepalive
	TConnackAccepted
	TConnackSessionPresent
	TConnackBadUserPass
	TConnackMalSessionPresent
	TConnackMalReturnCode
	TPublishBasic
	TPublishEmptyPayload
	TPublishRetain
	TPublishQos1
	TPublishMalTopic
	TPublishMalPacketID
	TPublishMalQos
	TSubscribe
	TSuback
	TSubackFailure
	TSubackMalPacketID
	TSubackMalReturnCode
	TPingreq
	TPingresp
	TDisconnect
)

// TPacketData contains individual encoding and decoding scenarios for each
// packet type the client sends or receives.
var TPacketData = map[byte]TPacketCases{
	Connect: {
		{
			Case:  TConnectClean,
			Desc:  "clean session",
			Group: "encode",
			RawBytes: []byte{
				Connect << 4, 15, // fixed header
				0, 4, 'M', 'Q', 'T', 'T', // protocol name
				4,     // protocol version
				0x02,  // flags: clean
				0, 30, // keepalive
				0, 3, 'z', 'e', 'n', // client id
			},
			Packet: &ConnectPacket{
				ClientID:  "zen",
				Keepalive: 30,
				Clean:     true,
			},
		},
		{
			Case:  TConnectUserPass,
			Desc:  "username and password",
			Group: "encode",
			RawBytes: []byte{
				Connect << 4, 26,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				0xc2, // flags: username, password, clean
				0, 30,
				0, 3, 'z', 'e', 'n',
				0, 5, 'm', 'o', 'c', 'h', 'i',
				0, 2, 'p', 'w',
			},
			Packet: &ConnectPacket{
				ClientID:  "zen",
				Keepalive: 30,
				Clean:     true,
				Username:  []byte("mochi"),
				Password:  []byte("pw"),
			},
		},
		{
			Case:  TConnectNoKeepalive,
			Desc:  "no keepalive, empty client id",
			Group: "encode",
			RawBytes: []byte{
				Connect << 4, 12,
				0, 4, 'M', 'Q', 'T', 'T',
				4,
				0x02,
				0, 0,
				0, 0,
			},
			Packet: &ConnectPacket{
				Clean: true,
			},
		},
	},
	Connack: {
		{
			Case:     TConnackAccepted,
			Desc:     "accepted",
			RawBytes: []byte{Connack << 4, 2, 0, 0},
			Packet:   &ConnackPacket{},
		},
		{
			Case:     TConnackSessionPresent,
			Desc:     "accepted, session present",
			RawBytes: []byte{Connack << 4, 2, 1, 0},
			Packet:   &ConnackPacket{SessionPresent: true},
		},
		{
			Case:     TConnackBadUserPass,
			Desc:     "bad username or password",
			RawBytes: []byte{Connack << 4, 2, 0, 4},
			Packet:   &ConnackPacket{ReturnCode: ErrBadUsernameOrPassword.Code},
		},
		{
			Case:     TConnackMalSessionPresent,
			Desc:     "malformed session present",
			Group:    "decode",
			RawBytes: []byte{Connack << 4, 0},
			Expect:   ErrMalformedSessionPresent,
		},
		{
			Case:     TConnackMalReturnCode,
			Desc:     "malformed return code",
			Group:    "decode",
			RawBytes: []byte{Connack << 4, 1, 0},
			Expect:   ErrMalformedReturnCode,
		},
	},
	Publish: {
		{
			Case: TPublishBasic,
			Desc: "qos 0",
			RawBytes: []byte{
				Publish << 4, 7,
				0, 3, 'a', '/', 'b', // topic name
				'h', 'i', // payload
			},
			Packet: &PublishPacket{
				FixedHeader: FixedHeader{Type: Publish, Remaining: 7},
				TopicName:   "a/b",
				Payload:     []byte("hi"),
			},
		},
		{
			Case: TPublishEmptyPayload,
			Desc: "empty payload",
			RawBytes: []byte{
				Publish << 4, 5,
				0, 3, 'a', '/', 'b',
			},
			Packet: &PublishPacket{
				FixedHeader: FixedHeader{Type: Publish, Remaining: 5},
				TopicName:   "a/b",
				Payload:     []byte{},
			},
		},
		{
			Case: TPublishRetain,
			Desc: "retain",
			RawBytes: []byte{
				Publish<<4 | 1, 5,
				0, 1, 't',
				'o', 'k',
			},
			Packet: &PublishPacket{
				FixedHeader: FixedHeader{Type: Publish, Remaining: 5, Retain: true},
				TopicName:   "t",
				Payload:     []byte("ok"),
			},
		},
		{
			Case:  TPublishQos1,
			Desc:  "qos 1 with packet id",
			Group: "decode",
			RawBytes: []byte{
				Publish<<4 | 1<<1, 9,
				0, 3, 'a', '/', 'b',
				0, 7, // packet id
				'h', 'i',
			},
			Packet: &PublishPacket{
				FixedHeader: FixedHeader{Type: Publish, Remaining: 9, Qos: 1},
				TopicName:   "a/b",
				PacketID:    7,
				Payload:     []byte("hi"),
			},
		},
		{
			Case:     TPublishMalTopic,
			Desc:     "malformed topic",
			Group:    "decode",
			RawBytes: []byte{Publish << 4, 1, 0},
			Expect:   ErrMalformedTopic,
		},
		{
			Case:     TPublishMalPacketID,
			Desc:     "malformed packet id",
			Group:    "decode",
			RawBytes: []byte{Publish<<4 | 1<<1, 5, 0, 3, 'a', '/', 'b'},
			Expect:   ErrMalformedPacketID,
		},
		{
			Case:     TPublishMalQos,
			Desc:     "qos 3",
			Group:    "decode",
			RawBytes: []byte{Publish<<4 | 3<<1, 5, 0, 3, 'a', '/', 'b'},
			Expect:   ErrMalformedFlags,
		},
	},
	Subscribe: {
		{
			Case:  TSubscribe,
			Desc:  "single filter",
			Group: "encode",
			RawBytes: []byte{
				Subscribe<<4 | 1<<1, 8,
				0, 7, // packet id
				0, 3, 'a', '/', 'b', // filter
				0, // qos
			},
			Packet: &SubscribePacket{
				PacketID: 7,
				Filter:   "a/b",
			},
		},
	},
	Suback: {
		{
			Case:     TSuback,
			Desc:     "granted qos 0",
			RawBytes: []byte{Suback << 4, 3, 0, 7, 0},
			Packet:   &SubackPacket{PacketID: 7},
		},
		{
			Case:     TSubackFailure,
			Desc:     "failure",
			RawBytes: []byte{Suback << 4, 3, 0, 7, 0x80},
			Packet:   &SubackPacket{PacketID: 7, ReturnCode: ErrSubscriptionFailure.Code},
		},
		{
			Case:     TSubackMalPacketID,
			Desc:     "malformed packet id",
			Group:    "decode",
			RawBytes: []byte{Suback << 4, 1, 0},
			Expect:   ErrMalformedPacketID,
		},
		{
			Case:     TSubackMalReturnCode,
			Desc:     "malformed return code",
			Group:    "decode",
			RawBytes: []byte{Suback << 4, 2, 0, 7},
			Expect:   ErrMalformedReturnCode,
		},
	},
	Pingreq: {
		{
			Case:     TPingreq,
			Desc:     "ping request",
			Group:    "encode",
			RawBytes: []byte{Pingreq << 4, 0},
		},
	},
	Pingresp: {
		{
			Case:     TPingresp,
			Desc:     "ping response",
			RawBytes: []byte{Pingresp << 4, 0},
		},
	},
	Disconnect: {
		{
			Case:     TDisconnect,
			Desc:     "disconnect",
			Group:    "encode",
			RawBytes: []byte{Disconnect << 4, 0},
		},
	},
}
