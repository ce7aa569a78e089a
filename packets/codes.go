// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// Code contains a reason code and reason string for a response.
type Code struct {
	Reason string
	Code   byte
}

// String returns the readable reason for a code.
func (c Code) String() string {
	return c.Reason
}

// Error returns the readable reason for a code.
func (c Code) Error() string {
	return c.Reason
}

var (
	// ConnackCodes maps the v3.1.1 connack return codes to readable reasons.
	ConnackCodes = map[byte]Code{
		0x00: CodeSuccess,
		0x01: ErrUnsupportedProtocolVersion,
		0x02: ErrClientIdentifierNotValid,
		0x03: ErrServerUnavailable,
		0x04: ErrBadUsernameOrPassword,
		0x05: ErrNotAuthorized,
	}

	// SubackCodes maps the v3.1.1 suback return codes to readable reasons.
	SubackCodes = map[byte]Code{
		0x00: CodeGrantedQos0,
		0x01: CodeGrantedQos1,
		0x02: CodeGrantedQos2,
		0x80: ErrSubscriptionFailure,
	}

	CodeSuccess                       = Code{Code: 0x00, Reason: "success"}
	CodeGrantedQos0                   = Code{Code: 0x00, Reason: "granted qos 0"}
	CodeGrantedQos1                   = Code{Code: 0x01, Reason: "granted qos 1"}
	CodeGrantedQos2                   = Code{Code: 0x02, Reason: "granted qos 2"}
	ErrUnsupportedProtocolVersion     = Code{Code: 0x01, Reason: "connection refused: unacceptable protocol version"}
	ErrClientIdentifierNotValid       = Code{Code: 0x02, Reason: "connection refused: identifier rejected"}
	ErrServerUnavailable              = Code{Code: 0x03, Reason: "connection refused: server unavailable"}
	ErrBadUsernameOrPassword          = Code{Code: 0x04, Reason: "connection refused: bad user name or password"}
	ErrNotAuthorized                  = Code{Code: 0x05, Reason: "connection refused: not authorized"}
	ErrSubscriptionFailure            = Code{Code: 0x80, Reason: "subscription failure"}
	ErrUnspecifiedError               = Code{Code: 0x80, Reason: "unspecified error"}
	ErrMalformedPacket                = Code{Code: 0x81, Reason: "malformed packet"}
	ErrMalformedFlags                 = Code{Code: 0x81, Reason: "malformed packet: flags"}
	ErrMalformedPacketID              = Code{Code: 0x81, Reason: "malformed packet: packet identifier"}
	ErrMalformedTopic                 = Code{Code: 0x81, Reason: "malformed packet: topic"}
	ErrMalformedReturnCode            = Code{Code: 0x81, Reason: "malformed packet: return code"}
	ErrMalformedSessionPresent        = Code{Code: 0x81, Reason: "malformed packet: session present"}
	ErrMalformedOffsetUintOutOfRange  = Code{Code: 0x81, Reason: "malformed packet: offset uint out of range"}
	ErrMalformedOffsetBytesOutOfRange = Code{Code: 0x81, Reason: "malformed packet: offset bytes out of range"}
	ErrMalformedOffsetByteOutOfRange  = Code{Code: 0x81, Reason: "malformed packet: offset byte out of range"}
	ErrMalformedVariableByteInteger   = Code{Code: 0x81, Reason: "malformed packet: variable byte integer out of range"}
	ErrMalformedRemainingLength       = Code{Code: 0x81, Reason: "malformed packet: remaining length does not match frame"}
	ErrInvalidFlags                   = Code{Code: 0x81, Reason: "malformed packet: invalid reserved flags"}
	ErrProtocolViolation              = Code{Code: 0x82, Reason: "protocol violation"}
	ErrProtocolViolationUnexpected    = Code{Code: 0x82, Reason: "protocol violation: unexpected packet type"}
	ErrImplementationSpecificError    = Code{Code: 0x83, Reason: "implementation specific error"}
	ErrPacketTooLarge                 = Code{Code: 0x95, Reason: "packet too large"}
	ErrBufferOverflow                 = Code{Code: 0x95, Reason: "packet too large: buffer capacity exceeded"}
)
