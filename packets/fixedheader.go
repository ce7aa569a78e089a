// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

// FixedHeader contains the values of the fixed header portion of the MQTT packet.
type FixedHeader struct {
	Remaining int  `json:"remaining"` // the number of remaining bytes in the payload.
	Type      byte `json:"type"`      // the type of the packet (PUBLISH, SUBSCRIBE, etc) from bits 7 - 4 (byte 1).
	Qos       byte `json:"qos"`       // indicates the quality of service expected.
	Dup       bool `json:"dup"`       // indicates if the packet was already sent at an earlier time.
	Retain    bool `json:"retain"`    // whether the message should be retained.
}

// Flags returns the low nibble of the header byte.
func (fh FixedHeader) Flags() byte {
	return encodeBool(fh.Dup)<<3 | fh.Qos<<1 | encodeBool(fh.Retain)
}

// Decode extracts the type and flag bits from the header byte.
func (fh *FixedHeader) Decode(hb byte) error {
	fh.Type = hb >> 4 // Get the message type from the first 4 bits.

	switch fh.Type {
	case Publish:
		if (hb>>1)&0x01 > 0 && (hb>>1)&0x02 > 0 {
			return ErrMalformedFlags // qos 3 is not a valid level
		}

		fh.Dup = (hb>>3)&0x01 > 0 // is duplicate
		fh.Qos = (hb >> 1) & 0x03 // qos flag
		fh.Retain = hb&0x01 > 0   // is retain flag
	case Pubrel, Subscribe, Unsubscribe:
		if (hb>>1)&0x01 == 0 || hb&0x01 > 0 || (hb>>3)&0x01 > 0 {
			return ErrInvalidFlags
		}

		fh.Qos = (hb >> 1) & 0x03
	default:
		if (hb>>3)&0x01 > 0 || (hb>>1)&0x03 > 0 || hb&0x01 > 0 {
			return ErrInvalidFlags
		}
	}

	return nil
}

// encodeBool returns a byte instead of a bool.
func encodeBool(b bool) byte {
	if b {
		return 1
	}
	return 0
}
