// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fixedHeaderTable struct {
	desc      string
	rawByte   byte
	header    FixedHeader
	flagError bool
}

var fixedHeaderExpected = []fixedHeaderTable{
	{desc: "connack", rawByte: Connack << 4, header: FixedHeader{Type: Connack}},
	{desc: "publish", rawByte: Publish << 4, header: FixedHeader{Type: Publish}},
	{desc: "publish qos 1", rawByte: Publish<<4 | 1<<1, header: FixedHeader{Type: Publish, Qos: 1}},
	{desc: "publish qos 1 retain", rawByte: Publish<<4 | 1<<1 | 1, header: FixedHeader{Type: Publish, Qos: 1, Retain: true}},
	{desc: "publish qos 2", rawByte: Publish<<4 | 2<<1, header: FixedHeader{Type: Publish, Qos: 2}},
	{desc: "publish dup", rawByte: Publish<<4 | 1<<3, header: FixedHeader{Type: Publish, Dup: true}},
	{desc: "publish dup qos 2 retain", rawByte: Publish<<4 | 1<<3 | 2<<1 | 1, header: FixedHeader{Type: Publish, Dup: true, Qos: 2, Retain: true}},
	{desc: "publish qos 3", rawByte: Publish<<4 | 3<<1, header: FixedHeader{Type: Publish}, flagError: true},
	{desc: "pubrel", rawByte: Pubrel<<4 | 1<<1, header: FixedHeader{Type: Pubrel, Qos: 1}},
	{desc: "subscribe", rawByte: Subscribe<<4 | 1<<1, header: FixedHeader{Type: Subscribe, Qos: 1}},
	{desc: "subscribe no flags", rawByte: Subscribe << 4, header: FixedHeader{Type: Subscribe}, flagError: true},
	{desc: "suback", rawByte: Suback << 4, header: FixedHeader{Type: Suback}},
	{desc: "pingresp", rawByte: Pingresp << 4, header: FixedHeader{Type: Pingresp}},
	{desc: "pingresp dup", rawByte: Pingresp<<4 | 1<<3, header: FixedHeader{Type: Pingresp}, flagError: true},
	{desc: "connack retain", rawByte: Connack<<4 | 1, header: FixedHeader{Type: Connack}, flagError: true},
}

func TestFixedHeaderDecode(t *testing.T) {
	for _, wanted := range fixedHeaderExpected {
		t.Run(wanted.desc, func(t *testing.T) {
			fh := new(FixedHeader)
			err := fh.Decode(wanted.rawByte)
			if wanted.flagError {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, wanted.header, *fh)
			require.Equal(t, wanted.rawByte&0x0f, fh.Flags())
		})
	}
}

func TestEncodeHeaderOnly(t *testing.T) {
	b := NewBuffer(16)
	require.NoError(t, EncodePingreq(b))
	require.Equal(t, []byte{0xc0, 0x00}, b.Bytes())

	require.NoError(t, EncodePingresp(b))
	require.Equal(t, []byte{0xd0, 0x00}, b.Bytes())

	require.NoError(t, EncodeDisconnect(b))
	require.Equal(t, []byte{0xe0, 0x00}, b.Bytes())
}
