// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package packets

import (
	"encoding/binary"
	"io"
	"math"
	"unsafe"
)

const (
	// MaxHeaderBytes is the largest possible fixed header: one type byte and
	// a four byte remaining length.
	MaxHeaderBytes = 5

	// DefaultBufferSize is the default capacity of a packet buffer.
	DefaultBufferSize = 400

	// MaxRemainingLength is the largest value a four byte remaining length can hold.
	MaxRemainingLength = 268435455
)

// bytesToString provides a zero-alloc no-copy byte to string conversion.
// via https://github.com/golang/go/issues/25484#issuecomment-391415660
func bytesToString(bs []byte) string {
	return *(*string)(unsafe.Pointer(&bs))
}

// Buffer is a fixed capacity packet buffer which is reused for every inbound
// and outbound frame of a connection. Outbound frames are composed from
// MaxHeaderBytes onwards so the fixed header can be written backwards in front
// of the body once its length is known.
//
// Views returned by the Read methods alias the buffer and are only valid
// until the next Reset or ResetRead.
type Buffer struct {
	buf      []byte // the fixed storage
	start    int    // the first byte of the current frame
	ptr      int    // the read cursor
	end      int    // one past the last byte of the current frame
	overflow bool   // set by any write which did not fit, cleared on reset
}

// NewBuffer returns a buffer with a fixed capacity of size bytes.
func NewBuffer(size int) *Buffer {
	if size <= MaxHeaderBytes {
		size = DefaultBufferSize
	}

	b := &Buffer{
		buf: make([]byte, size),
	}
	b.Reset()
	return b
}

// Reset prepares the buffer for composing a new outbound frame.
func (b *Buffer) Reset() {
	b.start = MaxHeaderBytes
	b.ptr = MaxHeaderBytes
	b.end = MaxHeaderBytes
	b.overflow = false
}

// ResetRead prepares the buffer for receiving a new inbound frame, which is
// stored header first from the beginning of the storage.
func (b *Buffer) ResetRead() {
	b.start = 0
	b.ptr = 0
	b.end = 0
	b.overflow = false
}

// Cap returns the fixed capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Len returns the length of the current frame.
func (b *Buffer) Len() int {
	return b.end - b.start
}

// Free returns the number of bytes which can still be appended to the frame.
func (b *Buffer) Free() int {
	return len(b.buf) - b.end
}

// Overflow returns true if a write has exceeded the capacity of the buffer
// since the last reset.
func (b *Buffer) Overflow() bool {
	return b.overflow
}

// Bytes returns the current frame.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.start:b.end]
}

// Rest returns the unread bytes of the current frame.
func (b *Buffer) Rest() []byte {
	return b.buf[b.ptr:b.end]
}

// Rewind moves the read cursor back to the start of the frame.
func (b *Buffer) Rewind() {
	b.ptr = b.start
}

// Extend appends n bytes to the frame and returns them for filling, eg. by
// a transport read. It returns false if the bytes do not fit.
func (b *Buffer) Extend(n int) ([]byte, bool) {
	i, err := b.grow(n)
	if err != nil {
		return nil, false
	}

	return b.buf[i : i+n], true
}

// grow reserves n bytes at the end of the frame, returning their offset.
func (b *Buffer) grow(n int) (int, error) {
	if b.overflow || n < 0 || n > len(b.buf)-b.end {
		b.overflow = true
		return 0, ErrBufferOverflow
	}

	i := b.end
	b.end += n
	return i, nil
}

// WriteByte appends a single byte to the frame.
func (b *Buffer) WriteByte(c byte) error {
	i, err := b.grow(1)
	if err != nil {
		return err
	}

	b.buf[i] = c
	return nil
}

// WriteUint16 appends a big-endian uint16 to the frame.
func (b *Buffer) WriteUint16(v uint16) error {
	i, err := b.grow(2)
	if err != nil {
		return err
	}

	binary.BigEndian.PutUint16(b.buf[i:], v)
	return nil
}

// WritePayload appends raw bytes to the frame without a length prefix.
func (b *Buffer) WritePayload(p []byte) error {
	i, err := b.grow(len(p))
	if err != nil {
		return err
	}

	copy(b.buf[i:], p)
	return nil
}

// WriteBytes appends a length-prefixed byte field. A nil value is treated as
// not present and writes nothing.
func (b *Buffer) WriteBytes(p []byte) error {
	if p == nil {
		return nil
	}

	return b.writePrefixed(p)
}

// WriteString appends a length-prefixed string field. Strings are always
// written, even when empty.
func (b *Buffer) WriteString(s string) error {
	return b.writePrefixed([]byte(s))
}

func (b *Buffer) writePrefixed(p []byte) error {
	if len(p) > math.MaxUint16 {
		b.overflow = true
		return ErrMalformedOffsetBytesOutOfRange
	}

	i, err := b.grow(2 + len(p))
	if err != nil {
		return err
	}

	binary.BigEndian.PutUint16(b.buf[i:], uint16(len(p)))
	copy(b.buf[i+2:], p)
	return nil
}

// WriteHeader writes the fixed header of the frame backwards in front of the
// body: the remaining length as a variable byte integer, preceded by the
// packet type and flags. The read cursor is left at the start of the frame.
func (b *Buffer) WriteHeader(packetType, flags byte, length int) error {
	if b.overflow {
		return ErrBufferOverflow
	}

	if length < 0 || length > MaxRemainingLength {
		return ErrMalformedVariableByteInteger
	}

	var enc [4]byte
	n := encodeLength(enc[:], length)
	if b.start < n+1 {
		return ErrBufferOverflow
	}

	b.start -= n
	copy(b.buf[b.start:], enc[:n])
	b.start--
	b.buf[b.start] = packetType<<4 | flags&0x0f
	b.ptr = b.start

	return nil
}

// ReadHeader decodes the fixed header at the start of the frame and leaves the
// read cursor at the first byte of the body.
func (b *Buffer) ReadHeader() (fh FixedHeader, err error) {
	b.ptr = b.start
	hb, err := b.ReadByte()
	if err != nil {
		return fh, err
	}

	if err = fh.Decode(hb); err != nil {
		return fh, err
	}

	fh.Remaining, err = DecodeLength(b)
	return fh, err
}

// PeekHeader decodes the fixed header without moving the read cursor.
func (b *Buffer) PeekHeader() (FixedHeader, error) {
	ptr := b.ptr
	defer func() { b.ptr = ptr }()
	return b.ReadHeader()
}

// ReadByte reads a single byte from the frame.
func (b *Buffer) ReadByte() (byte, error) {
	if b.ptr >= b.end {
		return 0, ErrMalformedOffsetByteOutOfRange
	}

	c := b.buf[b.ptr]
	b.ptr++
	return c, nil
}

// ReadUint16 reads a big-endian uint16 from the frame.
func (b *Buffer) ReadUint16() (uint16, error) {
	if b.end-b.ptr < 2 {
		return 0, ErrMalformedOffsetUintOutOfRange
	}

	v := binary.BigEndian.Uint16(b.buf[b.ptr:])
	b.ptr += 2
	return v, nil
}

// ReadBytes reads a length-prefixed byte field, returning a view into the buffer.
func (b *Buffer) ReadBytes() ([]byte, error) {
	n, err := b.ReadUint16()
	if err != nil {
		return nil, err
	}

	if int(n) > b.end-b.ptr {
		return nil, ErrMalformedOffsetBytesOutOfRange
	}

	v := b.buf[b.ptr : b.ptr+int(n) : b.ptr+int(n)]
	b.ptr += int(n)
	return v, nil
}

// ReadString reads a length-prefixed string field, returning a view into the buffer.
func (b *Buffer) ReadString() (string, error) {
	v, err := b.ReadBytes()
	if err != nil {
		return "", err
	}

	return bytesToString(v), nil
}

// encodeLength writes length as a variable byte integer into dst and returns
// the number of bytes used.
func encodeLength(dst []byte, length int) int {
	n := 0
	for {
		digit := byte(length % 128)
		length /= 128
		if length > 0 {
			digit |= 0x80
		}
		dst[n] = digit
		n++
		if length == 0 {
			return n
		}
	}
}

// DecodeLength reads a variable byte integer of at most four bytes.
func DecodeLength(b io.ByteReader) (n int, err error) {
	var multiplier int = 1
	for i := 0; i < 4; i++ {
		eb, err := b.ReadByte()
		if err != nil {
			return 0, err
		}

		n += int(eb&127) * multiplier
		if eb&128 == 0 {
			return n, nil
		}
		multiplier *= 128
	}

	return 0, ErrMalformedVariableByteInteger
}
