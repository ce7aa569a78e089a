// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transports

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// MockRead is one scripted result of a read on a Mock transport. A zero
// MockRead returns no bytes and no error, which a client treats as a timeout.
type MockRead struct {
	Data []byte
	Err  error
}

// Mock is a scripted transport for testing. Reads are served from a queue
// and every write is recorded.
type Mock struct {
	sync.Mutex
	address  string
	reads    []MockRead
	Writes   [][]byte      // every buffer passed to Write
	WriteErr error         // returned by Write when set
	Timeout  time.Duration // the last read timeout set
	Closed   bool          // true once Close has been called
}

// NewMock returns a mock transport which serves the given reads in order.
func NewMock(address string, reads ...MockRead) *Mock {
	return &Mock{
		address: address,
		reads:   reads,
	}
}

// Queue appends scripted reads.
func (m *Mock) Queue(reads ...MockRead) {
	m.Lock()
	defer m.Unlock()
	m.reads = append(m.reads, reads...)
}

// Type returns the transport variant.
func (m *Mock) Type() string {
	return "mock"
}

// Address returns the address of the mock.
func (m *Mock) Address() string {
	return m.address
}

// SetReadTimeout records the read timeout.
func (m *Mock) SetReadTimeout(d time.Duration) error {
	m.Lock()
	defer m.Unlock()
	m.Timeout = d
	return nil
}

// Read serves the next scripted read. Data larger than p is served over
// several reads. An empty queue reads as a closed connection.
func (m *Mock) Read(p []byte) (int, error) {
	m.Lock()
	defer m.Unlock()

	if m.Closed {
		return 0, net.ErrClosed
	}

	if len(m.reads) == 0 {
		return 0, io.EOF
	}

	r := &m.reads[0]
	n := copy(p, r.Data)
	r.Data = r.Data[n:]
	if len(r.Data) > 0 {
		return n, nil
	}

	err := r.Err
	m.reads = m.reads[1:]
	return n, err
}

// Write records p.
func (m *Mock) Write(p []byte) (int, error) {
	m.Lock()
	defer m.Unlock()

	if m.Closed {
		return 0, net.ErrClosed
	}

	if m.WriteErr != nil {
		return 0, m.WriteErr
	}

	m.Writes = append(m.Writes, bytes.Clone(p))
	return len(p), nil
}

// Close marks the mock as closed.
func (m *Mock) Close() error {
	m.Lock()
	defer m.Unlock()
	m.Closed = true
	return nil
}

// Written returns the number of recorded writes which began with a fixed
// header of the given packet type.
func (m *Mock) Written(packetType byte) int {
	m.Lock()
	defer m.Unlock()

	var n int
	for _, w := range m.Writes {
		if len(w) > 0 && w[0]>>4 == packetType {
			n++
		}
	}
	return n
}

// IsClosed returns true if the mock has been closed.
func (m *Mock) IsClosed() bool {
	m.Lock()
	defer m.Unlock()
	return m.Closed
}
