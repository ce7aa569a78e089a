// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transports

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWebsocketPath is requested when a websocket endpoint has no path.
const DefaultWebsocketPath = "/mqtt"

var (
	// ErrInvalidMessage indicates that a message payload was not valid.
	ErrInvalidMessage = errors.New("message type not binary")
)

// Websocket is a transport which carries the byte stream in binary websocket
// messages. Messages are received by a pump goroutine so that an elapsed read
// timeout leaves the connection usable.
type Websocket struct {
	conn     *websocket.Conn
	frames   chan []byte   // messages received by the pump
	done     chan struct{} // closed when the transport is closed
	err      error         // the error which ended the pump, set before frames is closed
	pending  []byte        // unread remainder of the current message
	address  string
	kind     Kind
	timeout  time.Duration
	once     sync.Once
	writeMu  sync.Mutex
	closeErr error
}

// NewWebsocket returns a websocket transport over conn and starts receiving.
func NewWebsocket(conn *websocket.Conn, address string, kind Kind) *Websocket {
	t := &Websocket{
		conn:    conn,
		frames:  make(chan []byte),
		done:    make(chan struct{}),
		address: address,
		kind:    kind,
	}

	go t.pump()
	return t
}

// pump reads whole messages from the websocket until it fails or the
// transport is closed.
func (t *Websocket) pump() {
	defer close(t.frames)
	for {
		op, data, err := t.conn.ReadMessage()
		if err != nil {
			t.err = err
			return
		}

		if op != websocket.BinaryMessage {
			t.err = ErrInvalidMessage
			return
		}

		select {
		case t.frames <- data:
		case <-t.done:
			t.err = websocket.ErrCloseSent
			return
		}
	}
}

// Type returns the transport variant.
func (t *Websocket) Type() string {
	if t.kind == KindSecuredWebsocket {
		return "wss"
	}
	return "ws"
}

// Address returns the remote address.
func (t *Websocket) Address() string {
	return t.address
}

// SetReadTimeout sets the time a read waits for a message.
func (t *Websocket) SetReadTimeout(d time.Duration) error {
	t.timeout = d
	return nil
}

// Read reads the next span of bytes from the received messages.
func (t *Websocket) Read(p []byte) (int, error) {
	if len(t.pending) == 0 {
		var expired <-chan time.Time
		if t.timeout > 0 {
			timer := time.NewTimer(t.timeout)
			defer timer.Stop()
			expired = timer.C
		}

		select {
		case data, ok := <-t.frames:
			if !ok {
				return 0, t.err
			}
			t.pending = data
		case <-expired:
			return 0, ErrReadTimeout
		}
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// Write writes p as a single binary message.
func (t *Websocket) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

// Close signals the pump to end and closes the websocket connection.
func (t *Websocket) Close() error {
	t.once.Do(func() {
		close(t.done)
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		t.closeErr = t.conn.Close()
	})

	return t.closeErr
}

// dialWebsocket opens a websocket connection to the endpoint using the mqtt subprotocol.
func dialWebsocket(ctx context.Context, ep Endpoint, config *Config) (Transport, error) {
	u := url.URL{
		Scheme:   "ws",
		Host:     ep.Address(),
		Path:     ep.Path,
		RawQuery: ep.Query,
	}

	if ep.Kind == KindSecuredWebsocket {
		u.Scheme = "wss"
	}

	if u.Path == "" {
		u.Path = DefaultWebsocketPath
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: config.DialTimeout,
		Subprotocols:     []string{"mqtt"},
		TLSClientConfig:  config.TLSConfig,
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	return NewWebsocket(conn, ep.Address(), ep.Kind), nil
}
