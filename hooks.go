// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, thedevop, dgduncan

package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mochi-mqtt/client/hooks/storage"
	"github.com/mochi-mqtt/client/packets"
	"github.com/mochi-mqtt/client/system"
)

const (
	SetOptions byte = iota
	OnConnect
	OnConnack
	OnDisconnect
	OnPacketRead
	OnPacketSent
	OnPublished
	OnPublishReceived
	OnSubscribed
	OnTimeout
	StoredMessages
)

var (
	// ErrInvalidConfigType indicates a different Type of config value was expected to what was received.
	ErrInvalidConfigType = errors.New("invalid config type provided")
)

// Hook provides an interface of handlers for different events which occur
// during the lifecycle of a client connection.
type Hook interface {
	ID() string
	Provides(b byte) bool
	Init(config any) error
	Stop() error
	SetOpts(l *slog.Logger, o *HookOptions)
	OnConnect(cl *Client, pk packets.ConnectPacket) error                          // triggers before the connect packet is sent, and may halt the connection
	OnConnack(cl *Client, pk packets.ConnackPacket)                                // triggers when the connect handshake completes
	OnDisconnect(cl *Client, err error)                                            // triggers when the connection is closed, with the cause if not requested
	OnPacketRead(cl *Client, fh packets.FixedHeader, b []byte)                     // triggers when a whole frame has been read into the packet buffer
	OnPacketSent(cl *Client, fh packets.FixedHeader, b []byte)                     // triggers when frame bytes have been written to the transport
	OnPublished(cl *Client, pk packets.PublishPacket)                              // triggers when a publish has been sent
	OnPublishReceived(cl *Client, pk packets.PublishPacket)                        // triggers when a received publish has been decoded
	OnSubscribed(cl *Client, pk packets.SubscribePacket, ack packets.SubackPacket) // triggers when a subscribe has been acknowledged
	OnTimeout(cl *Client)                                                          // triggers when a read times out with no data
	StoredMessages() ([]storage.Message, error)
}

// HookOptions contains values which are inherited from the client on initialisation.
type HookOptions struct {
	Info *system.Info
}

// HookLoadConfig contains the hook and configuration as loaded from a configuration (usually file).
type HookLoadConfig struct {
	Hook   Hook
	Config any
}

// Hooks is a slice of Hook interfaces to be called in sequence.
type Hooks struct {
	Log        *slog.Logger   // a logger for the hook (from the client)
	internal   atomic.Value   // a slice of []Hook
	wg         sync.WaitGroup // a waitgroup for syncing hook shutdown
	qty        int64          // the number of hooks in use
	sync.Mutex                // a mutex for locking when adding hooks
}

// Len returns the number of hooks added.
func (h *Hooks) Len() int64 {
	return atomic.LoadInt64(&h.qty)
}

// Provides returns true if any one hook provides any of the requested hook methods.
func (h *Hooks) Provides(b ...byte) bool {
	for _, hook := range h.GetAll() {
		for _, hb := range b {
			if hook.Provides(hb) {
				return true
			}
		}
	}

	return false
}

// Add adds and initializes a new hook.
func (h *Hooks) Add(hook Hook, config any) error {
	h.Lock()
	defer h.Unlock()

	err := hook.Init(config)
	if err != nil {
		return fmt.Errorf("failed initialising %s hook: %w", hook.ID(), err)
	}

	i, ok := h.internal.Load().([]Hook)
	if !ok {
		i = []Hook{}
	}

	i = append(i, hook)
	h.internal.Store(i)
	atomic.AddInt64(&h.qty, 1)
	h.wg.Add(1)

	return nil
}

// GetAll returns a slice of all the hooks.
func (h *Hooks) GetAll() []Hook {
	i, ok := h.internal.Load().([]Hook)
	if !ok {
		return []Hook{}
	}

	return i
}

// Stop indicates all attached hooks to gracefully end.
func (h *Hooks) Stop() {
	h.Lock()
	hooks := h.GetAll()
	h.internal.Store([]Hook{})
	atomic.StoreInt64(&h.qty, 0)
	h.Unlock()

	go func() {
		for _, hook := range hooks {
			h.Log.Info("stopping hook", "hook", hook.ID())
			if err := hook.Stop(); err != nil {
				h.Log.Debug("problem stopping hook", "error", err, "hook", hook.ID())
			}

			h.wg.Done()
		}
	}()

	h.wg.Wait()
}

// OnConnect is called before the connect packet is sent, and may return an
// error to halt the connection.
func (h *Hooks) OnConnect(cl *Client, pk packets.ConnectPacket) error {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnConnect) {
			err := hook.OnConnect(cl, pk)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// OnConnack is called when the broker has acknowledged the connection.
func (h *Hooks) OnConnack(cl *Client, pk packets.ConnackPacket) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnConnack) {
			hook.OnConnack(cl, pk)
		}
	}
}

// OnDisconnect is called when the connection is closed, with the error
// which caused it if it was not requested.
func (h *Hooks) OnDisconnect(cl *Client, err error) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnDisconnect) {
			hook.OnDisconnect(cl, err)
		}
	}
}

// OnPacketRead is called when a whole frame has been read. b is a view into
// the packet buffer.
func (h *Hooks) OnPacketRead(cl *Client, fh packets.FixedHeader, b []byte) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPacketRead) {
			hook.OnPacketRead(cl, fh, b)
		}
	}
}

// OnPacketSent is called when a frame has been written to the transport.
func (h *Hooks) OnPacketSent(cl *Client, fh packets.FixedHeader, b []byte) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPacketSent) {
			hook.OnPacketSent(cl, fh, b)
		}
	}
}

// OnPublished is called when a publish packet has been sent.
func (h *Hooks) OnPublished(cl *Client, pk packets.PublishPacket) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPublished) {
			hook.OnPublished(cl, pk)
		}
	}
}

// OnPublishReceived is called when a publish packet has been received and
// decoded. The topic and payload are views into the packet buffer.
func (h *Hooks) OnPublishReceived(cl *Client, pk packets.PublishPacket) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnPublishReceived) {
			hook.OnPublishReceived(cl, pk)
		}
	}
}

// OnSubscribed is called when a subscription has been acknowledged.
func (h *Hooks) OnSubscribed(cl *Client, pk packets.SubscribePacket, ack packets.SubackPacket) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnSubscribed) {
			hook.OnSubscribed(cl, pk, ack)
		}
	}
}

// OnTimeout is called when a read times out without receiving data.
func (h *Hooks) OnTimeout(cl *Client) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnTimeout) {
			hook.OnTimeout(cl)
		}
	}
}

// StoredMessages returns the journalled messages from the first hook which
// has any.
func (h *Hooks) StoredMessages() (v []storage.Message, err error) {
	for _, hook := range h.GetAll() {
		if hook.Provides(StoredMessages) {
			v, err := hook.StoredMessages()
			if err != nil {
				h.Log.Error("failed to load stored messages", "error", err, "hook", hook.ID())
				return v, err
			}

			if len(v) > 0 {
				return v, nil
			}
		}
	}

	return
}

// HookBase provides a set of default methods for each hook. It should be embedded in
// all hooks.
type HookBase struct {
	Hook
	Log  *slog.Logger
	Opts *HookOptions
}

// ID returns the ID of the hook.
func (h *HookBase) ID() string {
	return "base"
}

// Provides indicates which methods a hook provides. The default is none - this method
// should be overridden by the embedding hook.
func (h *HookBase) Provides(b byte) bool {
	return false
}

// Init performs any pre-start initializations for the hook, such as connecting to databases
// or opening files.
func (h *HookBase) Init(config any) error {
	return nil
}

// SetOpts is called by the client to propagate internal values and generally should
// not be called manually.
func (h *HookBase) SetOpts(l *slog.Logger, opts *HookOptions) {
	h.Log = l
	h.Opts = opts
}

// Stop is called to gracefully shut down the hook.
func (h *HookBase) Stop() error {
	return nil
}

// OnConnect is called before the connect packet is sent.
func (h *HookBase) OnConnect(cl *Client, pk packets.ConnectPacket) error {
	return nil
}

// OnConnack is called when the connect handshake completes.
func (h *HookBase) OnConnack(cl *Client, pk packets.ConnackPacket) {}

// OnDisconnect is called when the connection is closed.
func (h *HookBase) OnDisconnect(cl *Client, err error) {}

// OnPacketRead is called when a frame has been read.
func (h *HookBase) OnPacketRead(cl *Client, fh packets.FixedHeader, b []byte) {}

// OnPacketSent is called when a frame has been sent.
func (h *HookBase) OnPacketSent(cl *Client, fh packets.FixedHeader, b []byte) {}

// OnPublished is called when a publish has been sent.
func (h *HookBase) OnPublished(cl *Client, pk packets.PublishPacket) {}

// OnPublishReceived is called when a publish has been received.
func (h *HookBase) OnPublishReceived(cl *Client, pk packets.PublishPacket) {}

// OnSubscribed is called when a subscription has been acknowledged.
func (h *HookBase) OnSubscribed(cl *Client, pk packets.SubscribePacket, ack packets.SubackPacket) {}

// OnTimeout is called when a read times out.
func (h *HookBase) OnTimeout(cl *Client) {}

// StoredMessages returns journalled messages.
func (h *HookBase) StoredMessages() (v []storage.Message, err error) {
	return
}
