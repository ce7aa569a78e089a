// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, gsagula, werbenhu

// Package badger journals sent and received messages to a badger database.
package badger

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/mochi-mqtt/client"
	"github.com/mochi-mqtt/client/hooks/storage"
	"github.com/mochi-mqtt/client/packets"
)

const (
	// defaultDbFile is the default file path for the badger db file.
	defaultDbFile         = ".badger"
	defaultGcInterval     = 5 * 60 // gc interval in seconds
	defaultGcDiscardRatio = 0.5
)

// Options contains configuration settings for the BadgerDB instance.
type Options struct {
	Options *badgerdb.Options `yaml:"-" json:"-"`
	Path    string            `yaml:"path" json:"path"`
	// GcDiscardRatio specifies the ratio of log discard compared to the maximum possible log discard.
	// discardRatio must be in the range (0.0, 1.0), both endpoints excluded, otherwise, it will be set to the default value of 0.5.
	GcDiscardRatio float64 `yaml:"gc_discard_ratio" json:"gc_discard_ratio"`
	GcInterval     int64   `yaml:"gc_interval" json:"gc_interval"`
}

// Hook is a message journal hook using a BadgerDB file store as a backend.
type Hook struct {
	mqtt.HookBase
	config   *Options     // options for configuring the BadgerDB instance.
	gcTicker *time.Ticker   // Ticker for BadgerDB garbage collection.
	gcDone   chan struct{}  // closed by Stop to end the gc loop
	gcWg     sync.WaitGroup // tracks the running gc loop
	db       *badgerdb.DB   // the BadgerDB instance.
}

// ID returns the id of the hook.
func (h *Hook) ID() string {
	return "badger-db"
}

// Provides indicates which hook methods this hook provides.
func (h *Hook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnPublished,
		mqtt.OnPublishReceived,
		mqtt.StoredMessages,
	}, []byte{b})
}

// gcLoop periodically runs the garbage collection process to reclaim space in the value log files.
// It returns once done is closed.
func (h *Hook) gcLoop(t *time.Ticker, done <-chan struct{}, db *badgerdb.DB) {
	defer h.gcWg.Done()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			// repeat while a rewrite succeeds.
			for db.RunValueLogGC(h.config.GcDiscardRatio) == nil {
			}
		}
	}
}

// Init initializes and connects to the badger instance.
func (h *Hook) Init(config any) error {
	o, ok := config.(*Options)
	if !ok && config != nil {
		return mqtt.ErrInvalidConfigType
	}

	if o == nil {
		o = new(Options)
	}

	h.config = o

	if len(h.config.Path) == 0 {
		h.config.Path = defaultDbFile
	}

	if h.config.GcInterval == 0 {
		h.config.GcInterval = defaultGcInterval
	}

	if h.config.GcDiscardRatio <= 0.0 || h.config.GcDiscardRatio >= 1.0 {
		h.config.GcDiscardRatio = defaultGcDiscardRatio
	}

	if h.config.Options == nil {
		defaultOpts := badgerdb.DefaultOptions(h.config.Path)
		h.config.Options = &defaultOpts
	}
	h.config.Options.Logger = h

	var err error
	h.db, err = badgerdb.Open(*h.config.Options)
	if err != nil {
		return err
	}

	h.gcTicker = time.NewTicker(time.Duration(h.config.GcInterval) * time.Second)
	h.gcDone = make(chan struct{})
	h.gcWg.Add(1)
	go h.gcLoop(h.gcTicker, h.gcDone, h.db)

	return nil
}

// Stop closes the badger instance.
func (h *Hook) Stop() error {
	if h.gcTicker != nil {
		h.gcTicker.Stop()
		close(h.gcDone)
		h.gcWg.Wait()
		h.gcTicker = nil
	}

	if h.db == nil {
		return nil
	}

	err := h.db.Close()
	h.db = nil
	return err
}

// OnPublished journals a message sent by the client.
func (h *Hook) OnPublished(cl *mqtt.Client, pk packets.PublishPacket) {
	h.journal(storage.Sent, cl, pk)
}

// OnPublishReceived journals a message received by the client.
func (h *Hook) OnPublishReceived(cl *mqtt.Client, pk packets.PublishPacket) {
	h.journal(storage.Received, cl, pk)
}

// journal stores a copy of the publish packet.
func (h *Hook) journal(t string, cl *mqtt.Client, pk packets.PublishPacket) {
	if h.db == nil {
		h.Log.Error("", "error", storage.ErrDBFileNotOpen)
		return
	}

	m := storage.NewMessage(t, cl.ID(), pk)
	_ = h.setKv(m.ID, &m)
}

// DeleteMessage removes a journalled message by its id.
func (h *Hook) DeleteMessage(id string) error {
	if h.db == nil {
		return storage.ErrDBFileNotOpen
	}

	return h.delKv(id)
}

// GetMessage returns a journalled message by its id.
func (h *Hook) GetMessage(id string) (m storage.Message, err error) {
	if h.db == nil {
		return m, storage.ErrDBFileNotOpen
	}

	err = h.getKv(id, &m)
	if err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
		h.Log.Error("failed to read message", "error", err, "id", id)
	}
	return m, err
}

// StoredMessages returns all journalled messages in the order they were stored.
func (h *Hook) StoredMessages() (v []storage.Message, err error) {
	if h.db == nil {
		h.Log.Error("", "error", storage.ErrDBFileNotOpen)
		return v, storage.ErrDBFileNotOpen
	}

	err = h.iterKv(storage.MessageKey, func(value []byte) error {
		obj := storage.Message{}
		if err := obj.UnmarshalBinary(value); err != nil {
			return err
		}
		v = append(v, obj)
		return nil
	})
	return v, err
}

// Errorf satisfies the badger interface for an error logger.
func (h *Hook) Errorf(m string, v ...any) {
	h.Log.Error(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Warningf satisfies the badger interface for a warning logger.
func (h *Hook) Warningf(m string, v ...any) {
	h.Log.Warn(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Infof satisfies the badger interface for an info logger.
func (h *Hook) Infof(m string, v ...any) {
	h.Log.Info(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Debugf satisfies the badger interface for a debug logger.
func (h *Hook) Debugf(m string, v ...any) {
	h.Log.Debug(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// setKv stores a key-value pair in the database.
func (h *Hook) setKv(k string, v storage.Serializable) error {
	err := h.db.Update(func(txn *badgerdb.Txn) error {
		data, _ := v.MarshalBinary()
		return txn.Set([]byte(k), data)
	})
	if err != nil {
		h.Log.Error("failed to upsert data", "error", err, "key", k)
	}
	return err
}

// delKv deletes a key-value pair from the database.
func (h *Hook) delKv(k string) error {
	err := h.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(k))
	})

	if err != nil {
		h.Log.Error("failed to delete data", "error", err, "key", k)
	}
	return err
}

// getKv retrieves the value associated with a key from the database.
func (h *Hook) getKv(k string, v storage.Serializable) error {
	return h.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return v.UnmarshalBinary(value)
	})
}

// iterKv iterates over key-value pairs with keys having the specified prefix in the database.
func (h *Hook) iterKv(prefix string, visit func([]byte) error) error {
	err := h.db.View(func(txn *badgerdb.Txn) error {
		iterator := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer iterator.Close()

		for iterator.Seek([]byte(prefix)); iterator.ValidForPrefix([]byte(prefix)); iterator.Next() {
			value, err := iterator.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			if err := visit(value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.Log.Error("failed to find data", "error", err, "prefix", prefix)
	}
	return err
}
