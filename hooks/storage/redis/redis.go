// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package redis journals sent and received messages to a redis hash.
package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mochi-mqtt/client"
	"github.com/mochi-mqtt/client/hooks/storage"
	"github.com/mochi-mqtt/client/packets"

	redis "github.com/go-redis/redis/v8"
)

// defaultAddr is the default address to the redis service.
const defaultAddr = "localhost:6379"

// defaultHPrefix is a prefix to better identify hsets created by mochi mqtt.
const defaultHPrefix = "mochi-"

// Options contains configuration settings for the redis instance. Options
// takes precedence over the connection fields when set.
type Options struct {
	Options  *redis.Options `yaml:"-" json:"-"`
	HPrefix  string         `yaml:"h_prefix" json:"h_prefix"`
	Address  string         `yaml:"address" json:"address"`
	Username string         `yaml:"username" json:"username"`
	Password string         `yaml:"password" json:"password"`
	Database int            `yaml:"database" json:"database"`
}

// Hook is a message journal hook using redis as a backend.
type Hook struct {
	mqtt.HookBase
	config *Options        // options for connecting to the Redis instance.
	db     *redis.Client   // the Redis instance
	ctx    context.Context // a context for the connection
}

// ID returns the id of the hook.
func (h *Hook) ID() string {
	return "redis-db"
}

// Provides indicates which hook methods this hook provides.
func (h *Hook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnPublished,
		mqtt.OnPublishReceived,
		mqtt.StoredMessages,
	}, []byte{b})
}

// hKey returns a hash set key with a unique prefix.
func (h *Hook) hKey(s string) string {
	return h.config.HPrefix + s
}

// Init initializes and connects to the redis service.
func (h *Hook) Init(config any) error {
	o, ok := config.(*Options)
	if !ok && config != nil {
		return mqtt.ErrInvalidConfigType
	}

	h.ctx = context.Background()

	if o == nil {
		o = new(Options)
	}

	h.config = o
	if h.config.Options == nil {
		h.config.Options = &redis.Options{
			Addr:     h.config.Address,
			Username: h.config.Username,
			Password: h.config.Password,
			DB:       h.config.Database,
		}
	}

	if h.config.Options.Addr == "" {
		h.config.Options.Addr = defaultAddr
	}

	if h.config.HPrefix == "" {
		h.config.HPrefix = defaultHPrefix
	}

	h.Log.Info(
		"connecting to redis service",
		"prefix", h.config.HPrefix,
		"address", h.config.Options.Addr,
		"username", h.config.Options.Username,
		"password-len", len(h.config.Options.Password),
		"db", h.config.Options.DB,
	)

	h.db = redis.NewClient(h.config.Options)
	_, err := h.db.Ping(h.ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping service: %w", err)
	}

	h.Log.Info("connected to redis service")

	return nil
}

// Stop closes the redis connection.
func (h *Hook) Stop() error {
	if h.db == nil {
		return nil
	}

	h.Log.Info("disconnecting from redis service")
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
	err := h.db.HSet(h.ctx, h.hKey(storage.MessageKey), m.ID, &m).Err()
	if err != nil {
		h.Log.Error("failed to hset message data", "error", err, "id", m.ID)
	}
}

// DeleteMessage removes a journalled message by its id.
func (h *Hook) DeleteMessage(id string) error {
	if h.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := h.db.HDel(h.ctx, h.hKey(storage.MessageKey), id).Err()
	if err != nil {
		h.Log.Error("failed to delete message data", "error", err, "id", id)
	}
	return err
}

// GetMessage returns a journalled message by its id.
func (h *Hook) GetMessage(id string) (m storage.Message, err error) {
	if h.db == nil {
		return m, storage.ErrDBFileNotOpen
	}

	row, err := h.db.HGet(h.ctx, h.hKey(storage.MessageKey), id).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			h.Log.Error("failed to hget message data", "error", err, "id", id)
		}
		return m, err
	}

	err = m.UnmarshalBinary([]byte(row))
	return m, err
}

// StoredMessages returns all journalled messages in the order they were stored.
func (h *Hook) StoredMessages() (v []storage.Message, err error) {
	if h.db == nil {
		h.Log.Error("", "error", storage.ErrDBFileNotOpen)
		return v, storage.ErrDBFileNotOpen
	}

	rows, err := h.db.HGetAll(h.ctx, h.hKey(storage.MessageKey)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		h.Log.Error("failed to HGetAll message data", "error", err)
		return
	}

	for _, row := range rows {
		var d storage.Message
		if err = d.UnmarshalBinary([]byte(row)); err != nil {
			h.Log.Error("failed to unmarshal message data", "error", err, "data", row)
			continue
		}

		v = append(v, d)
	}

	// ids are xids, which sort by creation time.
	sort.Slice(v, func(i, j int) bool {
		return v[i].ID < v[j].ID
	})

	return v, nil
}
