// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package system

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Info contains atomic counters and values for the statistics of a client
// connection, kept across reconnects.
type Info struct {
	Version          string `json:"version"`           // the current version of the client
	Started          int64  `json:"started"`           // the time the client was created in unix seconds
	Time             int64  `json:"time"`              // current time on the client
	Uptime           int64  `json:"uptime"`            // the number of seconds the client has existed
	Connected        int64  `json:"connected"`         // 1 while a connection is established
	Connects         int64  `json:"connects"`          // total number of successful connect handshakes
	Disconnects      int64  `json:"disconnects"`       // total number of closed connections
	BytesReceived    int64  `json:"bytes_received"`    // total number of bytes received
	BytesSent        int64  `json:"bytes_sent"`        // total number of bytes sent
	PacketsReceived  int64  `json:"packets_received"`  // total number of packets of any type received
	PacketsSent      int64  `json:"packets_sent"`      // total number of packets of any type sent
	MessagesReceived int64  `json:"messages_received"` // total number of publish messages received
	MessagesSent     int64  `json:"messages_sent"`     // total number of publish messages sent
	PingsSent        int64  `json:"pings_sent"`        // total number of keepalive pings sent
	Timeouts         int64  `json:"timeouts"`          // total number of reads which timed out
	MemoryAlloc      int64  `json:"memory_alloc"`      // memory currently allocated
	Threads          int64  `json:"threads"`           // number of active goroutines, named as threads for platform ambiguity
}

// NewInfo returns a new Info with the start time set to now.
func NewInfo(version string) *Info {
	return &Info{
		Version: version,
		Started: time.Now().Unix(),
	}
}

// Clone makes a copy of Info using atomic operation
func (i *Info) Clone() *Info {
	return &Info{
		Version:          i.Version,
		Started:          atomic.LoadInt64(&i.Started),
		Time:             atomic.LoadInt64(&i.Time),
		Uptime:           atomic.LoadInt64(&i.Uptime),
		Connected:        atomic.LoadInt64(&i.Connected),
		Connects:         atomic.LoadInt64(&i.Connects),
		Disconnects:      atomic.LoadInt64(&i.Disconnects),
		BytesReceived:    atomic.LoadInt64(&i.BytesReceived),
		BytesSent:        atomic.LoadInt64(&i.BytesSent),
		PacketsReceived:  atomic.LoadInt64(&i.PacketsReceived),
		PacketsSent:      atomic.LoadInt64(&i.PacketsSent),
		MessagesReceived: atomic.LoadInt64(&i.MessagesReceived),
		MessagesSent:     atomic.LoadInt64(&i.MessagesSent),
		PingsSent:        atomic.LoadInt64(&i.PingsSent),
		Timeouts:         atomic.LoadInt64(&i.Timeouts),
		MemoryAlloc:      atomic.LoadInt64(&i.MemoryAlloc),
		Threads:          atomic.LoadInt64(&i.Threads),
	}
}

// Refresh updates the time, uptime, and runtime values.
func (i *Info) Refresh() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	now := time.Now().Unix()
	atomic.StoreInt64(&i.Time, now)
	atomic.StoreInt64(&i.Uptime, now-atomic.LoadInt64(&i.Started))
	atomic.StoreInt64(&i.MemoryAlloc, int64(m.HeapInuse))
	atomic.StoreInt64(&i.Threads, int64(runtime.NumGoroutine()))
}

// RegisterPrometheusMetrics registers the counters of the info with registry,
// or with the default registerer if registry is nil.
func (i *Info) RegisterPrometheusMetrics(registry prometheus.Registerer) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	type metrics struct {
		metricType string
		name       string
		help       string
		value      *int64
	}

	metricsList := []metrics{
		{"g", "connected", "A gauge which is 1 while the client is connected", &i.Connected},
		{"c", "connects", "A counter of successful connect handshakes", &i.Connects},
		{"c", "disconnects", "A counter of closed connections", &i.Disconnects},
		{"c", "bytes_received", "A count of total number of bytes received", &i.BytesReceived},
		{"c", "bytes_sent", "A counter total number of bytes sent", &i.BytesSent},
		{"c", "packets_received", "A counter of the total number of packets received", &i.PacketsReceived},
		{"c", "packets_sent", "A counter of the total number of packets sent", &i.PacketsSent},
		{"c", "messages_received", "A counter of total number of publish messages received", &i.MessagesReceived},
		{"c", "messages_sent", "A counter of total number of publish messages sent", &i.MessagesSent},
		{"c", "pings_sent", "A counter of keepalive pings sent", &i.PingsSent},
		{"c", "read_timeouts", "A counter of reads which timed out", &i.Timeouts},
	}

	for _, m := range metricsList {
		m := m
		fn := func() float64 {
			return float64(atomic.LoadInt64(m.value))
		}

		switch m.metricType {
		case "c":
			registry.MustRegister(
				prometheus.NewCounterFunc(
					prometheus.CounterOpts{
						Namespace: "mqtt_client",
						Name:      m.name,
						Help:      m.help,
					},
					fn,
				),
			)
		case "g":
			registry.MustRegister(
				prometheus.NewGaugeFunc(
					prometheus.GaugeOpts{
						Namespace: "mqtt_client",
						Name:      m.name,
						Help:      m.help,
					},
					fn,
				),
			)
		}
	}

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mqtt_client",
			Name:      "build_info",
			Help:      "Build Information",
		},
		[]string{"goversion", "version"},
	)
	registry.MustRegister(buildInfo)
	buildInfo.With(prometheus.Labels{"goversion": runtime.Version(), "version": i.Version}).Set(1)
}
