// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transports

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Kind is the variant of transport an endpoint is reached over.
type Kind byte

const (
	KindPlain Kind = iota
	KindSecured
	KindWebsocket
	KindSecuredWebsocket
)

// String returns the readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindSecured:
		return "secured"
	case KindWebsocket:
		return "websocket"
	case KindSecuredWebsocket:
		return "secured websocket"
	}
	return "unknown"
}

// Secure returns true if the kind is encrypted.
func (k Kind) Secure() bool {
	return k == KindSecured || k == KindSecuredWebsocket
}

const (
	ProtocolMQTT = "mqtt"
	ProtocolHTTP = "http"
)

type scheme struct {
	protocol string
	kind     Kind
	port     int
}

var schemes = map[string]scheme{
	"mqtt":  {protocol: ProtocolMQTT, kind: KindPlain, port: 1883},
	"tcp":   {protocol: ProtocolMQTT, kind: KindPlain, port: 1883},
	"mqtts": {protocol: ProtocolMQTT, kind: KindSecured, port: 8883},
	"ssl":   {protocol: ProtocolMQTT, kind: KindSecured, port: 8883},
	"ws":    {protocol: ProtocolMQTT, kind: KindWebsocket, port: 80},
	"wss":   {protocol: ProtocolMQTT, kind: KindSecuredWebsocket, port: 443},
	"http":  {protocol: ProtocolHTTP, kind: KindPlain, port: 80},
	"https": {protocol: ProtocolHTTP, kind: KindSecured, port: 443},
}

// Endpoint is a parsed broker or http url.
type Endpoint struct {
	Scheme   string `json:"scheme"`
	Protocol string `json:"protocol"` // mqtt or http
	Host     string `json:"host"`
	Path     string `json:"path"`
	Query    string `json:"query"`
	Username string `json:"username"`
	Password string `json:"-"`
	Port     int    `json:"port"`
	Kind     Kind   `json:"kind"`
}

// Address returns the host:port of the endpoint.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// RequestURI returns the escaped path and query of the endpoint.
func (e Endpoint) RequestURI() string {
	u := url.URL{Path: e.Path, RawQuery: e.Query}
	return u.RequestURI()
}

// ParseURL parses a url of the form scheme://[user[:pass]@]host[:port][/path],
// applying the default port for the scheme when none is given.
func ParseURL(raw string) (ep Endpoint, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ep, fmt.Errorf("%w: %w", ErrBadURL, err)
	}

	s, ok := schemes[u.Scheme]
	if !ok {
		return ep, fmt.Errorf("%w: unrecognised scheme %q", ErrBadURL, u.Scheme)
	}

	if u.Hostname() == "" {
		return ep, fmt.Errorf("%w: missing host", ErrBadURL)
	}

	ep = Endpoint{
		Scheme:   u.Scheme,
		Protocol: s.protocol,
		Kind:     s.kind,
		Host:     u.Hostname(),
		Port:     s.port,
		Path:     u.Path,
		Query:    u.RawQuery,
	}

	if p := u.Port(); p != "" {
		ep.Port, err = strconv.Atoi(p)
		if err != nil || ep.Port < 1 || ep.Port > 65535 {
			return Endpoint{}, fmt.Errorf("%w: invalid port %q", ErrBadURL, p)
		}
	}

	if u.User != nil {
		ep.Username = u.User.Username()
		ep.Password, _ = u.User.Password()
	}

	return ep, nil
}
