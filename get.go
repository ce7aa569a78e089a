// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mochi-mqtt/client/transports"
)

// Get fetches an http or https url with a bare HTTP/1.0 request on its own
// transport, leaving any broker connection untouched. The body is read into
// the packet buffer, bounded by the Content-Length header and the buffer
// capacity, and the returned slice is only valid until the next operation on
// the client. A status other than 200 is returned as an *HTTPStatusError.
func (c *Client) Get(ctx context.Context, raw string) ([]byte, error) {
	ep, err := transports.ParseURL(raw)
	if err != nil {
		return nil, err
	}

	if ep.Protocol != transports.ProtocolHTTP {
		return nil, fmt.Errorf("%w: %s is not an http scheme", ErrBadURL, ep.Scheme)
	}

	conn, err := transports.Dial(ctx, ep, c.transportConfig())
	if err != nil {
		return nil, c.classify(err)
	}
	defer conn.Close()

	if err := conn.SetReadTimeout(time.Duration(c.Options.HTTPTimeout) * time.Second); err != nil {
		return nil, c.classify(err)
	}

	req := "GET " + ep.RequestURI() + " HTTP/1.0\r\nHost: " + ep.Host + "\r\n\r\n"
	if _, err := io.WriteString(conn, req); err != nil {
		return nil, c.classify(err)
	}

	r := bufio.NewReader(conn)
	tp := textproto.NewReader(r)
	line, err := tp.ReadLine()
	if err != nil {
		return nil, c.readErr(err)
	}

	code, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	if code != 200 {
		return nil, &HTTPStatusError{Code: code}
	}

	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, c.readErr(err)
	}

	limit := c.packet.Cap() - 1
	sized := false
	if v := header.Get("Content-Length"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: content length %q", ErrMalformedResponse, v)
		}

		if n > limit {
			c.Log.Warn("truncating http body to buffer capacity", "content_length", n, "capacity", limit, "url", raw)
		} else {
			limit = n
		}
		sized = true
	}

	c.packet.ResetRead()
	body, _ := c.packet.Extend(limit)
	n, err := io.ReadFull(r, body)
	if err != nil && (sized || !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF)) {
		return nil, c.readErr(err)
	}

	atomic.AddInt64(&c.Info.BytesReceived, int64(n))
	return body[:n], nil
}

// readErr maps a failed read to the client taxonomy.
func (c *Client) readErr(err error) error {
	if transports.IsTimeout(err) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	return c.classify(err)
}

// parseStatusLine returns the status code of an HTTP/1.0 or HTTP/1.1 status line.
func parseStatusLine(line string) (int, error) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || (proto != "HTTP/1.0" && proto != "HTTP/1.1") {
		return 0, fmt.Errorf("%w: status line %q", ErrMalformedResponse, line)
	}

	status, _, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	code, err := strconv.Atoi(status)
	if err != nil || len(status) != 3 {
		return 0, fmt.Errorf("%w: status code %q", ErrMalformedResponse, status)
	}

	return code, nil
}
