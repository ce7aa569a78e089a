// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/mochi-mqtt/client/packets"
	"github.com/mochi-mqtt/client/transports"
)

// ConnectURL parses raw as a broker url and connects to it.
func (c *Client) ConnectURL(ctx context.Context, raw string) (packets.ConnackPacket, error) {
	ep, err := transports.ParseURL(raw)
	if err != nil {
		return packets.ConnackPacket{}, err
	}

	return c.Connect(ctx, ep)
}

// Connect establishes a transport to the endpoint and performs the connect
// handshake. Any existing connection is disconnected first. The ctx bounds
// resolving and dialing the endpoint.
func (c *Client) Connect(ctx context.Context, ep transports.Endpoint) (packets.ConnackPacket, error) {
	if ep.Protocol != transports.ProtocolMQTT {
		return packets.ConnackPacket{}, fmt.Errorf("%w: %s is not a broker scheme", ErrBadURL, ep.Scheme)
	}

	c.Disconnect()
	c.endpoint = ep
	c.setState(StateConnecting)

	conn, err := transports.Dial(ctx, ep, c.transportConfig())
	if err != nil {
		c.setState(StateDisconnected)
		return packets.ConnackPacket{}, c.classify(err)
	}

	return c.ConnectTransport(conn)
}

// ConnectTransport performs the connect handshake over an established
// transport, which the client takes ownership of. The handshake completes
// when any connack is received; its return code is returned to the caller
// and is only enforced if Options.RejectRefused is set.
func (c *Client) ConnectTransport(conn transports.Transport) (ack packets.ConnackPacket, err error) {
	if c.conn != nil && c.conn != conn {
		c.Disconnect()
	}

	c.conn = conn
	c.setState(StateConnecting)

	if d := transports.ReadTimeout(c.Options.Keepalive); d > 0 {
		if err := conn.SetReadTimeout(d); err != nil {
			return ack, c.fail(err)
		}
	}

	pk := packets.ConnectPacket{
		ProtocolName:    packets.ProtocolName,
		ProtocolVersion: packets.ProtocolVersion,
		Clean:           true,
		Keepalive:       c.Options.Keepalive,
		ClientID:        c.Options.ClientID,
	}

	username, password := c.Options.Username, c.Options.Password
	if c.endpoint.Username != "" {
		username, password = c.endpoint.Username, c.endpoint.Password
	}

	if username != "" {
		pk.Username = []byte(username)
	}

	if password != "" {
		pk.Password = []byte(password)
	}

	if err := c.hooks.OnConnect(c, pk); err != nil {
		c.closeConn(err)
		return ack, err
	}

	if err := pk.Encode(c.packet); err != nil {
		err = encodeErr(err)
		c.closeConn(err)
		return ack, err
	}

	if err := c.send(); err != nil {
		return ack, err
	}

	if _, err := c.WaitFor(packets.Connack); err != nil {
		c.closeConn(err)
		return ack, err
	}

	if err := ack.Decode(c.packet); err != nil {
		c.closeConn(err)
		return ack, err
	}

	c.setState(StateConnected)
	atomic.StoreInt64(&c.Info.Connected, 1)
	atomic.AddInt64(&c.Info.Connects, 1)
	c.hooks.OnConnack(c, ack)

	if ack.ReturnCode != packets.CodeSuccess.Code {
		c.Log.Warn("broker refused connection", "code", ack.ReturnCode, "reason", ack.Code().Reason, "remote", conn.Address())
		if c.Options.RejectRefused {
			err := fmt.Errorf("%w: %w", ErrConnectionRefused, ack.Code())
			c.closeConn(err)
			return ack, err
		}
		return ack, nil
	}

	c.Log.Info("connected", "remote", conn.Address(), "transport", conn.Type(), "session_present", ack.SessionPresent)
	return ack, nil
}

// Publish sends a publish packet at qos 0. A packet id is issued for the
// message but is not sent, and no acknowledgement is awaited.
func (c *Client) Publish(pk *packets.PublishPacket) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	pk.PacketID = c.NextPacketID()
	pk.FixedHeader.Qos = 0
	if err := pk.Encode(c.packet); err != nil {
		return encodeErr(err)
	}

	if err := c.send(); err != nil {
		return err
	}

	atomic.AddInt64(&c.Info.MessagesSent, 1)
	c.hooks.OnPublished(c, *pk)
	return nil
}

// Subscribe sends a subscribe packet for a single filter at qos 0 and waits
// for the suback.
func (c *Client) Subscribe(pk *packets.SubscribePacket) (ack packets.SubackPacket, err error) {
	if c.conn == nil {
		return ack, ErrNotConnected
	}

	pk.PacketID = c.NextPacketID()
	pk.Qos = 0
	if err := pk.Encode(c.packet); err != nil {
		return ack, encodeErr(err)
	}

	if err := c.send(); err != nil {
		return ack, err
	}

	if _, err := c.WaitFor(packets.Suback); err != nil {
		return ack, err
	}

	if err := ack.Decode(c.packet); err != nil {
		c.closeConn(err)
		return ack, err
	}

	if ack.ReturnCode == packets.ErrSubscriptionFailure.Code {
		c.Log.Warn("subscription refused", "filter", pk.Filter, "packet_id", ack.PacketID)
	}

	c.hooks.OnSubscribed(c, *pk, ack)
	return ack, nil
}

// Ping sends a pingreq and waits for the pingresp.
func (c *Client) Ping() error {
	if err := c.SendPing(); err != nil {
		return err
	}

	_, err := c.WaitFor(packets.Pingresp)
	return err
}

// SendPing sends a pingreq without waiting for the response. Event loops
// call it when Event returns ErrTimeout.
func (c *Client) SendPing() error {
	if c.conn == nil {
		return ErrNotConnected
	}

	if err := packets.EncodePingreq(c.packet); err != nil {
		return encodeErr(err)
	}

	if err := c.send(); err != nil {
		return err
	}

	atomic.AddInt64(&c.Info.PingsSent, 1)
	return nil
}

// WaitFor reads frames until one of the expected type arrives. Each read
// timeout sends a keepalive ping and the wait continues; the resulting
// pingresp, like any other unexpected frame, is discarded. Any other error
// ends the wait.
func (c *Client) WaitFor(expect byte) (byte, error) {
	for {
		t, err := c.Event()
		if errors.Is(err, ErrTimeout) {
			if err := c.SendPing(); err != nil {
				return 0, err
			}
			continue
		}

		if err != nil {
			return 0, err
		}

		if t == expect {
			return t, nil
		}

		c.Log.Debug("discarding packet while waiting", "type", packets.Names[t], "expected", packets.Names[expect])
	}
}

// Disconnect sends a disconnect packet, without failing if it cannot be
// sent, then closes the transport.
func (c *Client) Disconnect() error {
	if c.conn == nil {
		return nil
	}

	if err := packets.EncodeDisconnect(c.packet); err == nil {
		if _, err := c.conn.Write(c.packet.Bytes()); err != nil {
			c.Log.Debug("failed to send disconnect", "error", err)
		}
	}

	return c.closeConn(nil)
}

// Event reads one whole frame from the transport into the packet buffer and
// returns its packet type. It returns ErrTimeout if no data arrives before
// the read timeout, which leaves the connection open. Transport failures,
// malformed frames, and frames too large for the packet buffer close the
// connection. A received publish is decoded for hooks before returning; use
// ReadPublish to decode it for the caller.
func (c *Client) Event() (byte, error) {
	if c.conn == nil {
		return 0, ErrNotConnected
	}

	c.packet.ResetRead()
	hb, _ := c.packet.Extend(1)
	if n, err := c.conn.Read(hb); n == 0 {
		if err == nil || transports.IsTimeout(err) {
			atomic.AddInt64(&c.Info.Timeouts, 1)
			c.hooks.OnTimeout(c)
			return 0, ErrTimeout
		}
		return 0, c.fail(err)
	}

	length, err := packets.DecodeLength(frameReader{c})
	if errors.Is(err, packets.ErrMalformedVariableByteInteger) {
		c.closeConn(err)
		return 0, err
	} else if err != nil {
		return 0, c.fail(err)
	}

	// one byte of capacity is always kept in reserve beyond the frame.
	if length+1 > c.packet.Free() {
		err := fmt.Errorf("%w: remaining length %d with %d bytes free", ErrTooBig, length, c.packet.Free()-1)
		c.closeConn(err)
		return 0, err
	}

	if length > 0 {
		body, _ := c.packet.Extend(length)
		if err := c.readFull(body); err != nil {
			return 0, c.fail(err)
		}
	}

	fh, err := c.packet.ReadHeader()
	if err != nil {
		c.closeConn(err)
		return 0, err
	}

	c.packet.Rewind()
	c.header = fh
	atomic.AddInt64(&c.Info.BytesReceived, int64(c.packet.Len()))
	atomic.AddInt64(&c.Info.PacketsReceived, 1)
	c.hooks.OnPacketRead(c, fh, c.packet.Bytes())

	if fh.Type == packets.Publish {
		atomic.AddInt64(&c.Info.MessagesReceived, 1)
		if c.hooks.Provides(OnPublishReceived) {
			var pk packets.PublishPacket
			if err := pk.Decode(c.packet); err != nil {
				c.closeConn(err)
				return 0, err
			}
			c.packet.Rewind()
			c.hooks.OnPublishReceived(c, pk)
		}
	}

	return fh.Type, nil
}

// ReadPublish decodes the publish packet most recently returned by Event.
// The topic and payload are views into the packet buffer which are only
// valid until the next operation on the client.
func (c *Client) ReadPublish() (pk packets.PublishPacket, err error) {
	if c.header.Type != packets.Publish {
		return pk, packets.ErrProtocolViolationUnexpected
	}

	err = pk.Decode(c.packet)
	c.packet.Rewind()
	return pk, err
}

// send writes the frame in the packet buffer to the transport. A failed
// write closes the connection.
func (c *Client) send() error {
	if c.conn == nil {
		return ErrNotConnected
	}

	b := c.packet.Bytes()
	if _, err := c.conn.Write(b); err != nil {
		return c.fail(err)
	}

	atomic.AddInt64(&c.Info.BytesSent, int64(len(b)))
	atomic.AddInt64(&c.Info.PacketsSent, 1)

	if c.hooks.Provides(OnPacketSent) {
		fh, _ := c.packet.PeekHeader()
		c.hooks.OnPacketSent(c, fh, b)
	}

	return nil
}

// readFull fills p from the transport. Any short read is a failure, since
// the frame boundary is lost.
func (c *Client) readFull(p []byte) error {
	for len(p) > 0 {
		n, err := c.conn.Read(p)
		p = p[n:]
		if len(p) == 0 {
			return nil
		}

		if err != nil {
			return err
		}

		if n == 0 {
			return io.ErrUnexpectedEOF
		}
	}

	return nil
}

// frameReader reads single bytes from the transport into the packet buffer.
type frameReader struct {
	c *Client
}

// ReadByte reads and stores the next byte of the frame.
func (r frameReader) ReadByte() (byte, error) {
	p, ok := r.c.packet.Extend(1)
	if !ok {
		return 0, packets.ErrBufferOverflow
	}

	if err := r.c.readFull(p); err != nil {
		return 0, err
	}

	return p[0], nil
}
