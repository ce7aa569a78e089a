// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	mqtt "github.com/mochi-mqtt/client"
	"github.com/mochi-mqtt/client/packets"
)

const (
	minBackoff = time.Second
	maxBackoff = time.Minute
)

func pubCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "pub <url> <topic> <message>",
		Short: "Publish a message",
		Long:  `Connect to the broker at url, publish message to topic at qos 0, and disconnect.`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, url, err := f.load(args)
			if err != nil {
				return err
			}
			defer cl.Close()

			ctx, stop := signalContext()
			defer stop()

			if _, err := cl.ConnectURL(ctx, url); err != nil {
				return err
			}

			return cl.Publish(&packets.PublishPacket{
				TopicName: args[1],
				Payload:   []byte(args[2]),
			})
		},
	}
}

func subCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "sub <url> <filter>",
		Short: "Subscribe to a topic filter and print messages",
		Long: `Connect to the broker at url, subscribe to filter at qos 0, and print each
message received as "topic payload". Lost connections are re-established with
an increasing backoff until interrupted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, url, err := f.load(args)
			if err != nil {
				return err
			}
			defer cl.Close()

			ctx, stop := signalContext()
			defer stop()

			serveMetrics(ctx, cl, f.metrics)

			connect := func(ctx context.Context) error {
				_, err := cl.ConnectURL(ctx, url)
				return err
			}

			return subscribe(ctx, cl, connect, args[1], cmd.OutOrStdout())
		},
	}
}

func getCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <url>",
		Short: "Fetch a http resource",
		Long:  `Fetch url with a http/1.0 GET and write the body, truncated to the buffer size, to stdout.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, url, err := f.load(args)
			if err != nil {
				return err
			}
			defer cl.Close()

			ctx, stop := signalContext()
			defer stop()

			body, err := cl.Get(ctx, url)
			if err != nil {
				return fmt.Errorf("%w (status %d)", err, mqtt.StatusCode(err))
			}

			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mochi-client %s %s %s/%s\n", mqtt.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// subscribe connects, subscribes to filter and prints messages to out until
// ctx is done, reconnecting after each lost connection. Errors which a retry
// cannot fix end the loop.
func subscribe(ctx context.Context, cl *mqtt.Client, connect func(context.Context) error, filter string, out io.Writer) error {
	backoff := minBackoff
	for {
		err := connect(ctx)
		if err == nil {
			backoff = minBackoff
			err = listen(ctx, cl, filter, out)
		}

		if ctx.Err() != nil {
			return nil
		}

		if permanent(err) {
			return err
		}

		cl.Log.Warn("connection lost, retrying", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff)
	}
}

// listen subscribes to filter on the connected client and prints each message
// received until ctx is done or the connection fails.
func listen(ctx context.Context, cl *mqtt.Client, filter string, out io.Writer) error {
	ack, err := cl.Subscribe(&packets.SubscribePacket{Filter: filter})
	if err != nil {
		return err
	}

	if ack.ReturnCode >= packets.ErrSubscriptionFailure.Code {
		return fmt.Errorf("%w: subscription to %q", ack.Code(), filter)
	}

	for {
		if ctx.Err() != nil {
			return cl.Disconnect()
		}

		typ, err := cl.Event()
		if errors.Is(err, mqtt.ErrTimeout) {
			if err := cl.SendPing(); err != nil {
				return err
			}
			continue
		}

		if err != nil {
			return err
		}

		if typ != packets.Publish {
			continue
		}

		pk, err := cl.ReadPublish()
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s %s\n", pk.TopicName, pk.Payload)
	}
}

// permanent returns true if err will not be resolved by reconnecting.
func permanent(err error) bool {
	return errors.Is(err, mqtt.ErrBadURL) ||
		errors.Is(err, mqtt.ErrConnectionRefused) ||
		errors.Is(err, mqtt.ErrTooBig) ||
		errors.Is(err, packets.ErrSubscriptionFailure)
}

// nextBackoff doubles backoff up to maxBackoff.
func nextBackoff(backoff time.Duration) time.Duration {
	backoff *= 2
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
