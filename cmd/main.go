// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	mqtt "github.com/mochi-mqtt/client"
	"github.com/mochi-mqtt/client/config"
	"github.com/mochi-mqtt/client/system"
)

const defaultKeepalive = 60

// flags contains the options shared by every command.
type flags struct {
	config  string       // path to a yaml or json config file
	metrics string       // address to serve client statistics on
	verbose bool         // log at debug level
	options mqtt.Options // options set on the command line, which take precedence over the config file
}

func main() {
	f := new(flags)

	rootCmd := &cobra.Command{
		Use:   "mochi-client",
		Short: "A small MQTT 3.1.1 client",
		Long: `mochi-client publishes and subscribes to MQTT brokers over tcp, tls,
ws and wss, and fetches plain http resources with the same fixed buffer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "", "path to a yaml or json config file")
	pf.StringVar(&f.metrics, "metrics", "", "address to serve /sysinfo and /metrics on, eg. :8080")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")
	pf.StringVarP(&f.options.ClientID, "id", "i", "", "client id, generated if empty")
	pf.StringVarP(&f.options.Username, "username", "u", "", "username sent when connecting")
	pf.StringVarP(&f.options.Password, "password", "P", "", "password sent when connecting")
	pf.Uint16VarP(&f.options.Keepalive, "keepalive", "k", 0, "keepalive in seconds (default 60)")
	pf.IntVar(&f.options.BufferSize, "buffer-size", 0, "packet buffer size in bytes")
	pf.BoolVar(&f.options.RejectRefused, "reject-refused", false, "fail if the broker refuses the connection")

	rootCmd.AddCommand(
		pubCmd(f),
		subCmd(f),
		getCmd(f),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// signalContext returns a context which is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// load builds a client from the config file and command line flags. The
// returned url is the url argument if given, otherwise the configured url.
func (f *flags) load(args []string) (*mqtt.Client, string, error) {
	conf := new(config.Config)
	if f.config != "" {
		var err error
		conf, err = config.FromFile(f.config)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
	}

	opts, err := f.merge(conf)
	if err != nil {
		return nil, "", err
	}

	if f.metrics == "" {
		f.metrics = conf.Metrics
	}

	url := conf.URL
	if len(args) > 0 {
		url = args[0]
	}

	if url == "" {
		return nil, "", fmt.Errorf("%w: no url given", mqtt.ErrBadURL)
	}

	cl := mqtt.New(opts)
	if err := cl.AddHooksFromConfig(opts.Hooks); err != nil {
		return nil, "", err
	}

	return cl, url, nil
}

// merge returns the options of the config overlaid with any options set on
// the command line.
func (f *flags) merge(conf *config.Config) (*mqtt.Options, error) {
	opts := conf.Options
	if err := (&config.Config{Options: f.options}).ApplyTo(&opts); err != nil {
		return nil, err
	}

	if opts.Keepalive == 0 {
		opts.Keepalive = defaultKeepalive
	}

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}

	opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	return &opts, nil
}

// serveMetrics serves the client statistics on addr until ctx is done.
func serveMetrics(ctx context.Context, cl *mqtt.Client, addr string) {
	if addr == "" {
		return
	}

	registry := prometheus.NewRegistry()
	cl.Info.RegisterPrometheusMetrics(registry)

	srv := &http.Server{
		Addr:              addr,
		Handler:           system.Handler(cl.Info, registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	go func() {
		cl.Log.Info("serving client statistics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cl.Log.Error("statistics server failed", "error", err)
		}
	}()
}
