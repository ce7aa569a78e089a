// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package config

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"

	"github.com/mochi-mqtt/client/hooks/debug"
	"github.com/mochi-mqtt/client/hooks/storage/badger"
	"github.com/mochi-mqtt/client/hooks/storage/bolt"
	"github.com/mochi-mqtt/client/hooks/storage/pebble"
	"github.com/mochi-mqtt/client/hooks/storage/redis"
	"github.com/mochi-mqtt/client/hooks/tracing"

	mqtt "github.com/mochi-mqtt/client"
)

// ErrNoCertificates indicates a ca file contained no usable certificates.
var ErrNoCertificates = errors.New("no certificates found in ca file")

// Config defines the structure of configuration data to be parsed from a config source.
type Config struct {
	URL         string       `yaml:"url" json:"url"`         // the broker url to connect to
	Metrics     string       `yaml:"metrics" json:"metrics"` // an address to serve client statistics on
	TLS         *TLSConfig   `yaml:"tls" json:"tls"`
	Options     mqtt.Options `yaml:"options" json:"options"`
	HookConfigs HookConfigs  `yaml:"hooks" json:"hooks"`
}

// TLSConfig contains the files used to configure secured transports.
type TLSConfig struct {
	CAFile             string `yaml:"ca_file" json:"ca_file"`
	CertFile           string `yaml:"cert_file" json:"cert_file"`
	KeyFile            string `yaml:"key_file" json:"key_file"`
	ServerName         string `yaml:"server_name" json:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// HookConfigs contains configurations to enable individual hooks.
type HookConfigs struct {
	Storage *HookStorageConfig `yaml:"storage" json:"storage"`
	Debug   *debug.Options     `yaml:"debug" json:"debug"`
	Tracing *tracing.Options   `yaml:"tracing" json:"tracing"`
}

// HookStorageConfig contains configurations for the different storage hooks.
type HookStorageConfig struct {
	Badger *badger.Options `yaml:"badger" json:"badger"`
	Bolt   *bolt.Options   `yaml:"bolt" json:"bolt"`
	Pebble *pebble.Options `yaml:"pebble" json:"pebble"`
	Redis  *redis.Options  `yaml:"redis" json:"redis"`
}

// ToHooks converts Hook file configurations into Hooks to be added to the client.
func (hc HookConfigs) ToHooks() []mqtt.HookLoadConfig {
	var hlc []mqtt.HookLoadConfig

	if hc.Storage != nil {
		hlc = append(hlc, hc.toHooksStorage()...)
	}

	if hc.Debug != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(debug.Hook),
			Config: hc.Debug,
		})
	}

	if hc.Tracing != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(tracing.Hook),
			Config: hc.Tracing,
		})
	}

	return hlc
}

// toHooksStorage converts storage hook configurations into storage hooks.
func (hc HookConfigs) toHooksStorage() []mqtt.HookLoadConfig {
	var hlc []mqtt.HookLoadConfig
	if hc.Storage.Badger != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(badger.Hook),
			Config: hc.Storage.Badger,
		})
	}

	if hc.Storage.Bolt != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(bolt.Hook),
			Config: hc.Storage.Bolt,
		})
	}

	if hc.Storage.Redis != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(redis.Hook),
			Config: hc.Storage.Redis,
		})
	}

	if hc.Storage.Pebble != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(pebble.Hook),
			Config: hc.Storage.Pebble,
		})
	}
	return hlc
}

// FromBytes unmarshals a byte slice of JSON or YAML config data into a valid config value.
// Any hooks configurations are converted into Hooks using the toHooks methods in this package.
func FromBytes(b []byte) (*Config, error) {
	c := new(Config)

	if len(b) == 0 {
		return c, nil
	}

	if b[0] == '{' {
		err := json.Unmarshal(b, c)
		if err != nil {
			return nil, err
		}
	} else {
		err := yaml.Unmarshal(b, c)
		if err != nil {
			return nil, err
		}
	}

	c.Options.Hooks = c.HookConfigs.ToHooks()

	if c.TLS != nil {
		tc, err := c.TLS.Load()
		if err != nil {
			return nil, err
		}
		c.Options.TLSConfig = tc
	}

	return c, nil
}

// FromFile reads and parses a JSON or YAML config file.
func FromFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return FromBytes(b)
}

// ApplyTo copies every option set in the config onto o, leaving options the
// config does not set untouched.
func (c *Config) ApplyTo(o *mqtt.Options) error {
	return copier.CopyWithOption(o, &c.Options, copier.Option{IgnoreEmpty: true})
}

// Load builds a tls config from the configured files.
func (t *TLSConfig) Load() (*tls.Config, error) {
	tc := &tls.Config{
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.InsecureSkipVerify, // #nosec G402
		MinVersion:         tls.VersionTLS12,
	}

	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read ca file: %w", err)
		}

		tc.RootCAs = x509.NewCertPool()
		if !tc.RootCAs.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: %s", ErrNoCertificates, t.CAFile)
		}
	}

	if t.CertFile != "" || t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}
