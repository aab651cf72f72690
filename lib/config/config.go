// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/forward/lib/codec"
	"github.com/bureau-foundation/forward/lib/sender"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "FORWARD_CONFIG"

// Syntax is the surface syntax of a config file.
type Syntax int

const (
	// YAML is the default syntax.
	YAML Syntax = iota
	// JSONC is JSON with comments and trailing commas.
	JSONC
)

// SyntaxFor picks the syntax from a file name's extension.
func SyntaxFor(path string) Syntax {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return JSONC
	default:
		return YAML
	}
}

// Config is the on-disk sender configuration.
type Config struct {
	// Host is the collector's host name or IP address.
	Host string `yaml:"host"`

	// Port is the collector's TCP port.
	Port int `yaml:"port"`

	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Buffer bounds the in-memory retry buffer.
	Buffer BufferConfig `yaml:"buffer"`

	// Reconnect controls how often a failed connection is retried.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Format is the wire format: "msgpack" or "cbor".
	Format codec.Format `yaml:"format"`

	// StampMissingTime stamps events emitted without a time with the
	// sender's clock instead of leaving it to the collector.
	StampMissingTime bool `yaml:"stamp_missing_time"`
}

// BufferConfig bounds the retry buffer. Zero disables a bound; at
// least one must be positive.
type BufferConfig struct {
	MaxBytes   int `yaml:"max_bytes"`
	MaxEntries int `yaml:"max_entries"`
}

// ReconnectConfig sets the reconnect suppression window.
type ReconnectConfig struct {
	// Suppression is the minimum time after a failure before the next
	// reconnect attempt.
	Suppression time.Duration `yaml:"suppression"`

	// MaxSuppression caps the window as it doubles across consecutive
	// failed reconnects. Equal to Suppression disables doubling.
	MaxSuppression time.Duration `yaml:"max_suppression"`
}

// Default returns the configuration used for keys a file omits. It
// matches sender.DefaultConfig, pointed at a local Fluentd.
func Default() *Config {
	defaults := sender.DefaultConfig()
	host, port, _ := net.SplitHostPort(defaults.Address)
	portNumber, _ := strconv.Atoi(port)
	return &Config{
		Host:           host,
		Port:           portNumber,
		ConnectTimeout: defaults.ConnectTimeout,
		WriteTimeout:   defaults.WriteTimeout,
		Buffer: BufferConfig{
			MaxBytes:   defaults.BufferMaxBytes,
			MaxEntries: defaults.BufferMaxEntries,
		},
		Reconnect: ReconnectConfig{
			Suppression:    defaults.ReconnectSuppression,
			MaxSuppression: defaults.ReconnectMaxSuppression,
		},
		Format:           defaults.Format,
		StampMissingTime: defaults.StampMissingTime,
	}
}

// Load loads configuration from the file named by FORWARD_CONFIG. It
// fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your forward config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads and validates configuration from path. Keys the file
// omits keep their Default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data, SyntaxFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default, expands variables in Host, and
// validates the result.
func Parse(data []byte, syntax Syntax) (*Config, error) {
	if syntax == JSONC {
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Host = expandVars(cfg.Host)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Address returns "host:port".
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("write_timeout must be positive, got %s", c.WriteTimeout))
	}
	if c.Buffer.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("buffer.max_bytes must not be negative, got %d", c.Buffer.MaxBytes))
	}
	if c.Buffer.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("buffer.max_entries must not be negative, got %d", c.Buffer.MaxEntries))
	}
	if c.Buffer.MaxBytes == 0 && c.Buffer.MaxEntries == 0 {
		errs = append(errs, errors.New("buffer: at least one of max_bytes and max_entries must be positive"))
	}
	if c.Reconnect.Suppression < 0 {
		errs = append(errs, fmt.Errorf("reconnect.suppression must not be negative, got %s", c.Reconnect.Suppression))
	}
	if c.Reconnect.MaxSuppression != 0 && c.Reconnect.MaxSuppression < c.Reconnect.Suppression {
		errs = append(errs, fmt.Errorf("reconnect.max_suppression (%s) must not be less than reconnect.suppression (%s)",
			c.Reconnect.MaxSuppression, c.Reconnect.Suppression))
	}
	if !c.Format.Valid() {
		errs = append(errs, fmt.Errorf("format %s is not supported", c.Format))
	}

	return errors.Join(errs...)
}

// SenderConfig converts c into a sender.Config. Clock, Logger, and
// Dial are left for the caller.
func (c *Config) SenderConfig() sender.Config {
	return sender.Config{
		Address:                 c.Address(),
		ConnectTimeout:          c.ConnectTimeout,
		WriteTimeout:            c.WriteTimeout,
		BufferMaxBytes:          c.Buffer.MaxBytes,
		BufferMaxEntries:        c.Buffer.MaxEntries,
		ReconnectSuppression:    c.Reconnect.Suppression,
		ReconnectMaxSuppression: c.Reconnect.MaxSuppression,
		Format:                  c.Format,
		StampMissingTime:        c.StampMissingTime,
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} with the environment value, or the
// default when the variable is unset or empty.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}
