// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sender

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/forward/lib/clock"
	"github.com/bureau-foundation/forward/lib/codec"
	"github.com/bureau-foundation/forward/lib/connection"
)

// DefaultAddress is where Fluentd's forward input listens by default.
const DefaultAddress = "127.0.0.1:24224"

// Config configures a Sender. Start from DefaultConfig and override
// fields; the zero value is not valid.
type Config struct {
	// Address is the collector's "host:port".
	Address string

	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// BufferMaxBytes and BufferMaxEntries bound the retry buffer. Zero
	// disables a bound; at least one must be positive.
	BufferMaxBytes   int
	BufferMaxEntries int

	// ReconnectSuppression is the minimum time between a failure and
	// the next reconnect attempt.
	ReconnectSuppression time.Duration

	// ReconnectMaxSuppression, when greater than ReconnectSuppression,
	// lets the window double after each failed reconnect up to this
	// cap. A successful connection resets it.
	ReconnectMaxSuppression time.Duration

	// Format is the wire format of emitted frames.
	Format codec.Format

	// StampMissingTime fills in the current time for events emitted
	// without a timestamp. When false such events go out with a nil
	// time and the collector stamps them on receipt.
	StampMissingTime bool

	// Clock drives the suppression window and timestamps. Nil means
	// the wall clock.
	Clock clock.Clock

	// Logger receives connection and buffering records. Nil discards
	// them.
	Logger *slog.Logger

	// Dial overrides the TCP dialer.
	Dial connection.DialFunc
}

// DefaultConfig returns a Config for a collector on DefaultAddress
// with an 8 MiB retry buffer.
func DefaultConfig() Config {
	return Config{
		Address:                 DefaultAddress,
		ConnectTimeout:          3 * time.Second,
		WriteTimeout:            3 * time.Second,
		BufferMaxBytes:          8 << 20,
		ReconnectSuppression:    200 * time.Millisecond,
		ReconnectMaxSuppression: 30 * time.Second,
		Format:                  codec.MessagePack,
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error
	if c.Address == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect timeout must be positive, got %s", c.ConnectTimeout))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("write timeout must be positive, got %s", c.WriteTimeout))
	}
	if c.BufferMaxBytes < 0 || c.BufferMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("buffer limits must not be negative, got %d bytes and %d entries",
			c.BufferMaxBytes, c.BufferMaxEntries))
	} else if c.BufferMaxBytes == 0 && c.BufferMaxEntries == 0 {
		errs = append(errs, errors.New("at least one of buffer max bytes and max entries must be positive"))
	}
	if c.ReconnectSuppression < 0 {
		errs = append(errs, fmt.Errorf("reconnect suppression must not be negative, got %s", c.ReconnectSuppression))
	}
	if c.ReconnectMaxSuppression < 0 {
		errs = append(errs, fmt.Errorf("reconnect max suppression must not be negative, got %s", c.ReconnectMaxSuppression))
	}
	if !c.Format.Valid() {
		errs = append(errs, fmt.Errorf("unsupported format %s", c.Format))
	}
	return errors.Join(errs...)
}
