// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/forward/lib/codec"
	"github.com/bureau-foundation/forward/lib/config"
	"github.com/bureau-foundation/forward/lib/sender"
)

type options struct {
	flagSet *pflag.FlagSet

	configPath     string
	tag            string
	timeKey        string
	logLevel       string
	metricsAddress string

	// Overrides for config file values, applied only when the flag
	// was given on the command line.
	host                 string
	port                 int
	format               string
	connectTimeout       time.Duration
	writeTimeout         time.Duration
	bufferMaxBytes       int
	bufferMaxEntries     int
	reconnectSuppression time.Duration
	stampMissingTime     bool
}

func parseOptions(args []string) (*options, error) {
	defaults := config.Default()
	opts := &options{}

	flagSet := pflag.NewFlagSet("forward-cat", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+" if set)")
	flagSet.StringVarP(&opts.tag, "tag", "t", "", "tag for every emitted event (required)")
	flagSet.StringVar(&opts.timeKey, "time-key", "", "record field holding the event time in epoch seconds")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	flagSet.StringVar(&opts.metricsAddress, "metrics-address", "", "serve Prometheus metrics on this address")

	flagSet.StringVar(&opts.host, "host", defaults.Host, "collector host")
	flagSet.IntVarP(&opts.port, "port", "p", defaults.Port, "collector port")
	flagSet.StringVar(&opts.format, "format", defaults.Format.String(), "wire format: msgpack or cbor")
	flagSet.DurationVar(&opts.connectTimeout, "connect-timeout", defaults.ConnectTimeout, "timeout for each connection attempt")
	flagSet.DurationVar(&opts.writeTimeout, "write-timeout", defaults.WriteTimeout, "timeout for each frame write")
	flagSet.IntVar(&opts.bufferMaxBytes, "buffer-max-bytes", defaults.Buffer.MaxBytes, "retry buffer byte bound (0 disables)")
	flagSet.IntVar(&opts.bufferMaxEntries, "buffer-max-entries", defaults.Buffer.MaxEntries, "retry buffer entry bound (0 disables)")
	flagSet.DurationVar(&opts.reconnectSuppression, "reconnect-suppression", defaults.Reconnect.Suppression, "minimum wait after a failure before reconnecting")
	flagSet.BoolVar(&opts.stampMissingTime, "stamp-missing-time", defaults.StampMissingTime, "stamp events without a time with the local clock")
	flagSet.SortFlags = false
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: forward-cat --tag TAG [flags] < records.jsonl\n\nFlags:\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	if opts.tag == "" {
		return nil, errors.New("--tag is required")
	}

	opts.flagSet = flagSet
	return opts, nil
}

// loadConfig reads the config file from --config or FORWARD_CONFIG,
// falling back to defaults when neither is set, then applies any flags
// given explicitly.
func (o *options) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case o.configPath != "":
		cfg, err = config.LoadFile(o.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	changed := o.flagSet.Changed
	if changed("host") {
		cfg.Host = o.host
	}
	if changed("port") {
		cfg.Port = o.port
	}
	if changed("format") {
		format, err := codec.ParseFormat(o.format)
		if err != nil {
			return nil, err
		}
		cfg.Format = format
	}
	if changed("connect-timeout") {
		cfg.ConnectTimeout = o.connectTimeout
	}
	if changed("write-timeout") {
		cfg.WriteTimeout = o.writeTimeout
	}
	if changed("buffer-max-bytes") {
		cfg.Buffer.MaxBytes = o.bufferMaxBytes
	}
	if changed("buffer-max-entries") {
		cfg.Buffer.MaxEntries = o.bufferMaxEntries
	}
	if changed("reconnect-suppression") {
		cfg.Reconnect.Suppression = o.reconnectSuppression
		if cfg.Reconnect.MaxSuppression < cfg.Reconnect.Suppression {
			cfg.Reconnect.MaxSuppression = cfg.Reconnect.Suppression
		}
	}
	if changed("stamp-missing-time") {
		cfg.StampMissingTime = o.stampMissingTime
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

func (o *options) senderConfig() (sender.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return sender.Config{}, err
	}
	return cfg.SenderConfig(), nil
}
