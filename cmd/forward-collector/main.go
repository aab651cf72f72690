// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// forward-collector is a development collector: it accepts
// forward-protocol connections, decodes every frame, and prints each
// event to stdout as one JSON object per line:
//
//	{"tag":"app.log","time":1700000000,"record":{"message":"hi"}}
//
// "time" is null for events sent without a timestamp. Nothing is
// acknowledged, stored, or forwarded. Use it to watch what a sender
// emits, or as a stand-in for Fluentd in tests.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/forward/lib/cli"
	"github.com/bureau-foundation/forward/lib/codec"
	"github.com/bureau-foundation/forward/lib/collector"
	"github.com/bureau-foundation/forward/lib/event"
	"github.com/bureau-foundation/forward/lib/sender"
	"github.com/bureau-foundation/forward/lib/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) > 0 && args[0] == "--version" {
		version.Print("forward-collector")
		return nil
	}

	var listenAddress, formatName, logLevel string
	flagSet := pflag.NewFlagSet("forward-collector", pflag.ContinueOnError)
	flagSet.StringVarP(&listenAddress, "listen", "l", sender.DefaultAddress, "TCP address to listen on")
	flagSet.StringVar(&formatName, "format", codec.MessagePack.String(), "wire format: msgpack or cbor")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}

	format, err := codec.ParseFormat(formatName)
	if err != nil {
		return err
	}
	level, err := cli.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger := cli.NewCommandLogger(level).With("command", "forward-collector")

	server, err := collector.Listen(listenAddress, collector.Options{Format: format, Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, server, stdout, logger)
}

// serve runs server until ctx is cancelled, printing events as they
// arrive. It returns after every decoded event has been printed.
func serve(ctx context.Context, server *collector.Server, stdout io.Writer, logger *slog.Logger) error {
	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(ctx) }()

	output := bufio.NewWriter(stdout)
	for e := range server.Events() {
		if err := writeEvent(output, e); err != nil {
			logger.Warn("cannot print event", "tag", e.Tag(), "error", err)
			continue
		}
		// Flush per event when nothing else is queued so a tail of
		// the output stays live.
		if len(server.Events()) == 0 {
			if err := output.Flush(); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
		}
	}
	if err := output.Flush(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return <-serveDone
}

// printedEvent is the JSON shape of one output line.
type printedEvent struct {
	Tag    string         `json:"tag"`
	Time   *int64         `json:"time"`
	Record map[string]any `json:"record"`
}

func writeEvent(w io.Writer, e event.Event) error {
	line := printedEvent{Tag: e.Tag(), Record: e.Record()}
	if seconds, ok := e.Timestamp(); ok {
		line.Time = &seconds
	}
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
