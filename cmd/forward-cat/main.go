// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/forward/lib/cli"
	"github.com/bureau-foundation/forward/lib/sender"
	"github.com/bureau-foundation/forward/lib/version"
)

// maxLineBytes bounds one input line. Longer lines are skipped.
const maxLineBytes = 1 << 20

func main() {
	if err := run(os.Args[1:], os.Stdin); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader) error {
	// Handle --version before flag parsing to match other binaries.
	if len(args) > 0 && args[0] == "--version" {
		version.Print("forward-cat")
		return nil
	}

	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	level, err := cli.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger := cli.NewCommandLogger(level).With("command", "forward-cat")

	senderConfig, err := opts.senderConfig()
	if err != nil {
		return err
	}
	senderConfig.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventSender, err := sender.New(senderConfig)
	if err != nil {
		return err
	}
	defer func() {
		eventSender.Close()
		stats := eventSender.Stats()
		logger.Info("forward-cat finished",
			"delivered", stats.Delivered,
			"replayed", stats.Replayed,
			"undelivered", stats.Buffered,
			"evicted", stats.Evicted,
			"rejected", stats.Rejected,
		)
	}()

	if opts.metricsAddress != "" {
		shutdown, err := serveMetrics(opts.metricsAddress, eventSender, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	logger.Info("forwarding stdin",
		"collector", senderConfig.Address,
		"tag", opts.tag,
		"format", senderConfig.Format.String(),
	)

	input := &lineConverter{tag: opts.tag, timeKey: opts.timeKey}
	lines := readLines(ctx, stdin, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, flushing")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			e, err := input.convert(line.text)
			if err != nil {
				logger.Warn("skipping line", "line", line.number, "error", err)
				continue
			}
			if err := eventSender.EmitEvent(e); err != nil {
				logger.Warn("skipping line", "line", line.number, "error", err)
			}
		}
	}
}

type inputLine struct {
	number int
	text   []byte
}

// readLines scans r on its own goroutine so a blocked read does not
// delay shutdown on a signal. The channel closes at EOF.
func readLines(ctx context.Context, r io.Reader, logger *slog.Logger) <-chan inputLine {
	lines := make(chan inputLine)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		number := 0
		for scanner.Scan() {
			number++
			text := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- inputLine{number: number, text: text}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Error("reading stdin", "line", number+1, "error", err)
		}
	}()
	return lines
}

// serveMetrics exposes the sender's counters at /metrics on address.
func serveMetrics(address string, eventSender *sender.Sender, logger *slog.Logger) (func(), error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(sender.NewCollector(eventSender)); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", listener.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}, nil
}
