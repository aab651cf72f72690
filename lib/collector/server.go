// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/forward/lib/codec"
	"github.com/bureau-foundation/forward/lib/event"
	"github.com/bureau-foundation/forward/lib/netutil"
)

// DefaultEventBuffer is the capacity of the Events channel when
// Options.EventBuffer is zero.
const DefaultEventBuffer = 1024

// Options configures a Server.
type Options struct {
	// Format is the wire format clients send. All connections to one
	// server use the same format.
	Format codec.Format

	// EventBuffer is the capacity of the Events channel. When the
	// channel is full, connection handlers stop reading until the
	// consumer catches up, which pushes back on clients through TCP
	// flow control.
	EventBuffer int

	// Logger receives connection lifecycle records. Nil discards them.
	Logger *slog.Logger
}

// Server accepts forward-protocol connections and decodes their
// frames. Create one with Listen, run it with Serve, and consume
// Events until it is closed.
type Server struct {
	listener net.Listener
	format   codec.Format
	logger   *slog.Logger

	events chan event.Event
	done   chan struct{}

	received  atomic.Uint64
	malformed atomic.Uint64

	mu          sync.Mutex
	closed      bool
	connections map[net.Conn]struct{}

	// handlers tracks live connection goroutines so Close can wait
	// for them before closing the events channel.
	handlers  sync.WaitGroup
	closeOnce sync.Once
}

// Listen binds a TCP listener on address ("host:port"; port 0 picks a
// free port). No connections are accepted until Serve is called.
func Listen(address string, options Options) (*Server, error) {
	if !options.Format.Valid() {
		return nil, fmt.Errorf("collector: unsupported format %s", options.Format)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	eventBuffer := options.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = DefaultEventBuffer
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}

	return &Server{
		listener:    listener,
		format:      options.Format,
		logger:      logger.With("listen_address", listener.Addr().String()),
		events:      make(chan event.Event, eventBuffer),
		done:        make(chan struct{}),
		connections: make(map[net.Conn]struct{}),
	}, nil
}

// Address returns the bound "host:port", with the actual port when
// Listen was given port 0.
func (s *Server) Address() string { return s.listener.Addr().String() }

// Events returns the channel decoded events are published on, in the
// order each connection sent them. The channel is closed after Close
// has stopped every connection handler.
func (s *Server) Events() <-chan event.Event { return s.events }

// Received returns the number of events decoded since Listen.
func (s *Server) Received() uint64 { return s.received.Load() }

// Malformed returns the number of connections dropped because they
// sent a frame that could not be decoded.
func (s *Server) Malformed() uint64 { return s.malformed.Load() }

// ConnectionCount returns the number of live client connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Serve accepts connections until ctx is cancelled or Close is called,
// handling each on its own goroutine. It returns nil on a clean
// shutdown. Cancelling ctx closes the server.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	s.logger.Info("collector listening", "format", s.format.String())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go func() {
			defer s.handlers.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

// handleConnection decodes frames until the client disconnects, the
// stream is malformed, or the server closes.
func (s *Server) handleConnection(conn net.Conn) {
	logger := s.logger.With("remote_address", conn.RemoteAddr().String())
	logger.Debug("client connected")

	decoder, err := event.NewDecoder(s.format, conn)
	if err != nil {
		logger.Error("creating decoder", "error", err)
		return
	}

	for {
		decoded, err := decoder.Decode()
		if err != nil {
			switch {
			case s.isClosed() || netutil.IsExpectedCloseError(err):
				logger.Debug("client disconnected")
			case errors.Is(err, event.ErrMalformedFrame):
				s.malformed.Add(1)
				logger.Warn("dropping client after malformed frame", "error", err)
			default:
				logger.Warn("reading from client", "error", err)
			}
			return
		}

		s.received.Add(1)
		select {
		case s.events <- decoded:
		case <-s.done:
			return
		}
	}
}

// CloseClientConnections drops every live client connection but keeps
// accepting new ones. From a client's point of view this is
// indistinguishable from the collector restarting.
func (s *Server) CloseClientConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		conn.Close()
	}
}

// Close stops accepting connections, closes every client connection,
// waits for the handlers to exit, and closes the Events channel.
// Events already decoded remain readable from the channel. Close is
// idempotent.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.done)
		err = s.listener.Close()
		for conn := range s.connections {
			conn.Close()
		}
		s.mu.Unlock()

		s.handlers.Wait()
		close(s.events)
		s.logger.Info("collector closed", "received", s.received.Load())
	})
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// track registers a new connection. It returns false if the server is
// already closing, in which case the caller must drop the connection.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.connections[conn] = struct{}{}
	s.handlers.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.connections, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
