// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bureau-foundation/forward/lib/clock"
	"github.com/bureau-foundation/forward/lib/connection"
	"github.com/bureau-foundation/forward/lib/event"
	"github.com/bureau-foundation/forward/lib/retry"
)

// Sender delivers events to one collector. It is safe for concurrent
// use; emits are serialized so frames from one goroutine reach the
// wire in the order that goroutine emitted them.
type Sender struct {
	address          string
	encoder          *event.Encoder
	clock            clock.Clock
	logger           *slog.Logger
	stampMissingTime bool

	// mu serializes the send path: the connection manager, the
	// suppression state, and the closed flag.
	mu      sync.Mutex
	manager *connection.Manager
	closed  bool

	// outage is set by the first failure after a successful connection
	// and cleared by the next successful connection. window is the
	// current suppression window and lastFailure when it started;
	// suppression yields successive windows, doubling up to the max.
	outage      bool
	window      time.Duration
	lastFailure time.Time
	suppression *backoff.ExponentialBackOff

	// buffer has its own lock so Stats never waits behind an emit
	// that is blocked in a connect or write.
	buffer *retry.Buffer

	state             atomic.Int32
	delivered         atomic.Uint64
	replayed          atomic.Uint64
	oversized         atomic.Uint64
	rejected          atomic.Uint64
	droppedAfterClose atomic.Uint64
	connectFailures   atomic.Uint64
	sendFailures      atomic.Uint64
}

// Stats is a point-in-time snapshot of a Sender's counters.
type Stats struct {
	// State is the connection state after the most recent operation.
	State connection.State

	// Delivered counts frames written on the first attempt; Replayed
	// counts buffered frames written after a reconnect.
	Delivered uint64
	Replayed  uint64

	// Buffered and BufferedBytes describe the retry buffer now.
	// OldestBuffered is when its front entry was enqueued, zero when
	// empty.
	Buffered       int
	BufferedBytes  int
	OldestBuffered time.Time

	// Evicted counts frames lost to the buffer bound: drop-oldest
	// evictions plus frames too large to ever fit.
	Evicted uint64

	// Rejected counts emits that failed to encode.
	Rejected uint64

	// DroppedAfterClose counts emits discarded because the sender was
	// already closed.
	DroppedAfterClose uint64

	ConnectFailures uint64
	SendFailures    uint64
}

// New creates a Sender and makes one connection attempt. A failed
// attempt is not an error: the sender starts Disconnected, buffers
// what is emitted, and retries once the suppression window has
// passed. New fails only for an invalid config.
func New(config Config) (*Sender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sender config: %w", err)
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	suppression := &backoff.ExponentialBackOff{
		InitialInterval:     config.ReconnectSuppression,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max(config.ReconnectMaxSuppression, config.ReconnectSuppression),
		Stop:                backoff.Stop,
		Clock:               clk,
	}
	suppression.Reset()

	s := &Sender{
		address:          config.Address,
		encoder:          event.NewEncoder(config.Format),
		clock:            clk,
		logger:           logger.With("collector", config.Address),
		stampMissingTime: config.StampMissingTime,
		suppression:      suppression,
		manager: connection.NewManager(connection.Config{
			Address:        config.Address,
			ConnectTimeout: config.ConnectTimeout,
			WriteTimeout:   config.WriteTimeout,
			Dial:           config.Dial,
			Logger:         logger,
		}),
		buffer: retry.NewBuffer(retry.Limits{
			MaxBytes:   config.BufferMaxBytes,
			MaxEntries: config.BufferMaxEntries,
		}, clk),
	}

	s.mu.Lock()
	s.reconnect()
	s.syncState()
	s.mu.Unlock()
	return s, nil
}

// Address returns the collector address.
func (s *Sender) Address() string { return s.address }

// Emit sends record under tag without a timestamp.
func (s *Sender) Emit(tag string, record map[string]any) error {
	return s.EmitEvent(event.New(tag, record))
}

// EmitWithTime sends record under tag stamped with t, truncated to
// whole seconds.
func (s *Sender) EmitWithTime(tag string, t time.Time, record map[string]any) error {
	return s.EmitEvent(event.NewWithTime(tag, t, record))
}

// EmitEvent sends e. The only error it returns is *event.EncodingError,
// for an event the wire format cannot represent. Network failures are
// absorbed: the frame is buffered and delivered after a reconnect, or
// evicted if the buffer overflows first.
//
// After Close, EmitEvent discards the event and returns nil.
func (s *Sender) EmitEvent(e event.Event) error {
	if _, ok := e.Timestamp(); !ok && s.stampMissingTime {
		e = e.WithTimestamp(s.clock.Now().Unix())
	}
	frame, err := s.encoder.Encode(e)
	if err != nil {
		s.rejected.Add(1)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.droppedAfterClose.Add(1)
		return nil
	}
	s.deliver(frame)
	s.syncState()
	return nil
}

// Close makes one best-effort attempt to flush the retry buffer, then
// closes the connection. The flush connects even inside the
// suppression window. Frames still buffered afterwards are
// discarded. Close is idempotent and always returns nil.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.buffer.Len() > 0 && s.connectForClose() {
		s.replay()
	}
	if remaining := s.buffer.Len(); remaining > 0 {
		s.logger.Warn("discarding undelivered events on close", "buffered", remaining)
	}
	s.manager.Close()
	s.syncState()
	return nil
}

// Stats returns a snapshot of the sender's counters. It does not wait
// for an in-progress emit.
func (s *Sender) Stats() Stats {
	oldest, _ := s.buffer.OldestEnqueued()
	return Stats{
		State:             connection.State(s.state.Load()),
		Delivered:         s.delivered.Load(),
		Replayed:          s.replayed.Load(),
		Buffered:          s.buffer.Len(),
		BufferedBytes:     s.buffer.SizeBytes(),
		OldestBuffered:    oldest,
		Evicted:           s.buffer.Dropped() + s.oversized.Load(),
		Rejected:          s.rejected.Load(),
		DroppedAfterClose: s.droppedAfterClose.Load(),
		ConnectFailures:   s.connectFailures.Load(),
		SendFailures:      s.sendFailures.Load(),
	}
}

// deliver writes frame after any buffered backlog, or buffers it.
// Caller holds mu.
func (s *Sender) deliver(frame []byte) {
	if !s.ensureConnected() {
		s.enqueue(frame)
		return
	}
	if s.buffer.Len() > 0 && !s.replay() {
		s.enqueue(frame)
		return
	}
	if err := s.manager.Send(frame); err != nil {
		s.sendFailed(err)
		s.enqueue(frame)
		return
	}
	s.delivered.Add(1)
}

// ensureConnected reports whether the manager is Connected, first
// reconnecting if it is not and the suppression window has elapsed.
// Caller holds mu.
func (s *Sender) ensureConnected() bool {
	if s.manager.State() == connection.Connected {
		return true
	}
	if s.outage && clock.Since(s.clock, s.lastFailure) < s.window {
		return false
	}
	return s.reconnect()
}

// connectForClose is ensureConnected without the suppression window:
// the final flush always gets one connection attempt. Caller holds mu.
func (s *Sender) connectForClose() bool {
	if s.manager.State() == connection.Connected {
		return true
	}
	return s.reconnect()
}

// reconnect makes one connection attempt. Caller holds mu.
func (s *Sender) reconnect() bool {
	err := s.manager.Open(context.Background())
	if err != nil {
		s.connectFailures.Add(1)
		var connectError *connection.ConnectError
		timedOut := errors.As(err, &connectError) && connectError.Timeout()
		if s.outage {
			s.logger.Debug("reconnect failed", "error", err, "timeout", timedOut, "buffered", s.buffer.Len())
		} else {
			s.logger.Warn("collector unreachable, buffering events", "error", err, "timeout", timedOut)
		}
		s.recordFailure(true)
		return false
	}

	if s.outage {
		s.logger.Info("reconnected to collector", "buffered", s.buffer.Len())
	}
	s.outage = false
	return true
}

// replay drains the retry buffer in order. Caller holds mu and the
// manager is Connected.
func (s *Sender) replay() bool {
	replayed, err := s.buffer.DrainAndReplay(s.manager.Send)
	s.replayed.Add(uint64(replayed))
	if err != nil {
		s.sendFailed(err)
		return false
	}
	if replayed > 0 {
		s.logger.Info("replayed buffered events", "replayed", replayed)
	}
	return true
}

func (s *Sender) sendFailed(err error) {
	s.sendFailures.Add(1)
	if !s.outage {
		s.logger.Warn("send failed, buffering events", "error", err)
	}
	s.recordFailure(false)
}

// recordFailure arms the suppression window. Consecutive failed
// reconnects double the window up to ReconnectMaxSuppression; any
// other failure starts it over at ReconnectSuppression.
func (s *Sender) recordFailure(reconnectFailed bool) {
	if !reconnectFailed || !s.outage {
		s.suppression.Reset()
	}
	s.window = s.suppression.NextBackOff()
	s.outage = true
	s.lastFailure = s.clock.Now()
}

func (s *Sender) enqueue(frame []byte) {
	evicted, err := s.buffer.Append(frame)
	if err != nil {
		s.oversized.Add(1)
		s.logger.Warn("dropping frame that cannot fit in the retry buffer", "error", err, "size", len(frame))
		return
	}
	if evicted > 0 {
		s.logger.Debug("retry buffer full, evicted oldest frames", "evicted", evicted)
	}
}

func (s *Sender) syncState() {
	s.state.Store(int32(s.manager.State()))
}
