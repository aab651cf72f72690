// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/forward/lib/clock"
	"github.com/bureau-foundation/forward/lib/codec"
	"github.com/bureau-foundation/forward/lib/collector"
	"github.com/bureau-foundation/forward/lib/connection"
	"github.com/bureau-foundation/forward/lib/event"
	"github.com/bureau-foundation/forward/lib/testutil"
)

const receiveTimeout = 5 * time.Second

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// startCollector serves on address (use "127.0.0.1:0" for a fresh
// port) until the test ends or the returned server is closed.
func startCollector(t *testing.T, address string) *collector.Server {
	t.Helper()
	server, err := collector.Listen(address, collector.Options{})
	if err != nil {
		t.Fatalf("collector.Listen: %v", err)
	}
	go server.Serve(context.Background())
	t.Cleanup(func() { server.Close() })
	return server
}

// unusedAddress returns a loopback address with nothing listening.
func unusedAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	address := listener.Addr().String()
	listener.Close()
	return address
}

func testConfig(address string, clk clock.Clock) Config {
	config := DefaultConfig()
	config.Address = address
	config.ConnectTimeout = time.Second
	config.WriteTimeout = time.Second
	config.ReconnectSuppression = 100 * time.Millisecond
	config.ReconnectMaxSuppression = 100 * time.Millisecond
	config.Clock = clk
	return config
}

func newSender(t *testing.T, config Config) *Sender {
	t.Helper()
	sender, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { sender.Close() })
	return sender
}

func mustEmit(t *testing.T, sender *Sender, tag string, record map[string]any) {
	t.Helper()
	if err := sender.Emit(tag, record); err != nil {
		t.Fatalf("Emit(%q): %v", tag, err)
	}
}

// requireEvents reads len(tags) events and checks their tags in order.
func requireEvents(t *testing.T, server *collector.Server, tags ...string) []event.Event {
	t.Helper()
	received := make([]event.Event, 0, len(tags))
	for i, want := range tags {
		got := testutil.RequireReceive(t, server.Events(), receiveTimeout, "waiting for event %d (%s)", i, want)
		if got.Tag() != want {
			t.Fatalf("event %d has tag %q, want %q", i, got.Tag(), want)
		}
		received = append(received, got)
	}
	return received
}

// requireNoMoreEvents fails if the collector decodes anything beyond
// the count it has already received.
func requireNoMoreEvents(t *testing.T, server *collector.Server) {
	t.Helper()
	select {
	case extra, ok := <-server.Events():
		if ok {
			t.Fatalf("unexpected extra event %q", extra.Tag())
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// waitForPeerClose gives the FIN from a closed collector connection
// time to reach the client socket, so the next send detects it rather
// than writing into a dead connection.
func waitForPeerClose(t *testing.T, server *collector.Server) {
	t.Helper()
	testutil.RequireEventually(t, receiveTimeout, func() bool {
		return server.ConnectionCount() == 0
	}, "collector connections still open")
	time.Sleep(50 * time.Millisecond)
}

func TestEmitDeliversInOrder(t *testing.T) {
	for _, format := range []codec.Format{codec.MessagePack, codec.CBOR} {
		t.Run(format.String(), func(t *testing.T) {
			server, err := collector.Listen("127.0.0.1:0", collector.Options{Format: format})
			if err != nil {
				t.Fatalf("collector.Listen: %v", err)
			}
			go server.Serve(context.Background())
			t.Cleanup(func() { server.Close() })

			config := testConfig(server.Address(), nil)
			config.Format = format
			sender := newSender(t, config)

			const count = 10000
			go func() {
				for i := 0; i < count; i++ {
					sender.EmitWithTime("app.seq", epoch, map[string]any{"seq": int64(i), "name": "event"})
				}
			}()

			for i := 0; i < count; i++ {
				got := testutil.RequireReceive(t, server.Events(), receiveTimeout, "waiting for event %d", i)
				want := event.NewWithTime("app.seq", epoch, map[string]any{"seq": int64(i), "name": "event"})
				if !got.Equal(want) {
					t.Fatalf("event %d = %+v, want %+v", i, got, want)
				}
			}

			stats := sender.Stats()
			if stats.Delivered != count || stats.Buffered != 0 || stats.SendFailures != 0 {
				t.Errorf("Stats = %+v, want %d delivered with nothing buffered", stats, count)
			}
			if stats.State != connection.Connected {
				t.Errorf("State = %s, want connected", stats.State)
			}
		})
	}
}

func TestEmitBeforeCollectorStarts(t *testing.T) {
	address := unusedAddress(t)
	fakeClock := clock.Fake(epoch)
	sender := newSender(t, testConfig(address, fakeClock))

	if stats := sender.Stats(); stats.State != connection.Disconnected || stats.ConnectFailures != 1 {
		t.Fatalf("after New: Stats = %+v, want disconnected with one connect failure", stats)
	}

	mustEmit(t, sender, "v0", nil)
	if stats := sender.Stats(); stats.Buffered != 1 || stats.ConnectFailures != 1 {
		t.Fatalf("emit inside suppression window: Stats = %+v, want 1 buffered and no new attempt", stats)
	}

	server := startCollector(t, address)
	fakeClock.Advance(time.Second)
	mustEmit(t, sender, "v1", nil)

	requireEvents(t, server, "v0", "v1")
	stats := sender.Stats()
	if stats.Replayed != 1 || stats.Delivered != 1 || stats.Buffered != 0 {
		t.Errorf("Stats = %+v, want 1 replayed and 1 delivered", stats)
	}
}

// The sender exists before the collector, so the first connect fails
// and arms a long suppression window. Close must still connect and
// flush everything emitted while the window was open.
func TestCloseFlushesInsideSuppressionWindow(t *testing.T) {
	const count = 10000
	address := unusedAddress(t)
	config := DefaultConfig()
	config.Address = address
	config.ReconnectSuppression = time.Minute
	config.ReconnectMaxSuppression = time.Minute
	sender, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	server, err := collector.Listen(address, collector.Options{EventBuffer: count})
	if err != nil {
		t.Fatalf("collector.Listen: %v", err)
	}
	go server.Serve(context.Background())
	t.Cleanup(func() { server.Close() })

	for i := range count {
		mustEmit(t, sender, "test.flush", map[string]any{"seq": int64(i)})
	}
	if stats := sender.Stats(); stats.Buffered != count || stats.ConnectFailures != 1 {
		t.Fatalf("before Close: Stats = %+v, want %d buffered and one connect failure", stats, count)
	}

	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for i := range count {
		got := testutil.RequireReceive(t, server.Events(), receiveTimeout, "waiting for event %d", i)
		if seq := got.Record()["seq"]; seq != int64(i) {
			t.Fatalf("event %d has seq %v", i, seq)
		}
	}
	stats := sender.Stats()
	if stats.Replayed != count || stats.Buffered != 0 || stats.ConnectFailures != 1 {
		t.Errorf("after Close: Stats = %+v, want %d replayed and nothing buffered", stats, count)
	}
}

func TestFailureAndRecovery(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	first := startCollector(t, "127.0.0.1:0")
	address := first.Address()
	sender := newSender(t, testConfig(address, fakeClock))

	mustEmit(t, sender, "A", map[string]any{"n": int64(1)})
	requireEvents(t, first, "A")

	// Kill the collector.
	first.Close()
	waitForPeerClose(t, first)

	mustEmit(t, sender, "B", map[string]any{"n": int64(2)})
	stats := sender.Stats()
	if stats.Buffered != 1 || stats.SendFailures != 1 || stats.State != connection.Disconnected {
		t.Fatalf("after emitting B: Stats = %+v, want B buffered after one send failure", stats)
	}

	fakeClock.Advance(time.Second)
	second := startCollector(t, address)
	mustEmit(t, sender, "C", map[string]any{"n": int64(3)})

	received := requireEvents(t, second, "B", "C")
	if n := received[0].Record()["n"]; n != int64(2) {
		t.Errorf("B record n = %v, want 2", n)
	}
	requireNoMoreEvents(t, second)
}

func TestReconnectAfterCollectorDropsClients(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	server := startCollector(t, "127.0.0.1:0")
	sender := newSender(t, testConfig(server.Address(), fakeClock))

	mustEmit(t, sender, "v0", nil)
	requireEvents(t, server, "v0")

	server.CloseClientConnections()
	waitForPeerClose(t, server)
	mustEmit(t, sender, "v1", nil)

	// Still inside the suppression window: buffered behind v1.
	mustEmit(t, sender, "v2", nil)
	if stats := sender.Stats(); stats.Buffered != 2 {
		t.Fatalf("Buffered = %d, want 2", stats.Buffered)
	}

	fakeClock.Advance(500 * time.Millisecond)
	mustEmit(t, sender, "v3", nil)
	requireEvents(t, server, "v1", "v2", "v3")
	requireNoMoreEvents(t, server)
}

func TestBoundedBufferKeepsNewest(t *testing.T) {
	const capacity = 10
	address := unusedAddress(t)
	fakeClock := clock.Fake(epoch)

	config := testConfig(address, fakeClock)
	config.BufferMaxBytes = 0
	config.BufferMaxEntries = capacity
	sender, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < capacity+5; i++ {
		mustEmit(t, sender, fmt.Sprintf("event.%d", i), nil)
	}
	stats := sender.Stats()
	if stats.Buffered != capacity || stats.Evicted != 5 {
		t.Fatalf("Stats = %+v, want %d buffered and 5 evicted", stats, capacity)
	}

	server := startCollector(t, address)
	fakeClock.Advance(time.Second)
	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var want []string
	for i := 5; i < capacity+5; i++ {
		want = append(want, fmt.Sprintf("event.%d", i))
	}
	requireEvents(t, server, want...)
	requireNoMoreEvents(t, server)
}

func TestConcurrentEmitters(t *testing.T) {
	const (
		workers   = 8
		perWorker = 250
	)
	server := startCollector(t, "127.0.0.1:0")
	sender := newSender(t, testConfig(server.Address(), nil))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				sender.Emit("worker", map[string]any{"worker": int64(w), "seq": int64(i)})
			}
		}()
	}

	next := make(map[int64]int64)
	for n := 0; n < workers*perWorker; n++ {
		got := testutil.RequireReceive(t, server.Events(), receiveTimeout, "waiting for event %d", n)
		worker, _ := got.Record()["worker"].(int64)
		seq, _ := got.Record()["seq"].(int64)
		if seq != next[worker] {
			t.Fatalf("worker %d: got seq %d, want %d", worker, seq, next[worker])
		}
		next[worker]++
	}
	wg.Wait()
	requireNoMoreEvents(t, server)

	if stats := sender.Stats(); stats.Delivered != workers*perWorker {
		t.Errorf("Delivered = %d, want %d", stats.Delivered, workers*perWorker)
	}
}

func TestConnectTimeoutBoundsEmit(t *testing.T) {
	const connectTimeout = 200 * time.Millisecond
	fakeClock := clock.Fake(epoch)

	config := testConfig("collector.invalid:24224", fakeClock)
	config.ConnectTimeout = connectTimeout
	config.Dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	start := time.Now()
	sender := newSender(t, config)
	if elapsed := time.Since(start); elapsed > connectTimeout+time.Second {
		t.Fatalf("New took %s with a %s connect timeout", elapsed, connectTimeout)
	}

	fakeClock.Advance(time.Second)
	start = time.Now()
	mustEmit(t, sender, "slow", nil)
	if elapsed := time.Since(start); elapsed > connectTimeout+time.Second {
		t.Fatalf("Emit took %s with a %s connect timeout", elapsed, connectTimeout)
	}

	stats := sender.Stats()
	if stats.ConnectFailures != 2 || stats.Buffered != 1 {
		t.Errorf("Stats = %+v, want 2 connect failures and 1 buffered", stats)
	}
}

func TestConnectTimeoutUnroutableAddress(t *testing.T) {
	const connectTimeout = 200 * time.Millisecond
	// 192.0.2.0/24 is TEST-NET-1: packets are dropped, so the connect
	// hangs until the timeout instead of being refused.
	config := testConfig("192.0.2.1:24224", nil)
	config.ConnectTimeout = connectTimeout

	start := time.Now()
	sender := newSender(t, config)
	elapsed := time.Since(start)
	if sender.Stats().State == connection.Connected {
		t.Skip("192.0.2.1 is reachable from this network")
	}
	if elapsed > 2*connectTimeout {
		t.Fatalf("New took %s with a %s connect timeout", elapsed, connectTimeout)
	}
}

func TestSuppressionWindowBacksOff(t *testing.T) {
	server := startCollector(t, "127.0.0.1:0")
	fakeClock := clock.Fake(epoch)

	var refusing atomic.Bool
	refusing.Store(true)
	var attempts atomic.Int32
	config := testConfig(server.Address(), fakeClock)
	config.ReconnectSuppression = 100 * time.Millisecond
	config.ReconnectMaxSuppression = 250 * time.Millisecond
	config.Dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		attempts.Add(1)
		if refusing.Load() {
			return nil, syscall.ECONNREFUSED
		}
		var dialer net.Dialer
		return dialer.DialContext(ctx, network, address)
	}
	sender := newSender(t, config)

	// The first window is 100ms. Each failed reconnect doubles it,
	// capped at 250ms.
	steps := []struct {
		advance  time.Duration
		attempts int32
	}{
		{advance: 0, attempts: 1},
		{advance: 99 * time.Millisecond, attempts: 1},
		{advance: time.Millisecond, attempts: 2},
		{advance: 199 * time.Millisecond, attempts: 2},
		{advance: time.Millisecond, attempts: 3},
		{advance: 249 * time.Millisecond, attempts: 3},
		{advance: time.Millisecond, attempts: 4},
	}
	for i, step := range steps {
		fakeClock.Advance(step.advance)
		mustEmit(t, sender, fmt.Sprintf("step.%d", i), nil)
		if got := attempts.Load(); got != step.attempts {
			t.Fatalf("step %d: %d dial attempts, want %d", i, got, step.attempts)
		}
	}

	// A successful connection resets the window to its base.
	refusing.Store(false)
	fakeClock.Advance(250 * time.Millisecond)
	mustEmit(t, sender, "connected", nil)
	tags := make([]string, 0, len(steps)+1)
	for i := range steps {
		tags = append(tags, fmt.Sprintf("step.%d", i))
	}
	requireEvents(t, server, append(tags, "connected")...)

	server.CloseClientConnections()
	waitForPeerClose(t, server)
	mustEmit(t, sender, "dropped", nil)
	attemptsBefore := attempts.Load()
	fakeClock.Advance(100 * time.Millisecond)
	mustEmit(t, sender, "after", nil)
	if got := attempts.Load(); got != attemptsBefore+1 {
		t.Fatalf("after reset: %d dial attempts, want %d", got, attemptsBefore+1)
	}
	requireEvents(t, server, "dropped", "after")
}

func TestEmitReturnsEncodingError(t *testing.T) {
	server := startCollector(t, "127.0.0.1:0")
	sender := newSender(t, testConfig(server.Address(), nil))

	tests := []struct {
		name   string
		tag    string
		record map[string]any
	}{
		{name: "empty tag", tag: "", record: map[string]any{"k": "v"}},
		{name: "channel value", tag: "bad", record: map[string]any{"c": make(chan int)}},
		{name: "function value", tag: "bad", record: map[string]any{"f": func() {}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := sender.Emit(test.tag, test.record)
			var encodingError *event.EncodingError
			if !errors.As(err, &encodingError) {
				t.Fatalf("Emit error = %v (%T), want *event.EncodingError", err, err)
			}
		})
	}

	// Rejected events never reach the wire or the buffer.
	mustEmit(t, sender, "good", nil)
	requireEvents(t, server, "good")
	stats := sender.Stats()
	if stats.Rejected != uint64(len(tests)) || stats.Buffered != 0 {
		t.Errorf("Stats = %+v, want %d rejected and nothing buffered", stats, len(tests))
	}
}

func TestCloseIsIdempotentAndDropsLaterEmits(t *testing.T) {
	server := startCollector(t, "127.0.0.1:0")
	sender, err := New(testConfig(server.Address(), nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mustEmit(t, sender, "before", nil)
	requireEvents(t, server, "before")

	for i := 0; i < 3; i++ {
		if err := sender.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
	}
	if err := sender.Emit("after", nil); err != nil {
		t.Fatalf("Emit after Close: %v", err)
	}

	requireNoMoreEvents(t, server)
	stats := sender.Stats()
	if stats.DroppedAfterClose != 1 || stats.State != connection.Disconnected {
		t.Errorf("Stats = %+v, want 1 dropped after close and disconnected", stats)
	}
	if stats.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", stats.Delivered)
	}
}

func TestCloseWhileUnreachableDiscardsBuffer(t *testing.T) {
	sender, err := New(testConfig(unusedAddress(t), clock.Fake(epoch)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustEmit(t, sender, "lost", nil)
	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if stats := sender.Stats(); stats.Buffered != 1 {
		t.Errorf("Buffered = %d, want the unsent event still counted", stats.Buffered)
	}
}

func TestStampMissingTime(t *testing.T) {
	server := startCollector(t, "127.0.0.1:0")
	fakeClock := clock.Fake(epoch)

	stamping := testConfig(server.Address(), fakeClock)
	stamping.StampMissingTime = true
	stamped := newSender(t, stamping)
	plain := newSender(t, testConfig(server.Address(), fakeClock))

	mustEmit(t, stamped, "stamped", nil)
	got := requireEvents(t, server, "stamped")[0]
	if seconds, ok := got.Timestamp(); !ok || seconds != epoch.Unix() {
		t.Errorf("stamped Timestamp() = (%d, %v), want (%d, true)", seconds, ok, epoch.Unix())
	}

	explicit := epoch.Add(-time.Hour)
	if err := stamped.EmitWithTime("explicit", explicit, nil); err != nil {
		t.Fatalf("EmitWithTime: %v", err)
	}
	got = requireEvents(t, server, "explicit")[0]
	if seconds, _ := got.Timestamp(); seconds != explicit.Unix() {
		t.Errorf("explicit Timestamp() = %d, want %d", seconds, explicit.Unix())
	}

	mustEmit(t, plain, "plain", nil)
	got = requireEvents(t, server, "plain")[0]
	if _, ok := got.Timestamp(); ok {
		t.Error("plain sender stamped an event emitted without a time")
	}
}

func TestOversizedFrameIsCountedAsEvicted(t *testing.T) {
	config := testConfig(unusedAddress(t), clock.Fake(epoch))
	config.BufferMaxBytes = 64
	sender := newSender(t, config)

	mustEmit(t, sender, "huge", map[string]any{"payload": strings.Repeat("x", 128)})
	stats := sender.Stats()
	if stats.Buffered != 0 || stats.Evicted != 1 {
		t.Errorf("Stats = %+v, want nothing buffered and 1 evicted", stats)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{name: "no address", modify: func(c *Config) { c.Address = "" }, want: "address is required"},
		{name: "negative connect timeout", modify: func(c *Config) { c.ConnectTimeout = -1 }, want: "connect timeout"},
		{name: "negative write timeout", modify: func(c *Config) { c.WriteTimeout = -1 }, want: "write timeout"},
		{name: "zero connect timeout", modify: func(c *Config) { c.ConnectTimeout = 0 }, want: "connect timeout must be positive"},
		{name: "zero write timeout", modify: func(c *Config) { c.WriteTimeout = 0 }, want: "write timeout must be positive"},
		{name: "unbounded buffer", modify: func(c *Config) { c.BufferMaxBytes = 0; c.BufferMaxEntries = 0 }, want: "must be positive"},
		{name: "negative buffer", modify: func(c *Config) { c.BufferMaxEntries = -1 }, want: "must not be negative"},
		{name: "negative suppression", modify: func(c *Config) { c.ReconnectSuppression = -time.Second }, want: "reconnect suppression"},
		{name: "unknown format", modify: func(c *Config) { c.Format = codec.Format(9) }, want: "unsupported format"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := DefaultConfig()
			test.modify(&config)
			_, err := New(config)
			if err == nil {
				t.Fatal("New accepted an invalid config")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("New error = %q, want it to mention %q", err, test.want)
			}
		})
	}
}

func TestCollectorExportsStats(t *testing.T) {
	server := startCollector(t, "127.0.0.1:0")
	sender := newSender(t, testConfig(server.Address(), nil))

	for i := 0; i < 3; i++ {
		mustEmit(t, sender, "metric", nil)
	}
	sender.Emit("", nil)
	requireEvents(t, server, "metric", "metric", "metric")

	registry := prometheus.NewPedanticRegistry()
	if err := registry.Register(NewCollector(sender)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	label := fmt.Sprintf(`collector=%q`, server.Address())
	expected := fmt.Sprintf(`
# HELP forward_sender_connected Whether the sender currently holds a connection to the collector.
# TYPE forward_sender_connected gauge
forward_sender_connected{%[1]s} 1
# HELP forward_sender_delivered_total Events written to the collector on the first attempt.
# TYPE forward_sender_delivered_total counter
forward_sender_delivered_total{%[1]s} 3
# HELP forward_sender_rejected_total Emitted events that could not be encoded.
# TYPE forward_sender_rejected_total counter
forward_sender_rejected_total{%[1]s} 1
# HELP forward_sender_buffered_events Events waiting in the retry buffer.
# TYPE forward_sender_buffered_events gauge
forward_sender_buffered_events{%[1]s} 0
`, label)

	err := promtestutil.GatherAndCompare(registry, strings.NewReader(expected),
		"forward_sender_connected",
		"forward_sender_delivered_total",
		"forward_sender_rejected_total",
		"forward_sender_buffered_events",
	)
	if err != nil {
		t.Fatalf("GatherAndCompare: %v", err)
	}

	if count := promtestutil.CollectAndCount(NewCollector(sender)); count != 11 {
		t.Errorf("CollectAndCount = %d, want 11", count)
	}
}
