// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sender is the client entry point: it encodes events and
// delivers them to a collector over a persistent TCP connection,
// absorbing every network failure into a bounded retry buffer.
//
// Emit never fails because of the network. When a connect or write
// fails, the frame is buffered, the connection is dropped, and the
// next Emit after the reconnect suppression window reconnects,
// replays the backlog in order, and then sends its own event. All of
// this happens synchronously on the emitting goroutine under one
// mutex; there is no background goroutine. An Emit that reconnects
// therefore pays up to ConnectTimeout plus one WriteTimeout per
// replayed frame, and concurrent emitters wait for it.
//
// When the buffer is full the oldest frames are evicted. Evictions are
// visible only through Stats and the Prometheus collector returned by
// NewCollector.
package sender
