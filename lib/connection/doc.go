// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package connection manages the single TCP connection between a
// sender and its collector.
//
// A Manager opens, closes, and writes to the socket. Both phases are
// bounded: Open by the connect timeout, Send by the write timeout.
// Exceeding either is a failure like any other, with no
// partial-success state. Send additionally peeks at the socket before
// writing so that a connection the collector has already closed is
// detected before a frame disappears into it.
//
// The manager never reconnects by itself. The sender decides when a
// new Open is due (see the reconnect suppression window in package
// sender).
package connection
