// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// forward-cat reads JSON objects from stdin, one per line, and emits
// each as an event to a forward-protocol collector such as Fluentd.
//
// Every line becomes one event under --tag. With --time-key, the named
// field (integer or float seconds since the epoch) becomes the event
// time and is removed from the record. Lines that are not JSON objects
// are logged and skipped.
//
// Connection failures never stop the command: events are buffered in
// memory and replayed when the collector comes back, within the
// configured buffer bounds. On EOF or SIGINT the buffer is flushed
// once and the command exits. With --metrics-address, sender counters
// are served in Prometheus text format at /metrics while it runs.
//
// Settings come from the file named by --config or FORWARD_CONFIG,
// with flags overriding individual values.
package main
