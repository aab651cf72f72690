// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sender

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/forward/lib/clock"
	"github.com/bureau-foundation/forward/lib/connection"
)

// metricsNamespace prefixes every exported metric name.
const metricsNamespace = "forward_sender"

// statsCollector exports a Sender's Stats as Prometheus metrics. It
// reads a fresh snapshot on every scrape rather than mirroring the
// counters into client_golang types.
type statsCollector struct {
	sender *Sender

	connected      *prometheus.Desc
	delivered      *prometheus.Desc
	replayed       *prometheus.Desc
	buffered       *prometheus.Desc
	bufferedBytes  *prometheus.Desc
	oldestAge      *prometheus.Desc
	evicted        *prometheus.Desc
	rejected       *prometheus.Desc
	droppedClosed  *prometheus.Desc
	connectFailure *prometheus.Desc
	sendFailure    *prometheus.Desc
}

// NewCollector returns a prometheus.Collector for s. Each metric
// carries a "collector" label with the sender's address, so several
// senders can be registered on one registry.
func NewCollector(s *Sender) prometheus.Collector {
	labels := prometheus.Labels{"collector": s.Address()}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, nil, labels)
	}
	return &statsCollector{
		sender:         s,
		connected:      desc("connected", "Whether the sender currently holds a connection to the collector."),
		delivered:      desc("delivered_total", "Events written to the collector on the first attempt."),
		replayed:       desc("replayed_total", "Buffered events written to the collector after a reconnect."),
		buffered:       desc("buffered_events", "Events waiting in the retry buffer."),
		bufferedBytes:  desc("buffered_bytes", "Encoded size of the events waiting in the retry buffer."),
		oldestAge:      desc("oldest_buffered_age_seconds", "Age of the oldest event in the retry buffer, zero when empty."),
		evicted:        desc("evicted_total", "Buffered events discarded because the retry buffer was full."),
		rejected:       desc("rejected_total", "Emitted events that could not be encoded."),
		droppedClosed:  desc("dropped_after_close_total", "Events emitted after the sender was closed."),
		connectFailure: desc("connect_failures_total", "Failed connection attempts."),
		sendFailure:    desc("send_failures_total", "Failed frame writes on an open connection."),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connected
	ch <- c.delivered
	ch <- c.replayed
	ch <- c.buffered
	ch <- c.bufferedBytes
	ch <- c.oldestAge
	ch <- c.evicted
	ch <- c.rejected
	ch <- c.droppedClosed
	ch <- c.connectFailure
	ch <- c.sendFailure
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.sender.Stats()

	connected := 0.0
	if stats.State == connection.Connected {
		connected = 1
	}
	oldestAge := 0.0
	if !stats.OldestBuffered.IsZero() {
		oldestAge = clock.Since(c.sender.clock, stats.OldestBuffered).Seconds()
	}

	gauge := func(desc *prometheus.Desc, value float64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value)
	}
	counter := func(desc *prometheus.Desc, value uint64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value))
	}

	gauge(c.connected, connected)
	gauge(c.buffered, float64(stats.Buffered))
	gauge(c.bufferedBytes, float64(stats.BufferedBytes))
	gauge(c.oldestAge, oldestAge)
	counter(c.delivered, stats.Delivered)
	counter(c.replayed, stats.Replayed)
	counter(c.evicted, stats.Evicted)
	counter(c.rejected, stats.Rejected)
	counter(c.droppedClosed, stats.DroppedAfterClose)
	counter(c.connectFailure, stats.ConnectFailures)
	counter(c.sendFailure, stats.SendFailures)
}
