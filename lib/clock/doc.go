// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Production code holds a Clock field instead of calling time.Now
// directly. In production, Real() provides the standard library
// behavior. In tests, Fake() provides a clock that moves only when
// Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s, _ := sender.New(sender.Config{Address: addr, Clock: c})
//	c.Advance(time.Second) // step past the reconnect window
//
// Network deadlines (connect and write timeouts) are deliberately
// not routed through Clock: the kernel enforces them against the
// wall clock, and faking them would only hide real latency.
package clock
