// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the current time so that time-gated logic (the
// reconnect suppression window, buffer entry ages) can be driven
// deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Since returns the time elapsed between t and c.Now(). It is the
// Clock-aware equivalent of time.Since.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}
