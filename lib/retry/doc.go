// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package retry holds encoded frames that failed to send until they
// can be replayed on a new connection.
//
// The Buffer is bounded by entry count, byte size, or both, and
// evicts oldest-first when full. Bounded memory is preferred over
// unbounded buffering: under a sustained outage the newest events
// survive and the oldest are lost, and every eviction is counted.
package retry
