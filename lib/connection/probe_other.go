// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package connection

import "net"

// probe is a no-op where a non-blocking peek is unavailable; a dead
// peer is then detected by the write failing instead.
func probe(net.Conn) error { return nil }
