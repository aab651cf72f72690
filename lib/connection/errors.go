// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/forward/lib/netutil"
)

// ErrNotConnected is wrapped by SendError when Send is called without
// an open connection.
var ErrNotConnected = errors.New("not connected")

// ConnectError reports a failed Open: refused, unreachable, or the
// connect timeout elapsed. Open never retries internally.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Timeout reports whether the connect attempt ran out of time.
func (e *ConnectError) Timeout() bool { return netutil.IsTimeout(e.Err) }

// SendError reports a failed Send. The connection has already been
// closed and the manager is Disconnected when a SendError is
// returned. Written is the number of bytes the kernel accepted before
// the failure; the frame must be resent in full on a new connection
// regardless.
type SendError struct {
	Address string
	Written int
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sending to %s: %v", e.Address, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Timeout reports whether the write deadline elapsed.
func (e *SendError) Timeout() bool { return netutil.IsTimeout(e.Err) }
