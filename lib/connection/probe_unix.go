// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package connection

import (
	"errors"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// probe checks, without blocking, whether the peer has closed the
// connection. It peeks at the receive queue: EOF or a socket error
// means the connection is dead; EAGAIN means nothing is pending and
// the connection is presumed alive. Connections that do not expose a
// file descriptor are presumed alive.
func probe(conn net.Conn) error {
	syscallConn, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := syscallConn.SyscallConn()
	if err != nil {
		return err
	}

	var probeErr error
	var buffer [1]byte
	controlErr := raw.Read(func(fd uintptr) bool {
		n, _, err := unix.Recvfrom(int(fd), buffer[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
		case err != nil:
			probeErr = err
		case n == 0:
			probeErr = io.EOF
		}
		// Never wait for readability; one peek is the whole probe.
		return true
	})
	if controlErr != nil {
		return controlErr
	}
	return probeErr
}
