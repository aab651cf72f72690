// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package connection

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// socketControl returns a net.Dialer Control hook that sets
// TCP_USER_TIMEOUT to the write timeout. Without it, a write into a
// silently dead peer succeeds into the send buffer and the kernel
// retransmits for many minutes before reporting an error.
func socketControl(writeTimeout time.Duration) func(network, address string, conn syscall.RawConn) error {
	if writeTimeout <= 0 {
		return nil
	}
	milliseconds := int(writeTimeout.Milliseconds())
	if milliseconds == 0 {
		milliseconds = 1
	}
	return func(network, address string, conn syscall.RawConn) error {
		var optionErr error
		err := conn.Control(func(fd uintptr) {
			optionErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, milliseconds)
		})
		if err != nil {
			return err
		}
		return optionErr
	}
}
