// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package connection

import (
	"syscall"
	"time"
)

func socketControl(time.Duration) func(network, address string, conn syscall.RawConn) error {
	return nil
}
