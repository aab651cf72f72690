// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package connection

import "fmt"

// State is the lifecycle state of the managed connection.
//
// Transitions:
//
//	Disconnected → Reconnecting → Connected     (Open succeeds)
//	Disconnected → Reconnecting → Disconnected  (Open fails)
//	Connected → Disconnected                    (Send fails, Close)
type State int32

const (
	Disconnected State = iota
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}
