// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"errors"
	"fmt"
)

// ErrInvalidEvent is wrapped by EncodingError when the event itself is
// malformed (empty tag, negative timestamp) rather than containing a
// value the codec cannot represent.
var ErrInvalidEvent = errors.New("invalid event")

// ErrMalformedFrame is wrapped by Decoder errors when a well-formed
// codec value is not a [tag, time, record] frame.
var ErrMalformedFrame = errors.New("malformed frame")

// EncodingError reports that an event could not be serialized. It is
// a programming error in the supplied record, not a transient
// condition, and is the only error the sender surfaces to callers of
// Emit.
type EncodingError struct {
	Tag string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding event with tag %q: %v", e.Tag, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
