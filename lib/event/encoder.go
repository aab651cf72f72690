// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"

	"github.com/bureau-foundation/forward/lib/codec"
)

// Encoder serializes events into frames. A frame is a three-element
// array [tag, time, record] where time is an integer or nil. Frames
// are self-delimiting, so they are written back-to-back on the
// connection with no length prefix.
//
// Encoder is stateless and safe for concurrent use.
type Encoder struct {
	format codec.Format
}

// NewEncoder returns an Encoder producing frames in format.
func NewEncoder(format codec.Format) *Encoder {
	return &Encoder{format: format}
}

// Encode serializes event. Encoding is deterministic: the same event
// always produces the same bytes. Failures are returned as
// *EncodingError.
func (e *Encoder) Encode(event Event) ([]byte, error) {
	if event.tag == "" {
		return nil, &EncodingError{Tag: event.tag, Err: fmt.Errorf("%w: empty tag", ErrInvalidEvent)}
	}

	var timestamp any
	if event.hasTimestamp {
		if event.timestamp < 0 {
			return nil, &EncodingError{
				Tag: event.tag,
				Err: fmt.Errorf("%w: negative timestamp %d", ErrInvalidEvent, event.timestamp),
			}
		}
		timestamp = event.timestamp
	}

	record := event.record
	if record == nil {
		record = map[string]any{}
	}

	data, err := e.format.Marshal([]any{event.tag, timestamp, record})
	if err != nil {
		return nil, &EncodingError{Tag: event.tag, Err: err}
	}
	return data, nil
}
