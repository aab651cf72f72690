// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"fmt"
	"io"
	"math"

	"github.com/bureau-foundation/forward/lib/codec"
)

// Decoder reads consecutive frames from a stream. It is the collector
// side of Encoder and is used by the bundled collector and tests.
type Decoder struct {
	decoder codec.Decoder
}

// NewDecoder returns a Decoder reading frames in format from r.
func NewDecoder(format codec.Format, r io.Reader) (*Decoder, error) {
	decoder, err := format.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	return &Decoder{decoder: decoder}, nil
}

// Decode reads the next frame. It returns io.EOF when the stream ends
// cleanly between frames.
//
// Integers in the record are normalized to int64 (or uint64 when they
// exceed math.MaxInt64) and floats to float64, so decoded events
// compare equal to events built with int64 values regardless of the
// width the codec chose on the wire.
func (d *Decoder) Decode() (Event, error) {
	var frame []any
	if err := d.decoder.Decode(&frame); err != nil {
		return Event{}, err
	}
	return frameToEvent(frame)
}

func frameToEvent(frame []any) (Event, error) {
	if len(frame) != 3 {
		return Event{}, fmt.Errorf("%w: frame has %d elements, want 3", ErrMalformedFrame, len(frame))
	}

	tag, ok := frame[0].(string)
	if !ok {
		return Event{}, fmt.Errorf("%w: tag is %T, want string", ErrMalformedFrame, frame[0])
	}

	var record map[string]any
	switch value := frame[2].(type) {
	case nil:
		record = map[string]any{}
	case map[string]any:
		record = normalizeMap(value)
	default:
		return Event{}, fmt.Errorf("%w: record is %T, want map", ErrMalformedFrame, frame[2])
	}

	if frame[1] == nil {
		return Event{tag: tag, record: record}, nil
	}
	seconds, ok := normalizeNumber(frame[1]).(int64)
	if !ok {
		return Event{}, fmt.Errorf("%w: time is %T, want integer", ErrMalformedFrame, frame[1])
	}
	return Event{tag: tag, timestamp: seconds, hasTimestamp: true, record: record}, nil
}

func normalizeMap(m map[string]any) map[string]any {
	for key, value := range m {
		m[key] = normalizeValue(value)
	}
	return m
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return normalizeMap(v)
	case []any:
		for i := range v {
			v[i] = normalizeValue(v[i])
		}
		return v
	default:
		return normalizeNumber(value)
	}
}

func normalizeNumber(value any) any {
	switch v := value.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return normalizeUnsigned(uint64(v))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return normalizeUnsigned(v)
	case float32:
		return float64(v)
	default:
		return value
	}
}

func normalizeUnsigned(v uint64) any {
	if v <= math.MaxInt64 {
		return int64(v)
	}
	return v
}
