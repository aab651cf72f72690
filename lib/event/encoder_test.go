// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/bureau-foundation/forward/lib/codec"
)

var allFormats = []codec.Format{codec.MessagePack, codec.CBOR}

// sampleEvents covers the value kinds a record may hold: strings,
// signed and unsigned widths, floats, booleans, nil, nested maps and
// sequences, and an absent timestamp.
func sampleEvents() []Event {
	return []Event{
		New("tag.label1", map[string]any{"t1k1": "t1v1", "t1k2": "t1v2"}),
		NewWithUnix("tag.label2", 1767225600, map[string]any{
			"i":     int64(300),
			"neg":   int64(-70000),
			"small": int64(3),
			"ratio": 0.25,
			"ok":    true,
			"none":  nil,
		}),
		NewWithUnix("nested", 0, map[string]any{
			"request": map[string]any{
				"path":    "/v1/items",
				"headers": []any{"a", "b", int64(1)},
			},
		}),
		New("empty", nil),
	}
}

func TestRoundtrip(t *testing.T) {
	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			encoder := NewEncoder(format)
			for _, original := range sampleEvents() {
				frame, err := encoder.Encode(original)
				if err != nil {
					t.Fatalf("Encode(%s): %v", original.Tag(), err)
				}

				decoder, err := NewDecoder(format, bytes.NewReader(frame))
				if err != nil {
					t.Fatalf("NewDecoder: %v", err)
				}
				decoded, err := decoder.Decode()
				if err != nil {
					t.Fatalf("Decode(%s): %v", original.Tag(), err)
				}
				if !decoded.Equal(original) {
					t.Errorf("roundtrip mismatch:\n got %#v\nwant %#v", decoded, original)
				}
			}
		})
	}
}

func TestNativeGoValuesRoundtrip(t *testing.T) {
	originals := []Event{
		New("widths", map[string]any{"int": 5, "int32": int32(-9), "uint16": uint16(65000), "uint8": uint8(7)}),
		New("large", map[string]any{"max": uint64(math.MaxUint64), "min": int64(math.MinInt64)}),
		New("strings", map[string]any{"s": []string{"a", "b"}}),
		New("ints", map[string]any{"n": []int{1, -2, 3}, "empty": []int{}}),
		New("typed map", map[string]any{"m": map[string]string{"k1": "v1", "k2": "v2"}}),
		New("nested", map[string]any{"outer": map[string]any{"inner": map[string]int{"x": 1}}}),
		New("float32", map[string]any{"f": float32(1.5)}),
		New("bytes", map[string]any{"raw": []byte{0x00, 0xff}}),
	}

	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			for _, original := range originals {
				frame, err := NewEncoder(format).Encode(original)
				if err != nil {
					t.Fatalf("Encode(%s): %v", original.Tag(), err)
				}
				decoder, err := NewDecoder(format, bytes.NewReader(frame))
				if err != nil {
					t.Fatalf("NewDecoder: %v", err)
				}
				decoded, err := decoder.Decode()
				if err != nil {
					t.Fatalf("Decode(%s): %v", original.Tag(), err)
				}
				if !decoded.Equal(original) {
					t.Errorf("%s: got %#v, want %#v", original.Tag(), decoded.Record(), original.Record())
				}
				if !original.Equal(decoded) {
					t.Errorf("%s: Equal is not symmetric", original.Tag())
				}
			}
		})
	}
}

func TestFramesAreSelfDelimiting(t *testing.T) {
	events := sampleEvents()

	for _, format := range allFormats {
		t.Run(format.String(), func(t *testing.T) {
			encoder := NewEncoder(format)
			var stream bytes.Buffer
			for _, e := range events {
				frame, err := encoder.Encode(e)
				if err != nil {
					t.Fatalf("Encode: %v", err)
				}
				stream.Write(frame)
			}

			decoder, err := NewDecoder(format, &stream)
			if err != nil {
				t.Fatalf("NewDecoder: %v", err)
			}
			for i, want := range events {
				got, err := decoder.Decode()
				if err != nil {
					t.Fatalf("Decode frame %d: %v", i, err)
				}
				if !got.Equal(want) {
					t.Errorf("frame %d: got tag %q, want %q", i, got.Tag(), want.Tag())
				}
			}
			if _, err := decoder.Decode(); !errors.Is(err, io.EOF) {
				t.Errorf("Decode after last frame = %v, want io.EOF", err)
			}
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	e := New("det", map[string]any{"z": 1, "a": 2, "m": map[string]any{"y": 1, "b": 2}})

	for _, format := range allFormats {
		encoder := NewEncoder(format)
		first, err := encoder.Encode(e)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		for i := 0; i < 10; i++ {
			again, err := encoder.Encode(e)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(first, again) {
				t.Fatalf("%s: encoding not deterministic", format)
			}
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name         string
		event        Event
		invalidEvent bool
	}{
		{name: "empty tag", event: New("", nil), invalidEvent: true},
		{name: "negative timestamp", event: NewWithUnix("t", -1, nil), invalidEvent: true},
		{name: "channel value", event: New("t", map[string]any{"c": make(chan int)})},
		{name: "function value", event: New("t", map[string]any{"f": func() {}})},
	}

	for _, format := range allFormats {
		encoder := NewEncoder(format)
		for _, test := range tests {
			t.Run(format.String()+"/"+test.name, func(t *testing.T) {
				_, err := encoder.Encode(test.event)
				if err == nil {
					t.Fatal("Encode succeeded, want error")
				}
				var encodingError *EncodingError
				if !errors.As(err, &encodingError) {
					t.Fatalf("error %T is not *EncodingError: %v", err, err)
				}
				if got := errors.Is(err, ErrInvalidEvent); got != test.invalidEvent {
					t.Errorf("errors.Is(err, ErrInvalidEvent) = %v, want %v", got, test.invalidEvent)
				}
			})
		}
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame any
	}{
		{name: "two elements", frame: []any{"tag", map[string]any{}}},
		{name: "numeric tag", frame: []any{int64(1), nil, map[string]any{}}},
		{name: "string time", frame: []any{"tag", "now", map[string]any{}}},
		{name: "record is a list", frame: []any{"tag", nil, []any{"x"}}},
	}

	for _, format := range allFormats {
		for _, test := range tests {
			t.Run(format.String()+"/"+test.name, func(t *testing.T) {
				data, err := format.Marshal(test.frame)
				if err != nil {
					t.Fatalf("Marshal: %v", err)
				}
				decoder, _ := NewDecoder(format, bytes.NewReader(data))
				_, err = decoder.Decode()
				if !errors.Is(err, ErrMalformedFrame) {
					t.Fatalf("Decode error = %v, want ErrMalformedFrame", err)
				}
			})
		}
	}
}

func BenchmarkEncode(b *testing.B) {
	encoder := NewEncoder(codec.MessagePack)
	e := New("tag:i", map[string]any{"i": int64(42), "n": "name:42"})
	b.ReportAllocs()
	for b.Loop() {
		encoder.Encode(e)
	}
}
