// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"io"
)

// Format selects the binary serialization used on the wire. Both
// formats are self-describing and self-delimiting, so frames can be
// written back-to-back on a stream without length prefixes.
type Format uint8

const (
	// MessagePack is the format Fluentd's forward input decodes. It is
	// the default.
	MessagePack Format = iota

	// CBOR uses Core Deterministic Encoding (RFC 8949 §4.2).
	CBOR
)

// Decoder reads consecutive values from a stream. Both
// *msgpack.Decoder and *cbor.Decoder satisfy it.
type Decoder interface {
	Decode(v any) error
}

// String returns the configuration name of the format.
func (f Format) String() string {
	switch f {
	case MessagePack:
		return "msgpack"
	case CBOR:
		return "cbor"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// ParseFormat parses a format from its configuration name. "msgpack"
// and "messagepack" are accepted for MessagePack; the empty string
// selects the default.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "msgpack", "messagepack":
		return MessagePack, nil
	case "cbor":
		return CBOR, nil
	default:
		return 0, fmt.Errorf("unknown wire format %q (want msgpack or cbor)", name)
	}
}

// Valid reports whether f names a supported format.
func (f Format) Valid() bool {
	return f == MessagePack || f == CBOR
}

// MarshalText implements encoding.TextMarshaler so that Format can be
// used directly in YAML configuration.
func (f Format) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid wire format %d", uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Marshal encodes v in this format.
func (f Format) Marshal(v any) ([]byte, error) {
	switch f {
	case MessagePack:
		return marshalMessagePack(v)
	case CBOR:
		return marshalCBOR(v)
	default:
		return nil, fmt.Errorf("codec: unsupported format %s", f)
	}
}

// NewDecoder returns a stream decoder for this format reading from r.
func (f Format) NewDecoder(r io.Reader) (Decoder, error) {
	switch f {
	case MessagePack:
		return newMessagePackDecoder(r), nil
	case CBOR:
		return newCBORDecoder(r), nil
	default:
		return nil, fmt.Errorf("codec: unsupported format %s", f)
	}
}
