// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the binary serialization formats used on the
// wire between the sender and a collector.
//
// Two formats are supported:
//
//   - MessagePack (default), the format Fluentd's forward input reads.
//     Encoded with sorted map keys and compact integers.
//   - CBOR with Core Deterministic Encoding (RFC 8949 §4.2): sorted
//     map keys, smallest integer encoding, no indefinite-length items.
//
// Both encodings are deterministic: the same logical value always
// produces the same bytes. Both are self-delimiting, so a stream
// decoder reads back-to-back values without any framing protocol:
//
//	data, err := codec.MessagePack.Marshal(value)
//	decoder, err := codec.MessagePack.NewDecoder(conn)
//	err = decoder.Decode(&value)
//
// Decoded untyped maps are always map[string]any. Integers decode to
// int64 or uint64 depending on the encoded sign and width; callers
// that need a single integer type normalize after decoding (see
// event.Decoder).
package codec
