// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// marshalMessagePack encodes v with sorted map keys and the most
// compact integer representation. Sorting is what makes the encoding
// deterministic: Go map iteration order is randomized.
func marshalMessagePack(v any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := msgpack.NewEncoder(&buffer)
	encoder.SetSortMapKeys(true)
	encoder.UseCompactInts(true)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// newMessagePackDecoder returns a stream decoder that produces int64,
// uint64 and float64 for numbers in untyped targets, and
// map[string]any for string-keyed maps.
func newMessagePackDecoder(r io.Reader) Decoder {
	decoder := msgpack.NewDecoder(r)
	decoder.UseLooseInterfaceDecoding(true)
	return decoder
}
