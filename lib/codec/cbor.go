// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode is configured with Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. The same record always produces identical
// frame bytes, which keeps replayed frames byte-for-byte equal to the
// originals.
var cborEncMode cbor.EncMode

// cborDecMode decodes untyped maps as map[string]any. The CBOR default
// for an any-typed target is map[interface{}]interface{}, which no
// record consumer expects.
var cborDecMode cbor.DecMode

func init() {
	var err error

	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshalCBOR(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func newCBORDecoder(r io.Reader) Decoder {
	return cborDecMode.NewDecoder(r)
}
