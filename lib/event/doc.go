// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the Event value and its wire frame.
//
// An Event is a tag, an optional timestamp in whole seconds, and a
// record of string keys to scalar or nested values. On the wire each
// event is one frame, a three-element array:
//
//	[tag, time, record]
//
// where time is an integer or nil (absent). Frames are serialized with
// a self-delimiting codec (see package codec) and written back-to-back
// on the TCP stream; the collector decodes until EOF.
//
// Encoder is the sending side and Decoder the receiving side. For
// records built from strings, booleans, numbers, byte slices, and
// slices and string-keyed maps of those, the round trip holds under
// Event.Equal:
//
//	frame, _ := event.NewEncoder(codec.MessagePack).Encode(e)
//	decoder, _ := event.NewDecoder(codec.MessagePack, bytes.NewReader(frame))
//	decoded, _ := decoder.Decode() // decoded.Equal(e)
package event
