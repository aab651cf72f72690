// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"maps"
	"reflect"
	"time"
)

// Event is one (tag, timestamp, record) triple submitted for
// transport. Events are values: construction copies the top-level
// record map so that later mutation of the caller's map cannot change
// what is sent. Nested maps and slices are shared, and callers must
// not mutate them after emitting.
type Event struct {
	tag          string
	timestamp    int64
	hasTimestamp bool
	record       map[string]any
}

// New creates an Event with no timestamp. The collector assigns its
// own receive time to such events.
func New(tag string, record map[string]any) Event {
	return Event{tag: tag, record: copyRecord(record)}
}

// NewWithTime creates an Event stamped with t, truncated to whole
// seconds since the Unix epoch.
func NewWithTime(tag string, t time.Time, record map[string]any) Event {
	return NewWithUnix(tag, t.Unix(), record)
}

// NewWithUnix creates an Event stamped with seconds since the Unix
// epoch. A negative value produces an Event that Encode rejects.
func NewWithUnix(tag string, seconds int64, record map[string]any) Event {
	return Event{
		tag:          tag,
		timestamp:    seconds,
		hasTimestamp: true,
		record:       copyRecord(record),
	}
}

// Tag returns the event's routing tag.
func (e Event) Tag() string { return e.tag }

// Timestamp returns the event time in seconds since the Unix epoch
// and whether the event carries one.
func (e Event) Timestamp() (int64, bool) { return e.timestamp, e.hasTimestamp }

// Record returns the event's record. The returned map must not be
// modified.
func (e Event) Record() map[string]any { return e.record }

// WithTimestamp returns a copy of e stamped with seconds. The record
// map is shared between the two values, which is safe because neither
// mutates it.
func (e Event) WithTimestamp(seconds int64) Event {
	e.timestamp = seconds
	e.hasTimestamp = true
	return e
}

// Equal reports whether two events carry the same tag, timestamp and
// record contents as the wire sees them. Records are compared after
// mapping both to their decoded form: integers of any width become
// int64 (uint64 above math.MaxInt64), floats become float64, typed
// slices become []any and string-keyed maps become map[string]any.
func (e Event) Equal(other Event) bool {
	if e.tag != other.tag || e.hasTimestamp != other.hasTimestamp {
		return false
	}
	if e.hasTimestamp && e.timestamp != other.timestamp {
		return false
	}
	return reflect.DeepEqual(canonical(e.record), canonical(other.record))
}

// canonical returns a copy of value shaped the way Decoder produces
// it. Kinds the codecs do not map onto a generic form (structs, maps
// with non-string keys) are returned unchanged.
func canonical(value any) any {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return normalizeUnsigned(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return canonical(v.Elem().Interface())
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Bytes()
		}
		return canonicalSequence(v)
	case reflect.Array:
		return canonicalSequence(v)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return value
		}
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = canonical(iter.Value().Interface())
		}
		return out
	default:
		return value
	}
}

func canonicalSequence(v reflect.Value) []any {
	out := make([]any, v.Len())
	for i := range out {
		out[i] = canonical(v.Index(i).Interface())
	}
	return out
}

// copyRecord clones the top level of record. A nil record becomes an
// empty map so that it encodes as an empty map rather than nil.
func copyRecord(record map[string]any) map[string]any {
	if record == nil {
		return map[string]any{}
	}
	return maps.Clone(record)
}
