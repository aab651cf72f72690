// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/bureau-foundation/forward/lib/event"
)

// lineConverter turns one line of JSON into an event.
type lineConverter struct {
	tag     string
	timeKey string
}

var errNotObject = errors.New("line is not a JSON object")

func (c *lineConverter) convert(line []byte) (event.Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return event.Event{}, errNotObject
	}

	decoder := json.NewDecoder(bytes.NewReader(line))
	decoder.UseNumber()
	var record map[string]any
	if err := decoder.Decode(&record); err != nil {
		return event.Event{}, fmt.Errorf("parsing JSON: %w", err)
	}
	if decoder.More() {
		return event.Event{}, errors.New("trailing data after JSON object")
	}
	record = convertNumbers(record).(map[string]any)

	if c.timeKey == "" {
		return event.New(c.tag, record), nil
	}
	value, ok := record[c.timeKey]
	if !ok {
		return event.New(c.tag, record), nil
	}
	seconds, err := epochSeconds(value)
	if err != nil {
		return event.Event{}, fmt.Errorf("field %q: %w", c.timeKey, err)
	}
	delete(record, c.timeKey)
	return event.NewWithUnix(c.tag, seconds, record), nil
}

// convertNumbers replaces json.Number with int64 where the number is
// integral and fits, float64 otherwise, so the wire carries native
// numbers rather than their decimal strings.
func convertNumbers(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, element := range v {
			v[key] = convertNumbers(element)
		}
		return v
	case []any:
		for i, element := range v {
			v[i] = convertNumbers(element)
		}
		return v
	case json.Number:
		if integer, err := v.Int64(); err == nil {
			return integer
		}
		if float, err := v.Float64(); err == nil {
			return float
		}
		return v.String()
	default:
		return value
	}
}

func epochSeconds(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative time %d", v)
		}
		return v, nil
	case float64:
		if v < 0 || v > math.MaxInt64 || math.IsNaN(v) {
			return 0, fmt.Errorf("time %v out of range", v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("time is %T, want a number", value)
	}
}
