// Package receipt holds the canonical order record produced from OCR output.
//
// OCR payloads are loosely typed: the same field may arrive as a number, a
// numeric string, null, or not at all. Value keeps that distinction so the
// record can be shown and re-submitted exactly as extracted.
package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Value is a loosely typed scalar lifted from a payload.
// The zero Value is absent (the key was not in the payload).
type Value struct {
	Raw     any
	Present bool
}

// Of wraps a raw value as present.
func Of(raw any) Value {
	return Value{Raw: raw, Present: true}
}

// Absent returns a Value for a missing key.
func Absent() Value {
	return Value{}
}

// IsZero reports whether the value is absent. Used by the omitzero json tag.
func (v Value) IsZero() bool {
	return !v.Present
}

// IsNull reports whether the key was present with a JSON null.
func (v Value) IsNull() bool {
	return v.Present && v.Raw == nil
}

// Number coerces the value the way a loose numeric conversion does:
// numbers pass through, numeric strings are parsed, empty strings, null and
// false become 0, true becomes 1. Absent or non-numeric values are NaN.
func (v Value) Number() float64 {
	if !v.Present {
		return math.NaN()
	}

	switch raw := v.Raw.(type) {
	case nil:
		return 0
	case bool:
		if raw {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(raw)
		if s == "" {
			return 0
		}
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return math.NaN()
		}
		return f
	case json.Number:
		f, err := raw.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return cast.ToFloat64(raw)
	default:
		return math.NaN()
	}
}

// Truthy reports whether the value would pass a loose boolean test.
// Absent, null, false, 0, NaN and "" are falsy.
func (v Value) Truthy() bool {
	if !v.Present || v.Raw == nil {
		return false
	}

	switch raw := v.Raw.(type) {
	case bool:
		return raw
	case string:
		return raw != ""
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		f := v.Number()
		return f != 0 && !math.IsNaN(f)
	default:
		return true
	}
}

// String renders the value for display. Absent and null values render empty.
func (v Value) String() string {
	if !v.Present || v.Raw == nil {
		return ""
	}
	if s, ok := v.Raw.(string); ok {
		return s
	}
	if f, ok := v.Raw.(float64); ok {
		return cast.ToString(f)
	}
	return fmt.Sprint(v.Raw)
}

// MarshalJSON writes the raw value. Non-finite numbers are written as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Present || v.Raw == nil {
		return []byte("null"), nil
	}
	if f, ok := v.Raw.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Raw)
}

// UnmarshalJSON marks the value present and keeps whatever was decoded.
func (v *Value) UnmarshalJSON(data []byte) error {
	v.Present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		v.Raw = nil
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Raw = raw
	return nil
}
