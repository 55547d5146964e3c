package fpc

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Value is what a parameter getter returns: a number when the instrument
// reply parses as one, otherwise the trimmed reply text. The zero Value
// is Number(0).
type Value struct {
	num   float64
	raw   string
	isRaw bool
}

// Number wraps a numeric value.
func Number(v float64) Value { return Value{num: v} }

// Raw wraps an unparsed reply.
func Raw(s string) Value { return Value{raw: s, isRaw: true} }

// parseValue turns a reply into Number, falling back to Raw(trimmed).
func parseValue(resp string) Value {
	s := strings.TrimSpace(resp)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(v)
	}
	return Raw(s)
}

// IsRaw reports whether the value holds unparsed text.
func (v Value) IsRaw() bool { return v.isRaw }

// Float returns the number and true, or 0 and false for Raw values.
func (v Value) Float() (float64, bool) {
	if v.isRaw {
		return 0, false
	}
	return v.num, true
}

// String renders the value the way it is written to the instrument.
func (v Value) String() string {
	if v.isRaw {
		return v.raw
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// MarshalJSON emits a JSON number, or a string for Raw values and for
// numbers JSON cannot represent (NaN, ±Inf).
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isRaw {
		return json.Marshal(v.raw)
	}
	if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
		return json.Marshal(v.String())
	}
	return []byte(strconv.FormatFloat(v.num, 'g', -1, 64)), nil
}

// MarshalYAML emits a YAML float or string.
func (v Value) MarshalYAML() (any, error) {
	if v.isRaw {
		return v.raw, nil
	}
	return v.num, nil
}
