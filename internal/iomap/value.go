package iomap

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Kind tags the representation held by a Value.
type Kind uint8

const (
	KindUnset Kind = iota
	KindInt
	KindFloat
	KindText
)

// Value is a reference value. The cloud and peers exchange values as
// strings; Value keeps the parsed form and renders the string only at the
// wire boundary.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a floating point value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Text returns a string value.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// ParseValue converts a wire string into the narrowest matching kind.
func ParseValue(s string) Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	return Text(s)
}

// Kind returns the representation tag.
func (v Value) Kind() Kind { return v.kind }

// IsSet reports whether the value was ever assigned.
func (v Value) IsSet() bool { return v.kind != KindUnset }

// String renders the wire form.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindText:
		return v.s
	}
	return ""
}

// Int returns the value as an integer level, truncating floats.
// Text is accepted when it parses as a number.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		return int64(v.f), true
	case KindText:
		p := ParseValue(v.s)
		if p.kind == KindText {
			return 0, false
		}
		return p.Int()
	}
	return 0, false
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool {
	return v == o
}

// MarshalJSON writes the wire string form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON accepts a JSON string or number. null leaves the value unset.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = ParseValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = ParseValue(n.String())
	return nil
}
