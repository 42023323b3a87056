package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the runtime type of a sampled value.
type ValueKind uint8

const (
	// KindFloat is a float64 value.
	KindFloat ValueKind = iota
	// KindInt is an int64 value.
	KindInt
	// KindBool is a bool value.
	KindBool
	// KindString is a string value.
	KindString
)

// Value is the tagged variant carried by every sample:
// float64 | int64 | bool | string. The zero Value is the float 0.
type Value struct {
	kind ValueKind
	f    float64
	i    int64
	b    bool
	s    string
}

// FloatValue wraps a float64.
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// IntValue wraps an int64.
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// BoolValue wraps a bool.
func BoolValue(v bool) Value { return Value{kind: KindBool, b: v} }

// StringValue wraps a string.
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

// Kind reports the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// Float returns the numeric value and whether the variant is numeric
// (float or int).
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// Bool returns the bool value and whether the variant is a bool.
func (v Value) Bool() (bool, bool) {
	if v.kind == KindBool {
		return v.b, true
	}

	return false, false
}

// Text renders the value canonically: floats without trailing zeros,
// bools as true/false. Used for truthy-set matching and buffer storage.
func (v Value) Text() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.s
	}
}

// In reports whether the value's lowercased text rendering is one of the
// given words. Availability and quality tags use word sets like
// {running, on, 1, true}.
func (v Value) In(words ...string) bool {
	text := strings.ToLower(v.Text())
	for _, w := range words {
		if text == w {
			return true
		}
	}

	return false
}

// EncodeValue serializes a value for buffer storage as (kind, text).
func EncodeValue(v Value) (string, string) {
	switch v.kind {
	case KindFloat:
		return "float", v.Text()
	case KindInt:
		return "int", v.Text()
	case KindBool:
		return "bool", v.Text()
	default:
		return "string", v.s
	}
}

// DecodeValue reverses EncodeValue.
func DecodeValue(kind, text string) (Value, error) {
	switch kind {
	case "float":
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode float value %q: %w", text, err)
		}

		return FloatValue(f), nil
	case "int":
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode int value %q: %w", text, err)
		}

		return IntValue(i), nil
	case "bool":
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("decode bool value %q: %w", text, err)
		}

		return BoolValue(b), nil
	case "string":
		return StringValue(text), nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %q", kind)
	}
}

// ValueFrom converts an arbitrary wire value into the tagged variant.
// Unknown types fall back to their string rendering.
func ValueFrom(raw any) Value {
	switch v := raw.(type) {
	case float64:
		return FloatValue(v)
	case float32:
		return FloatValue(float64(v))
	case int:
		return IntValue(int64(v))
	case int8:
		return IntValue(int64(v))
	case int16:
		return IntValue(int64(v))
	case int32:
		return IntValue(int64(v))
	case int64:
		return IntValue(v)
	case uint8:
		return IntValue(int64(v))
	case uint16:
		return IntValue(int64(v))
	case uint32:
		return IntValue(int64(v))
	case uint64:
		return IntValue(int64(v))
	case bool:
		return BoolValue(v)
	case string:
		return StringValue(v)
	default:
		return StringValue(fmt.Sprint(raw))
	}
}
