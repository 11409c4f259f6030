package tile

import (
	"fmt"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

// Value kinds. The zero Kind is KindBool so the zero Value is boolean false.
const (
	KindBool Kind = iota
	KindInt
	KindUint
	KindFloat
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a feature attribute value. It is a closed union of
// bool, int64, uint64, float64 and string.
type Value struct {
	kind Kind
	num  uint64
	f    float64
	s    string
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// IntValue returns a signed integer Value.
func IntValue(i int64) Value { return Value{kind: KindInt, num: uint64(i)} }

// UintValue returns an unsigned integer Value.
func UintValue(u uint64) Value { return Value{kind: KindUint, num: u} }

// FloatValue returns a floating point Value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean held by v and whether v is a boolean.
func (v Value) Bool() (bool, bool) { return v.num != 0, v.kind == KindBool }

// Int returns the signed integer held by v and whether v is one.
func (v Value) Int() (int64, bool) { return int64(v.num), v.kind == KindInt }

// Uint returns the unsigned integer held by v and whether v is one.
func (v Value) Uint() (uint64, bool) { return v.num, v.kind == KindUint }

// Float returns the float held by v and whether v is one.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Str returns the string held by v and whether v is one.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Interface returns v as a plain Go value, suitable for JSON encoding.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindInt:
		return int64(v.num)
	case KindUint:
		return v.num
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return v.num != 0
	}
}

// Equal reports whether v and o hold the same variant and payload.
// Floats compare by value, so NaN is never equal to itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	default:
		return v.num == o.num
	}
}

// String formats v for logs and debugging.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.s)
	default:
		return fmt.Sprint(v.Interface())
	}
}
