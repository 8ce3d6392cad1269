package headers

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which member of the Value union is populated.
type Kind uint8

const (
	KindString Kind = iota
	KindInt32
	KindInt64
	KindBool
	KindFloat64
	KindFloat32
)

// String returns the wire-neutral name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindBool:
		return "bool"
	case KindFloat64:
		return "float64"
	case KindFloat32:
		return "float32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a typed message property. The zero Value is the empty string.
//
// Values are built by Coerce or by the typed constructors below; drivers
// switch once on Kind when mapping a Value to their wire representation.
type Value struct {
	kind Kind
	s    string
	i    int64
	b    bool
	f    float64
}

// String constructs a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int32 constructs a 32-bit integer value.
func Int32(v int32) Value { return Value{kind: KindInt32, i: int64(v)} }

// Int64 constructs a 64-bit integer value.
func Int64(v int64) Value { return Value{kind: KindInt64, i: v} }

// Bool constructs a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Float64 constructs a double precision value.
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }

// Float32 constructs a single precision value.
func Float32(v float32) Value { return Value{kind: KindFloat32, f: float64(v)} }

func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload. It is only meaningful for KindString.
func (v Value) Str() string { return v.s }

// Int32 returns the payload of a KindInt32 value.
func (v Value) Int32() int32 { return int32(v.i) }

// Int64 returns the payload of a KindInt64 value.
func (v Value) Int64() int64 { return v.i }

func (v Value) Bool() bool { return v.b }

func (v Value) Float64() float64 { return v.f }

func (v Value) Float32() float32 { return float32(v.f) }

// Interface returns the payload as the matching Go scalar type
// (string, int32, int64, bool, float64 or float32).
func (v Value) Interface() any {
	switch v.kind {
	case KindInt32:
		return int32(v.i)
	case KindInt64:
		return v.i
	case KindBool:
		return v.b
	case KindFloat64:
		return v.f
	case KindFloat32:
		return float32(v.f)
	default:
		return v.s
	}
}

// Text renders the value in the textual form Coerce accepts for its kind.
func (v Value) Text() string {
	switch v.kind {
	case KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindFloat64:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindFloat32:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	default:
		return v.s
	}
}

func (v Value) String() string {
	return v.kind.String() + "(" + v.Text() + ")"
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	return v.Interface() == o.Interface()
}

// TypeTag is the declared type of a raw header value.
type TypeTag string

const (
	TypeString  TypeTag = "String"
	TypeInteger TypeTag = "Integer"
	TypeLong    TypeTag = "Long"
	TypeBoolean TypeTag = "Boolean"
	TypeDouble  TypeTag = "Double"
	TypeFloat   TypeTag = "Float"
)

// ParseTypeTag maps a case-insensitive type name to a TypeTag. Unknown names
// are returned unchanged so that Coerce can degrade them to strings.
func ParseTypeTag(s string) TypeTag {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string":
		return TypeString
	case "integer", "int", "int32":
		return TypeInteger
	case "long", "int64":
		return TypeLong
	case "boolean", "bool":
		return TypeBoolean
	case "double", "float64":
		return TypeDouble
	case "float", "float32":
		return TypeFloat
	default:
		return TypeTag(s)
	}
}
