// Package value holds the closed set of values the replication engine can
// put on the wire (Value) and the application-facing values entities and
// components store (Replicated).
package value

import (
	"fmt"
	"sort"
	"strings"
)

// Kind discriminates the active variant of a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt64
	KindUInt64
	KindFloat32
	KindFloat64
	KindString
	KindFloatArray
	KindUInt16Map
	KindStringMap
)

var kindNames = [...]string{
	KindInvalid:    "invalid",
	KindBool:       "bool",
	KindInt64:      "int64",
	KindUInt64:     "uint64",
	KindFloat32:    "float32",
	KindFloat64:    "float64",
	KindString:     "string",
	KindFloatArray: "float_array",
	KindUInt16Map:  "uint16_map",
	KindStringMap:  "string_map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a wire-transmissible value. Exactly one variant is active.
// The zero Value has KindInvalid.
//
// Values have value semantics: constructors copy their slice and map
// arguments and accessors return copies.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f32  float32
	f64  float64
	s    string
	fa   []float32
	um   map[uint16]Value
	sm   map[string]Value
}

func Bool(v bool) Value       { return Value{kind: KindBool, b: v} }
func Int64(v int64) Value     { return Value{kind: KindInt64, i: v} }
func UInt64(v uint64) Value   { return Value{kind: KindUInt64, u: v} }
func Float32(v float32) Value { return Value{kind: KindFloat32, f32: v} }
func Float64(v float64) Value { return Value{kind: KindFloat64, f64: v} }
func String(v string) Value   { return Value{kind: KindString, s: v} }

// FloatArray builds a float array value. Vectors travel as arrays of
// length 2, 3 or 4; other lengths are legal on the wire.
func FloatArray(v ...float32) Value {
	return Value{kind: KindFloatArray, fa: append([]float32(nil), v...)}
}

func UInt16Map(m map[uint16]Value) Value {
	out := make(map[uint16]Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return Value{kind: KindUInt16Map, um: out}
}

func StringMap(m map[string]Value) Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return Value{kind: KindStringMap, sm: out}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsBool returns the bool payload, or false if v is not a Bool.
func (v Value) AsBool() bool {
	if v.kind != KindBool {
		return false
	}
	return v.b
}

// AsInt64 returns the int64 payload, or 0 if v is not an Int64.
func (v Value) AsInt64() int64 {
	if v.kind != KindInt64 {
		return 0
	}
	return v.i
}

// AsUInt64 returns the uint64 payload, or 0 if v is not a UInt64.
func (v Value) AsUInt64() uint64 {
	if v.kind != KindUInt64 {
		return 0
	}
	return v.u
}

// AsFloat32 returns the float32 payload, or 0 if v is not a Float32.
func (v Value) AsFloat32() float32 {
	if v.kind != KindFloat32 {
		return 0
	}
	return v.f32
}

// AsFloat64 returns the float64 payload, or 0 if v is not a Float64.
func (v Value) AsFloat64() float64 {
	if v.kind != KindFloat64 {
		return 0
	}
	return v.f64
}

// AsString returns the string payload, or "" if v is not a String.
func (v Value) AsString() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// AsFloatArray returns a copy of the array payload, or nil.
func (v Value) AsFloatArray() []float32 {
	if v.kind != KindFloatArray {
		return nil
	}
	return append([]float32(nil), v.fa...)
}

// AsUInt16Map returns a copy of the map payload, or nil.
func (v Value) AsUInt16Map() map[uint16]Value {
	if v.kind != KindUInt16Map {
		return nil
	}
	out := make(map[uint16]Value, len(v.um))
	for k, e := range v.um {
		out[k] = e
	}
	return out
}

// AsStringMap returns a copy of the map payload, or nil.
func (v Value) AsStringMap() map[string]Value {
	if v.kind != KindStringMap {
		return nil
	}
	out := make(map[string]Value, len(v.sm))
	for k, e := range v.sm {
		out[k] = e
	}
	return out
}

// Len is the element count of array and map values, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindFloatArray:
		return len(v.fa)
	case KindUInt16Map:
		return len(v.um)
	case KindStringMap:
		return len(v.sm)
	default:
		return 0
	}
}

// Equal compares the active variants structurally. Values of different
// kinds are never equal, even when numerically identical.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindInvalid:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt64:
		return v.i == o.i
	case KindUInt64:
		return v.u == o.u
	case KindFloat32:
		return v.f32 == o.f32
	case KindFloat64:
		return v.f64 == o.f64
	case KindString:
		return v.s == o.s
	case KindFloatArray:
		if len(v.fa) != len(o.fa) {
			return false
		}
		for i := range v.fa {
			if v.fa[i] != o.fa[i] {
				return false
			}
		}
		return true
	case KindUInt16Map:
		if len(v.um) != len(o.um) {
			return false
		}
		for k, e := range v.um {
			other, ok := o.um[k]
			if !ok || !e.Equal(other) {
				return false
			}
		}
		return true
	case KindStringMap:
		if len(v.sm) != len(o.sm) {
			return false
		}
		for k, e := range v.sm {
			other, ok := o.sm[k]
			if !ok || !e.Equal(other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("bool(%t)", v.b)
	case KindInt64:
		return fmt.Sprintf("int64(%d)", v.i)
	case KindUInt64:
		return fmt.Sprintf("uint64(%d)", v.u)
	case KindFloat32:
		return fmt.Sprintf("float32(%g)", v.f32)
	case KindFloat64:
		return fmt.Sprintf("float64(%g)", v.f64)
	case KindString:
		return fmt.Sprintf("string(%q)", v.s)
	case KindFloatArray:
		return fmt.Sprintf("float_array(%v)", v.fa)
	case KindUInt16Map:
		keys := make([]int, 0, len(v.um))
		for k := range v.um {
			keys = append(keys, int(k))
		}
		sort.Ints(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%d: %s", k, v.um[uint16(k)])
		}
		return "uint16_map{" + strings.Join(parts, ", ") + "}"
	case KindStringMap:
		keys := make([]string, 0, len(v.sm))
		for k := range v.sm {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q: %s", k, v.sm[k])
		}
		return "string_map{" + strings.Join(parts, ", ") + "}"
	default:
		return "invalid"
	}
}
