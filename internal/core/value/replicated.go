package value

import (
	"fmt"
	"sort"
	"strings"
)

type Vector2 struct{ X, Y float32 }

type Vector3 struct{ X, Y, Z float32 }

// Vector4 doubles as a quaternion for rotations.
type Vector4 struct{ X, Y, Z, W float32 }

var (
	Vector3Zero = Vector3{}
	Vector3One  = Vector3{X: 1, Y: 1, Z: 1}

	QuaternionIdentity = Vector4{W: 1}
)

// ReplicatedKind discriminates the active variant of a Replicated.
type ReplicatedKind uint8

const (
	ReplicatedInvalid ReplicatedKind = iota
	ReplicatedBool
	ReplicatedInt
	ReplicatedFloat
	ReplicatedString
	ReplicatedVector2
	ReplicatedVector3
	ReplicatedVector4
	ReplicatedStringMap
)

var replicatedKindNames = [...]string{
	ReplicatedInvalid:   "invalid",
	ReplicatedBool:      "bool",
	ReplicatedInt:       "int",
	ReplicatedFloat:     "float",
	ReplicatedString:    "string",
	ReplicatedVector2:   "vector2",
	ReplicatedVector3:   "vector3",
	ReplicatedVector4:   "vector4",
	ReplicatedStringMap: "string_map",
}

func (k ReplicatedKind) String() string {
	if int(k) < len(replicatedKindNames) {
		return replicatedKindNames[k]
	}
	return fmt.Sprintf("replicated_kind(%d)", uint8(k))
}

// Replicated is the value type stored in entity view properties and
// component properties. It is converted to a wire Value when packed.
type Replicated struct {
	kind ReplicatedKind
	b    bool
	i    int64
	f    float32
	s    string
	vec  Vector4
	m    map[string]Replicated
}

func NewBool(v bool) Replicated     { return Replicated{kind: ReplicatedBool, b: v} }
func NewInt(v int64) Replicated     { return Replicated{kind: ReplicatedInt, i: v} }
func NewFloat(v float32) Replicated { return Replicated{kind: ReplicatedFloat, f: v} }
func NewString(v string) Replicated { return Replicated{kind: ReplicatedString, s: v} }

func NewVector2(v Vector2) Replicated {
	return Replicated{kind: ReplicatedVector2, vec: Vector4{X: v.X, Y: v.Y}}
}

func NewVector3(v Vector3) Replicated {
	return Replicated{kind: ReplicatedVector3, vec: Vector4{X: v.X, Y: v.Y, Z: v.Z}}
}

func NewVector4(v Vector4) Replicated { return Replicated{kind: ReplicatedVector4, vec: v} }

func NewStringMap(m map[string]Replicated) Replicated {
	out := make(map[string]Replicated, len(m))
	for k, v := range m {
		out[k] = v
	}
	return Replicated{kind: ReplicatedStringMap, m: out}
}

func (r Replicated) Kind() ReplicatedKind { return r.kind }

func (r Replicated) IsValid() bool { return r.kind != ReplicatedInvalid }

func (r Replicated) Bool() bool {
	if r.kind != ReplicatedBool {
		return false
	}
	return r.b
}

func (r Replicated) Int() int64 {
	if r.kind != ReplicatedInt {
		return 0
	}
	return r.i
}

func (r Replicated) Float() float32 {
	if r.kind != ReplicatedFloat {
		return 0
	}
	return r.f
}

func (r Replicated) String() string {
	if r.kind != ReplicatedString {
		return ""
	}
	return r.s
}

func (r Replicated) Vector2() Vector2 {
	if r.kind != ReplicatedVector2 {
		return Vector2{}
	}
	return Vector2{X: r.vec.X, Y: r.vec.Y}
}

func (r Replicated) Vector3() Vector3 {
	if r.kind != ReplicatedVector3 {
		return Vector3{}
	}
	return Vector3{X: r.vec.X, Y: r.vec.Y, Z: r.vec.Z}
}

func (r Replicated) Vector4() Vector4 {
	if r.kind != ReplicatedVector4 {
		return Vector4{}
	}
	return r.vec
}

func (r Replicated) StringMap() map[string]Replicated {
	if r.kind != ReplicatedStringMap {
		return nil
	}
	out := make(map[string]Replicated, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}

func (r Replicated) Equal(o Replicated) bool {
	if r.kind != o.kind {
		return false
	}

	switch r.kind {
	case ReplicatedInvalid:
		return true
	case ReplicatedBool:
		return r.b == o.b
	case ReplicatedInt:
		return r.i == o.i
	case ReplicatedFloat:
		return r.f == o.f
	case ReplicatedString:
		return r.s == o.s
	case ReplicatedVector2, ReplicatedVector3, ReplicatedVector4:
		return r.vec == o.vec
	case ReplicatedStringMap:
		if len(r.m) != len(o.m) {
			return false
		}
		for k, v := range r.m {
			other, ok := o.m[k]
			if !ok || !v.Equal(other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Describe renders the value for logs. String is taken by the accessor.
func (r Replicated) Describe() string {
	switch r.kind {
	case ReplicatedBool:
		return fmt.Sprintf("%t", r.b)
	case ReplicatedInt:
		return fmt.Sprintf("%d", r.i)
	case ReplicatedFloat:
		return fmt.Sprintf("%g", r.f)
	case ReplicatedString:
		return fmt.Sprintf("%q", r.s)
	case ReplicatedVector2:
		return fmt.Sprintf("(%g, %g)", r.vec.X, r.vec.Y)
	case ReplicatedVector3:
		return fmt.Sprintf("(%g, %g, %g)", r.vec.X, r.vec.Y, r.vec.Z)
	case ReplicatedVector4:
		return fmt.Sprintf("(%g, %g, %g, %g)", r.vec.X, r.vec.Y, r.vec.Z, r.vec.W)
	case ReplicatedStringMap:
		keys := make([]string, 0, len(r.m))
		for k := range r.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q: %s", k, r.m[k].Describe())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "invalid"
	}
}
