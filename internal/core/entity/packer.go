package entity

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/mcs"
	"github.com/zeusync/replica/internal/core/value"
)

// ToItemComponentData converts an application value to its wire payload.
func ToItemComponentData(r value.Replicated) (mcs.ItemComponentData, error) {
	v, err := toWireValue(r)
	if err != nil {
		return mcs.ItemComponentData{}, err
	}
	return mcs.NewItemComponentData(v), nil
}

func toWireValue(r value.Replicated) (value.Value, error) {
	switch r.Kind() {
	case value.ReplicatedBool:
		return value.Bool(r.Bool()), nil
	case value.ReplicatedInt:
		return value.Int64(r.Int()), nil
	case value.ReplicatedFloat:
		return value.Float32(r.Float()), nil
	case value.ReplicatedString:
		return value.String(r.String()), nil
	case value.ReplicatedVector2:
		v := r.Vector2()
		return value.FloatArray(v.X, v.Y), nil
	case value.ReplicatedVector3:
		v := r.Vector3()
		return value.FloatArray(v.X, v.Y, v.Z), nil
	case value.ReplicatedVector4:
		v := r.Vector4()
		return value.FloatArray(v.X, v.Y, v.Z, v.W), nil
	case value.ReplicatedStringMap:
		src := r.StringMap()
		out := make(map[string]value.Value, len(src))
		for k, e := range src {
			wire, err := toWireValue(e)
			if err != nil {
				return value.Value{}, errors.Wrapf(err, "string map entry %q", k)
			}
			out[k] = wire
		}
		return value.StringMap(out), nil
	default:
		return value.Value{}, errors.Wrapf(protocol.ErrUnsupportedValue, "replicated kind %s", r.Kind())
	}
}

// FromItemComponentData converts a wire payload back to an application
// value. Float arrays of length 2, 3 and 4 become vectors; UINT64 becomes
// an Int by conversion.
func FromItemComponentData(d mcs.ItemComponentData) (value.Replicated, error) {
	return fromWireValue(d.Value())
}

func fromWireValue(v value.Value) (value.Replicated, error) {
	switch v.Kind() {
	case value.KindBool:
		return value.NewBool(v.AsBool()), nil
	case value.KindInt64:
		return value.NewInt(v.AsInt64()), nil
	case value.KindUInt64:
		return value.NewInt(int64(v.AsUInt64())), nil
	case value.KindFloat32:
		return value.NewFloat(v.AsFloat32()), nil
	case value.KindString:
		return value.NewString(v.AsString()), nil
	case value.KindFloatArray:
		f := v.AsFloatArray()
		switch len(f) {
		case 2:
			return value.NewVector2(value.Vector2{X: f[0], Y: f[1]}), nil
		case 3:
			return value.NewVector3(value.Vector3{X: f[0], Y: f[1], Z: f[2]}), nil
		case 4:
			return value.NewVector4(value.Vector4{X: f[0], Y: f[1], Z: f[2], W: f[3]}), nil
		default:
			return value.Replicated{}, errors.Wrapf(protocol.ErrInvalidVectorLength, "length %d", len(f))
		}
	case value.KindStringMap:
		src := v.AsStringMap()
		out := make(map[string]value.Replicated, len(src))
		for k, e := range src {
			r, err := fromWireValue(e)
			if err != nil {
				return value.Replicated{}, errors.Wrapf(err, "string map entry %q", k)
			}
			out[k] = r
		}
		return value.NewStringMap(out), nil
	default:
		return value.Replicated{}, errors.Wrapf(protocol.ErrUnsupportedValue, "wire kind %s", v.Kind())
	}
}

// PackComponent encodes a component as a uint16 dictionary of its
// properties plus its type under ComponentTypeKey.
func PackComponent(typ ComponentType, props map[uint16]value.Replicated) (mcs.ItemComponentData, error) {
	entries := make(map[uint16]value.Value, len(props)+1)
	for k, p := range props {
		if k == ComponentTypeKey {
			return mcs.ItemComponentData{}, errors.Wrapf(protocol.ErrMalformedKey, "property key %#x is reserved", k)
		}
		wire, err := toWireValue(p)
		if err != nil {
			return mcs.ItemComponentData{}, errors.Wrapf(err, "property %d", k)
		}
		entries[k] = wire
	}
	entries[ComponentTypeKey] = value.UInt64(uint64(typ))
	return mcs.NewItemComponentData(value.UInt16Map(entries)), nil
}

// UnpackComponent is the inverse of PackComponent.
func UnpackComponent(d mcs.ItemComponentData) (ComponentType, map[uint16]value.Replicated, error) {
	v := d.Value()
	if v.Kind() != value.KindUInt16Map {
		return ComponentTypeInvalid, nil, errors.Wrapf(protocol.ErrUnsupportedValue, "component payload is %s", v.Kind())
	}

	entries := v.AsUInt16Map()
	rawType, ok := entries[ComponentTypeKey]
	if !ok {
		return ComponentTypeInvalid, nil, errors.Wrap(protocol.ErrMalformedKey, "component has no type key")
	}

	var typ ComponentType
	switch rawType.Kind() {
	case value.KindUInt64:
		typ = ComponentType(rawType.AsUInt64())
	case value.KindInt64:
		typ = ComponentType(rawType.AsInt64())
	default:
		return ComponentTypeInvalid, nil, errors.Wrapf(protocol.ErrUnsupportedValue, "component type is %s", rawType.Kind())
	}

	props := make(map[uint16]value.Replicated, len(entries)-1)
	for k, e := range entries {
		if k == ComponentTypeKey {
			continue
		}
		r, err := fromWireValue(e)
		if err != nil {
			return typ, nil, errors.Wrapf(err, "property %d", k)
		}
		props[k] = r
	}
	return typ, props, nil
}

// componentPacker accumulates the component map of an outgoing message or
// patch. Conversion failures skip the entry and are reported to the caller.
type componentPacker struct {
	components mcs.Components
}

func newComponentPacker() *componentPacker {
	return &componentPacker{components: make(mcs.Components)}
}

func (p *componentPacker) writeValue(key uint16, v value.Replicated) error {
	data, err := ToItemComponentData(v)
	if err != nil {
		return errors.Wrapf(err, "view property %#x", key)
	}
	p.components[key] = data
	return nil
}

func (p *componentPacker) writeComponent(c *Component) error {
	data, err := PackComponent(c.Type(), c.Properties())
	if err != nil {
		return errors.Wrapf(err, "component %d", c.Key())
	}
	p.components[c.Key()] = data
	return nil
}

func (p *componentPacker) writeDeletion(key uint16) {
	data, _ := PackComponent(ComponentTypeDelete, nil)
	p.components[key] = data
}

func sortedKeys[V any](m map[uint16]V) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
