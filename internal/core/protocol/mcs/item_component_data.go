package mcs

import (
	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
	"github.com/zeusync/replica/internal/core/value"
)

var (
	_ codec.Serializable   = ItemComponentData{}
	_ codec.Deserializable = (*ItemComponentData)(nil)
)

// ItemComponentData is one typed component payload. Its wire shape is
// [typeTag, [payload]]; the payload is always wrapped in a one element
// array. Dictionaries nest ItemComponentData for every entry, and an empty
// dictionary travels as null.
type ItemComponentData struct {
	value value.Value
}

func NewItemComponentData(v value.Value) ItemComponentData {
	return ItemComponentData{value: v}
}

func (d ItemComponentData) Value() value.Value { return d.value }

// Type is the tag written for the payload's kind.
func (d ItemComponentData) Type() DataType {
	switch d.value.Kind() {
	case value.KindBool:
		return DataTypeBool
	case value.KindInt64:
		return DataTypeInt64
	case value.KindUInt64:
		return DataTypeUInt64
	case value.KindFloat32:
		return DataTypeFloat
	case value.KindFloat64:
		return DataTypeDouble
	case value.KindString:
		return DataTypeString
	case value.KindFloatArray:
		return DataTypeFloatArray
	case value.KindUInt16Map:
		return DataTypeUInt16Dictionary
	case value.KindStringMap:
		return DataTypeStringDictionary
	default:
		return DataTypeDeleteComponent
	}
}

func (d ItemComponentData) Equal(o ItemComponentData) bool {
	return d.value.Equal(o.value)
}

func (d ItemComponentData) Serialize(s *codec.Serializer) {
	if !d.value.IsValid() {
		panic(&codec.UsageError{Op: "ItemComponentData.Serialize", Detail: "payload has no value"})
	}

	s.StartArray()
	s.WriteUint64(uint64(d.Type()))
	s.StartArray()
	writePayload(s, d.value)
	s.EndArray()
	s.EndArray()
}

func writePayload(s *codec.Serializer, v value.Value) {
	switch v.Kind() {
	case value.KindBool:
		s.WriteBool(v.AsBool())
	case value.KindInt64:
		s.WriteInt64(v.AsInt64())
	case value.KindUInt64:
		s.WriteUint64(v.AsUInt64())
	case value.KindFloat32:
		s.WriteFloat32(v.AsFloat32())
	case value.KindFloat64:
		s.WriteFloat64(v.AsFloat64())
	case value.KindString:
		s.WriteString(v.AsString())
	case value.KindFloatArray:
		s.StartArray()
		for _, f := range v.AsFloatArray() {
			s.WriteFloat32(f)
		}
		s.EndArray()
	case value.KindUInt16Map:
		entries := v.AsUInt16Map()
		if len(entries) == 0 {
			s.WriteNull()
			return
		}
		s.StartUintMap()
		for k, e := range entries {
			s.WriteUintKeyValue(uint64(k), NewItemComponentData(e))
		}
		s.EndUintMap()
	case value.KindStringMap:
		entries := v.AsStringMap()
		if len(entries) == 0 {
			s.WriteNull()
			return
		}
		s.StartStringMap()
		for k, e := range entries {
			s.WriteStringKeyValue(k, NewItemComponentData(e))
		}
		s.EndStringMap()
	}
}

func (d *ItemComponentData) Deserialize(r *codec.Deserializer) error {
	if _, err := r.StartReadArray(); err != nil {
		return err
	}

	rawType, err := readUnsigned(r)
	if err != nil {
		return errors.Wrap(err, "item component data: type tag")
	}
	typ := DataType(rawType)

	if _, err = r.StartReadArray(); err != nil {
		return err
	}

	v, err := readPayload(r, typ)
	if err != nil {
		return err
	}

	if err = r.EndReadArray(); err != nil {
		return err
	}
	if err = r.EndReadArray(); err != nil {
		return err
	}

	d.value = v
	return nil
}

// readPayload decodes one payload as the declared tag. Integers are read
// through lookahead because the relay may echo a signed value as unsigned
// and the reverse; the result always has the tag's kind.
func readPayload(r *codec.Deserializer, typ DataType) (value.Value, error) {
	switch typ {
	case DataTypeBool:
		b, err := r.ReadBool()
		return value.Bool(b), err
	case DataTypeInt64:
		i, err := readSigned(r)
		return value.Int64(i), err
	case DataTypeUInt64:
		u, err := readUnsigned(r)
		return value.UInt64(u), err
	case DataTypeFloat:
		f, err := r.ReadFloat32()
		return value.Float32(f), err
	case DataTypeDouble:
		f, err := r.ReadFloat64()
		return value.Float64(f), err
	case DataTypeString:
		s, err := r.ReadString()
		return value.String(s), err
	case DataTypeFloatArray:
		n, err := r.StartReadArray()
		if err != nil {
			return value.Value{}, err
		}
		floats := make([]float32, n)
		for i := range floats {
			if floats[i], err = r.ReadFloat32(); err != nil {
				return value.Value{}, err
			}
		}
		return value.FloatArray(floats...), r.EndReadArray()
	case DataTypeUInt16Dictionary:
		return readUInt16Dictionary(r)
	case DataTypeStringDictionary:
		return readStringDictionary(r)
	default:
		return value.Value{}, errors.Wrapf(protocol.ErrUnsupportedDataType, "item component data: tag %s", typ)
	}
}

func readUInt16Dictionary(r *codec.Deserializer) (value.Value, error) {
	if r.NextIsNull() {
		return value.UInt16Map(nil), r.Skip()
	}

	n, err := r.StartReadUintMap()
	if err != nil {
		return value.Value{}, err
	}

	entries := make(map[uint16]value.Value, n)
	for i := 0; i < n; i++ {
		key, err := r.ReadUintKey()
		if err != nil {
			return value.Value{}, err
		}
		if key > MaxComponentKey {
			return value.Value{}, errors.Wrapf(protocol.ErrMalformedKey, "uint16 dictionary key %d", key)
		}

		var entry ItemComponentData
		if err = entry.Deserialize(r); err != nil {
			return value.Value{}, errors.Wrapf(err, "uint16 dictionary key %d", key)
		}
		entries[uint16(key)] = entry.value
	}

	return value.UInt16Map(entries), r.EndReadUintMap()
}

func readStringDictionary(r *codec.Deserializer) (value.Value, error) {
	if r.NextIsNull() {
		return value.StringMap(nil), r.Skip()
	}

	n, err := r.StartReadStringMap()
	if err != nil {
		return value.Value{}, err
	}

	entries := make(map[string]value.Value, n)
	for i := 0; i < n; i++ {
		key, err := r.ReadStringKey()
		if err != nil {
			return value.Value{}, err
		}

		var entry ItemComponentData
		if err = entry.Deserialize(r); err != nil {
			return value.Value{}, errors.Wrapf(err, "string dictionary key %q", key)
		}
		entries[key] = entry.value
	}

	return value.StringMap(entries), r.EndReadStringMap()
}

func readSigned(r *codec.Deserializer) (int64, error) {
	if r.NextIsUint() {
		u, err := r.ReadUint64()
		return int64(u), err
	}
	return r.ReadInt64()
}

func readUnsigned(r *codec.Deserializer) (uint64, error) {
	if r.NextIsInt() {
		i, err := r.ReadInt64()
		return uint64(i), err
	}
	return r.ReadUint64()
}
