package mcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
	"github.com/zeusync/replica/internal/core/value"
)

func roundTripBytes(t *testing.T, in codec.Serializable, out codec.Deserializable) {
	t.Helper()
	data, err := codec.MarshalValue(in)
	require.NoError(t, err)
	require.NoError(t, codec.UnmarshalValue(data, out))
}

func sampleValues() map[string]value.Value {
	return map[string]value.Value{
		"bool":          value.Bool(true),
		"int64":         value.Int64(-42),
		"int64 zero":    value.Int64(0),
		"int64 pos":     value.Int64(42),
		"uint64":        value.UInt64(1 << 63),
		"float32":       value.Float32(1.25),
		"float64":       value.Float64(-3.5e10),
		"string":        value.String("replica"),
		"float array":   value.FloatArray(1, 2, 3, 4),
		"empty uintmap": value.UInt16Map(nil),
		"empty strmap":  value.StringMap(nil),
		"nested": value.StringMap(map[string]value.Value{
			"level1": value.UInt16Map(map[uint16]value.Value{
				3: value.StringMap(map[string]value.Value{
					"level3": value.Int64(7),
					"empty":  value.UInt16Map(nil),
				}),
				4: value.FloatArray(0.5, 0.25),
			}),
			"flag": value.Bool(false),
		}),
	}
}

func TestItemComponentDataRoundTrip(t *testing.T) {
	for name, v := range sampleValues() {
		t.Run(name, func(t *testing.T) {
			in := NewItemComponentData(v)

			node, err := codec.Encode(in)
			require.NoError(t, err)
			var direct ItemComponentData
			require.NoError(t, codec.Decode(node, &direct))
			assert.True(t, in.Equal(direct), "tree: %s != %s", in.Value(), direct.Value())

			var viaBytes ItemComponentData
			roundTripBytes(t, in, &viaBytes)
			assert.True(t, in.Equal(viaBytes), "bytes: %s != %s", in.Value(), viaBytes.Value())
			assert.Equal(t, in.Type(), viaBytes.Type())
		})
	}
}

func TestItemComponentDataWireShape(t *testing.T) {
	node, err := codec.Encode(NewItemComponentData(value.Bool(true)))
	require.NoError(t, err)
	assert.True(t, codec.Array(codec.Uint(uint64(DataTypeBool)), codec.Array(codec.Bool(true))).Equal(node), "got %s", node)
}

func TestEmptyDictionaryIsNullOnWire(t *testing.T) {
	node, err := codec.Encode(NewItemComponentData(value.UInt16Map(nil)))
	require.NoError(t, err)
	want := codec.Array(codec.Uint(uint64(DataTypeUInt16Dictionary)), codec.Array(codec.Null()))
	require.True(t, want.Equal(node), "got %s", node)

	var out ItemComponentData
	require.NoError(t, codec.Decode(node, &out))
	assert.Equal(t, value.KindUInt16Map, out.Value().Kind())
	assert.Zero(t, out.Value().Len())

	node = codec.Array(codec.Uint(uint64(DataTypeStringDictionary)), codec.Array(codec.Null()))
	require.NoError(t, codec.Decode(node, &out))
	assert.Equal(t, value.KindStringMap, out.Value().Kind())
}

func TestSignednessReconciliation(t *testing.T) {
	// Signed tag, unsigned payload: the relay dropped the sign bit info.
	node := codec.Array(codec.Uint(uint64(DataTypeInt64)), codec.Array(codec.Uint(12)))
	var out ItemComponentData
	require.NoError(t, codec.Decode(node, &out))
	assert.True(t, out.Value().Equal(value.Int64(12)))

	// Unsigned tag, signed payload.
	node = codec.Array(codec.Uint(uint64(DataTypeUInt64)), codec.Array(codec.Int(12)))
	require.NoError(t, codec.Decode(node, &out))
	assert.True(t, out.Value().Equal(value.UInt64(12)))

	// Tag itself arriving signed.
	node = codec.Array(codec.Int(int64(DataTypeString)), codec.Array(codec.String("s")))
	require.NoError(t, codec.Decode(node, &out))
	assert.True(t, out.Value().Equal(value.String("s")))
}

func TestUnsupportedTag(t *testing.T) {
	for _, tag := range []DataType{DataTypeNullableBool, DataTypeStringArray, DataTypeDeleteComponent, 99} {
		node := codec.Array(codec.Uint(uint64(tag)), codec.Array(codec.Null()))
		var out ItemComponentData
		err := codec.Decode(node, &out)
		assert.ErrorIs(t, err, protocol.ErrUnsupportedDataType, tag.String())
		assert.False(t, tag.Supported())
	}
}

func TestSerializeInvalidValueIsUsageFault(t *testing.T) {
	_, err := codec.Encode(ItemComponentData{})
	assert.True(t, codec.IsUsageError(err))
}

func TestMalformedDictionaryKey(t *testing.T) {
	node := codec.Array(
		codec.Uint(uint64(DataTypeUInt16Dictionary)),
		codec.Array(codec.UintMap(map[uint64]codec.Node{
			0x10000: codec.Array(codec.Uint(uint64(DataTypeBool)), codec.Array(codec.Bool(true))),
		})),
	)
	var out ItemComponentData
	assert.ErrorIs(t, codec.Decode(node, &out), protocol.ErrMalformedKey)
}

func TestObjectMessageRoundTrip(t *testing.T) {
	parent := uint64(77)
	in := ObjectMessage{
		ID:             1001,
		Type:           2,
		IsTransferable: true,
		IsPersistent:   false,
		OwnerID:        5,
		ParentID:       &parent,
		Components: Components{
			7:      NewItemComponentData(value.UInt16Map(map[uint16]value.Value{1: value.Bool(true)})),
			0xFF01: NewItemComponentData(value.FloatArray(1, 2, 3)),
		},
	}

	var out ObjectMessage
	roundTripBytes(t, in, &out)
	assert.True(t, in.Equal(out), "%+v != %+v", in, out)

	in.ParentID = nil
	in.Components = nil
	roundTripBytes(t, in, &out)
	assert.True(t, in.Equal(out))
	assert.Nil(t, out.Components)
}

func TestObjectMessageWireShape(t *testing.T) {
	node, err := codec.Encode(ObjectMessage{ID: 1, Type: 2, OwnerID: 3})
	require.NoError(t, err)
	want := codec.Array(
		codec.Uint(1), codec.Uint(2), codec.Bool(false), codec.Bool(false),
		codec.Uint(3), codec.Null(), codec.Null(),
	)
	assert.True(t, want.Equal(node), "got %s", node)
}

func TestObjectMessageTooShort(t *testing.T) {
	var out ObjectMessage
	err := codec.Decode(codec.Array(codec.Uint(1)), &out)
	assert.ErrorIs(t, err, protocol.ErrMalformedMessage)
}

func TestObjectPatchParentSubArray(t *testing.T) {
	node, err := codec.Encode(ObjectPatch{ID: 1, OwnerID: 2})
	require.NoError(t, err)
	items := node.Items()
	require.Len(t, items, 5)
	assert.True(t, items[3].IsNull(), "no parent change must be null, got %s", items[3])

	node, err = codec.Encode(ObjectPatch{ID: 1, OwnerID: 2, ShouldUpdateParent: true})
	require.NoError(t, err)
	items = node.Items()
	assert.True(t, codec.Array(codec.Bool(true), codec.Null()).Equal(items[3]), "got %s", items[3])
}

func TestObjectPatchRoundTrip(t *testing.T) {
	parent := uint64(9)
	cases := map[string]ObjectPatch{
		"no parent change": {ID: 1, OwnerID: 2, Components: Components{
			0xFF01: NewItemComponentData(value.FloatArray(4, 5, 6)),
		}},
		"reparent": {ID: 1, OwnerID: 2, ShouldUpdateParent: true, ParentID: &parent},
		"unparent": {ID: 1, OwnerID: 2, ShouldUpdateParent: true},
		"destroy":  {ID: 1, OwnerID: 2, Destroy: true},
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			var out ObjectPatch
			roundTripBytes(t, in, &out)
			assert.True(t, in.Equal(out), "%+v != %+v", in, out)
		})
	}
}

func TestBatchesRoundTrip(t *testing.T) {
	patches := PatchBatch{{ID: 1, OwnerID: 1}, {ID: 2, OwnerID: 1, Destroy: true}}
	var gotPatches PatchBatch
	roundTripBytes(t, patches, &gotPatches)
	require.Len(t, gotPatches, 2)
	assert.True(t, patches[1].Equal(gotPatches[1]))

	messages := MessageBatch{{ID: 3, Type: 2}}
	var gotMessages MessageBatch
	roundTripBytes(t, messages, &gotMessages)
	require.Len(t, gotMessages, 1)
	assert.True(t, messages[0].Equal(gotMessages[0]))
}
