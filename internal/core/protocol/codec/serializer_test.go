package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/protocol"
)

type serializeFunc func(s *Serializer)

func (f serializeFunc) Serialize(s *Serializer) { f(s) }

func TestScalarBecomesRoot(t *testing.T) {
	s := NewSerializer()
	s.WriteUint64(7)

	root, err := s.Root()
	require.NoError(t, err)
	assert.True(t, root.Equal(Uint(7)))
}

func TestEmptySerializerRootIsNull(t *testing.T) {
	root, err := NewSerializer().Root()
	require.NoError(t, err)
	assert.True(t, root.IsNull())
}

func TestNestedContainers(t *testing.T) {
	s := NewSerializer()
	s.StartArray()
	s.WriteUint64(20)
	s.StartArray()
	s.StartUintMap()
	s.WriteUintKeyValue(1, Bool(true))
	s.WriteUintKeyValue(2, serializeFunc(func(s *Serializer) {
		s.StartArray()
		s.WriteString("x")
		s.WriteNull()
		s.EndArray()
	}))
	s.EndUintMap()
	s.EndArray()
	s.StartStringMap()
	s.WriteStringKeyValue("k", Int(-1))
	s.EndStringMap()
	s.EndArray()

	root, err := s.Root()
	require.NoError(t, err)

	want := Array(
		Uint(20),
		Array(UintMap(map[uint64]Node{
			1: Bool(true),
			2: Array(String("x"), Null()),
		})),
		StringMap(map[string]Node{"k": Int(-1)}),
	)
	assert.True(t, want.Equal(root), "got %s", root)
}

func TestRootFailsWithOpenFrames(t *testing.T) {
	s := NewSerializer()
	s.StartArray()
	s.WriteBool(true)

	_, err := s.Root()
	require.Error(t, err)
	assert.True(t, IsUsageError(err))
	assert.ErrorIs(t, err, protocol.ErrUsageFault)
}

func TestUsageFaultsPanic(t *testing.T) {
	cases := map[string]func(s *Serializer){
		"end array on empty stack": func(s *Serializer) { s.EndArray() },
		"end array inside map": func(s *Serializer) {
			s.StartUintMap()
			s.EndArray()
		},
		"end uint map inside string map": func(s *Serializer) {
			s.StartStringMap()
			s.EndUintMap()
		},
		"bare value in map": func(s *Serializer) {
			s.StartUintMap()
			s.WriteBool(true)
		},
		"key value outside map": func(s *Serializer) {
			s.StartArray()
			s.WriteUintKeyValue(1, Bool(true))
		},
		"string key into uint map": func(s *Serializer) {
			s.StartUintMap()
			s.WriteStringKeyValue("a", Bool(true))
		},
		"key value with two values": func(s *Serializer) {
			s.StartUintMap()
			s.WriteUintKeyValue(1, serializeFunc(func(s *Serializer) {
				s.WriteBool(true)
				s.WriteBool(false)
			}))
		},
		"key value with no value": func(s *Serializer) {
			s.StartUintMap()
			s.WriteUintKeyValue(1, serializeFunc(func(*Serializer) {}))
		},
		"second root": func(s *Serializer) {
			s.WriteBool(true)
			s.WriteBool(false)
		},
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				require.NotNil(t, r, "expected panic")
				_, ok := r.(*UsageError)
				assert.True(t, ok, "panic value %T", r)
			}()
			fn(NewSerializer())
		})
	}
}

func TestEncodeRecoversUsageFault(t *testing.T) {
	_, err := Encode(serializeFunc(func(s *Serializer) {
		s.StartArray()
		s.EndStringMap()
	}))
	require.Error(t, err)
	assert.True(t, IsUsageError(err))
}

func TestEncodeRepanicsForeignPanics(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		_, _ = Encode(serializeFunc(func(*Serializer) { panic("boom") }))
	})
}

func TestSerializerReuseAfterFault(t *testing.T) {
	s := NewSerializer()
	_, err := s.Encode(serializeFunc(func(s *Serializer) { s.EndArray() }))
	require.Error(t, err)

	root, err := s.Encode(Uint(3))
	require.NoError(t, err)
	assert.True(t, root.Equal(Uint(3)))
	assert.Zero(t, s.Depth())
}
