package mcs

import (
	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
)

// Components maps component keys to payloads. A nil Components is written
// as null and means "absent".
type Components map[uint16]ItemComponentData

func (c Components) Equal(o Components) bool {
	if (c == nil) != (o == nil) || len(c) != len(o) {
		return false
	}
	for k, v := range c {
		other, ok := o[k]
		if !ok || !v.Equal(other) {
			return false
		}
	}
	return true
}

func (c Components) Serialize(s *codec.Serializer) {
	if c == nil {
		s.WriteNull()
		return
	}
	s.StartUintMap()
	for k, v := range c {
		s.WriteUintKeyValue(uint64(k), v)
	}
	s.EndUintMap()
}

func (c *Components) Deserialize(r *codec.Deserializer) error {
	if r.NextIsNull() {
		*c = nil
		return r.Skip()
	}

	n, err := r.StartReadUintMap()
	if err != nil {
		return err
	}

	out := make(Components, n)
	for i := 0; i < n; i++ {
		key, err := r.ReadUintKey()
		if err != nil {
			return err
		}
		if key > MaxComponentKey {
			return errors.Wrapf(protocol.ErrMalformedKey, "component key %d", key)
		}

		var data ItemComponentData
		if err = data.Deserialize(r); err != nil {
			return errors.Wrapf(err, "component %d", key)
		}
		out[uint16(key)] = data
	}

	if err = r.EndReadUintMap(); err != nil {
		return err
	}
	*c = out
	return nil
}

func optionalEqual(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
