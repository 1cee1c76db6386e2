package mcs

import (
	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
)

const objectMessageFields = 7

// ObjectMessage is a full entity snapshot. Wire shape:
// [id, type, isTransferable, isPersistent, ownerId, parentId|null, components|null].
type ObjectMessage struct {
	ID             uint64
	Type           uint64
	IsTransferable bool
	IsPersistent   bool
	OwnerID        uint64
	ParentID       *uint64
	Components     Components
}

func (m ObjectMessage) Equal(o ObjectMessage) bool {
	return m.ID == o.ID &&
		m.Type == o.Type &&
		m.IsTransferable == o.IsTransferable &&
		m.IsPersistent == o.IsPersistent &&
		m.OwnerID == o.OwnerID &&
		optionalEqual(m.ParentID, o.ParentID) &&
		m.Components.Equal(o.Components)
}

func (m ObjectMessage) Serialize(s *codec.Serializer) {
	s.StartArray()
	s.WriteUint64(m.ID)
	s.WriteUint64(m.Type)
	s.WriteBool(m.IsTransferable)
	s.WriteBool(m.IsPersistent)
	s.WriteUint64(m.OwnerID)
	s.WriteOptionalUint64(m.ParentID)
	s.WriteValue(m.Components)
	s.EndArray()
}

func (m *ObjectMessage) Deserialize(r *codec.Deserializer) error {
	n, err := r.StartReadArray()
	if err != nil {
		return err
	}
	if n < objectMessageFields {
		return errors.Wrapf(protocol.ErrMalformedMessage, "object message has %d fields, want %d", n, objectMessageFields)
	}

	var out ObjectMessage
	if out.ID, err = readUnsigned(r); err != nil {
		return errors.Wrap(err, "object message: id")
	}
	if out.Type, err = readUnsigned(r); err != nil {
		return errors.Wrap(err, "object message: type")
	}
	if out.IsTransferable, err = r.ReadBool(); err != nil {
		return errors.Wrap(err, "object message: isTransferable")
	}
	if out.IsPersistent, err = r.ReadBool(); err != nil {
		return errors.Wrap(err, "object message: isPersistent")
	}
	if out.OwnerID, err = readUnsigned(r); err != nil {
		return errors.Wrap(err, "object message: ownerId")
	}
	if out.ParentID, err = r.ReadOptionalUint64(); err != nil {
		return errors.Wrap(err, "object message: parentId")
	}
	if err = out.Components.Deserialize(r); err != nil {
		return errors.Wrapf(err, "object message %d", out.ID)
	}

	// Trailing fields from newer relays are ignored.
	for r.Remaining() > 0 {
		if err = r.Skip(); err != nil {
			return err
		}
	}
	if err = r.EndReadArray(); err != nil {
		return err
	}

	*m = out
	return nil
}
