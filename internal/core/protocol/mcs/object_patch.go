package mcs

import (
	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
)

const objectPatchFields = 5

// ObjectPatch is a delta for one entity. Wire shape:
// [id, ownerId, destroy, [shouldUpdateParent, parentId|null]|null, components|null].
// The parent sub-array is only present when ShouldUpdateParent is set.
type ObjectPatch struct {
	ID                 uint64
	OwnerID            uint64
	Destroy            bool
	ShouldUpdateParent bool
	ParentID           *uint64
	Components         Components
}

func (p ObjectPatch) Equal(o ObjectPatch) bool {
	return p.ID == o.ID &&
		p.OwnerID == o.OwnerID &&
		p.Destroy == o.Destroy &&
		p.ShouldUpdateParent == o.ShouldUpdateParent &&
		optionalEqual(p.ParentID, o.ParentID) &&
		p.Components.Equal(o.Components)
}

func (p ObjectPatch) Serialize(s *codec.Serializer) {
	s.StartArray()
	s.WriteUint64(p.ID)
	s.WriteUint64(p.OwnerID)
	s.WriteBool(p.Destroy)
	if p.ShouldUpdateParent {
		s.StartArray()
		s.WriteBool(true)
		s.WriteOptionalUint64(p.ParentID)
		s.EndArray()
	} else {
		s.WriteNull()
	}
	s.WriteValue(p.Components)
	s.EndArray()
}

func (p *ObjectPatch) Deserialize(r *codec.Deserializer) error {
	n, err := r.StartReadArray()
	if err != nil {
		return err
	}
	if n < objectPatchFields {
		return errors.Wrapf(protocol.ErrMalformedPatch, "object patch has %d fields, want %d", n, objectPatchFields)
	}

	var out ObjectPatch
	if out.ID, err = readUnsigned(r); err != nil {
		return errors.Wrap(err, "object patch: id")
	}
	if out.OwnerID, err = readUnsigned(r); err != nil {
		return errors.Wrap(err, "object patch: ownerId")
	}
	if out.Destroy, err = r.ReadBool(); err != nil {
		return errors.Wrap(err, "object patch: destroy")
	}

	if r.NextIsNull() {
		if err = r.Skip(); err != nil {
			return err
		}
	} else {
		if _, err = r.StartReadArray(); err != nil {
			return errors.Wrap(err, "object patch: parent")
		}
		if out.ShouldUpdateParent, err = r.ReadBool(); err != nil {
			return errors.Wrap(err, "object patch: shouldUpdateParent")
		}
		if out.ParentID, err = r.ReadOptionalUint64(); err != nil {
			return errors.Wrap(err, "object patch: parentId")
		}
		if err = r.EndReadArray(); err != nil {
			return err
		}
	}

	if err = out.Components.Deserialize(r); err != nil {
		return errors.Wrapf(err, "object patch %d", out.ID)
	}

	for r.Remaining() > 0 {
		if err = r.Skip(); err != nil {
			return err
		}
	}
	if err = r.EndReadArray(); err != nil {
		return err
	}

	*p = out
	return nil
}
