package mcs

import "github.com/zeusync/replica/internal/core/protocol/codec"

// MessageBatch is an array of object messages, the payload of
// SendObjectMessage and PageScopedObjects results.
type MessageBatch []ObjectMessage

func (b MessageBatch) Serialize(s *codec.Serializer) {
	s.StartArray()
	for _, m := range b {
		m.Serialize(s)
	}
	s.EndArray()
}

func (b *MessageBatch) Deserialize(r *codec.Deserializer) error {
	n, err := r.StartReadArray()
	if err != nil {
		return err
	}
	out := make(MessageBatch, n)
	for i := range out {
		if err = out[i].Deserialize(r); err != nil {
			return err
		}
	}
	if err = r.EndReadArray(); err != nil {
		return err
	}
	*b = out
	return nil
}

// PatchBatch is an array of object patches, the payload of
// SendObjectPatches.
type PatchBatch []ObjectPatch

func (b PatchBatch) Serialize(s *codec.Serializer) {
	s.StartArray()
	for _, p := range b {
		p.Serialize(s)
	}
	s.EndArray()
}

func (b *PatchBatch) Deserialize(r *codec.Deserializer) error {
	n, err := r.StartReadArray()
	if err != nil {
		return err
	}
	out := make(PatchBatch, n)
	for i := range out {
		if err = out[i].Deserialize(r); err != nil {
			return err
		}
	}
	if err = r.EndReadArray(); err != nil {
		return err
	}
	*b = out
	return nil
}
