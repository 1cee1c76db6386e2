package hub

import (
	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/codec"
)

type envelopeKind uint64

const (
	kindInvocation envelopeKind = iota + 1
	kindCompletion
	kindSend
	kindPush
)

// envelope frames every websocket message as
// [kind, invocationId, method, args]. A completion carries the error text
// (or null) in the method slot and the reply in the args slot.
type envelope struct {
	Kind   envelopeKind
	ID     string
	Method string
	Error  string
	Args   codec.Node
}

func (e envelope) Serialize(s *codec.Serializer) {
	s.StartArray()
	s.WriteUint64(uint64(e.Kind))
	s.WriteString(e.ID)
	if e.Kind == kindCompletion {
		if e.Error == "" {
			s.WriteNull()
		} else {
			s.WriteString(e.Error)
		}
	} else {
		s.WriteString(e.Method)
	}
	s.WriteNode(e.Args)
	s.EndArray()
}

func (e *envelope) Deserialize(r *codec.Deserializer) error {
	n, err := r.StartReadArray()
	if err != nil {
		return err
	}
	if n < 4 {
		return errors.Wrapf(protocol.ErrMalformedMessage, "envelope has %d fields", n)
	}

	kind, err := r.ReadNode()
	if err != nil {
		return err
	}
	k, ok := kind.ToUint64()
	if !ok {
		return errors.Wrapf(protocol.ErrMalformedMessage, "envelope kind is %s", kind.Kind())
	}
	e.Kind = envelopeKind(k)

	if e.ID, err = r.ReadString(); err != nil {
		return err
	}

	if r.NextIsNull() {
		if err = r.Skip(); err != nil {
			return err
		}
	} else {
		text, err := r.ReadString()
		if err != nil {
			return err
		}
		if e.Kind == kindCompletion {
			e.Error = text
		} else {
			e.Method = text
		}
	}

	if e.Args, err = r.ReadNode(); err != nil {
		return err
	}
	for n -= 4; n > 0; n-- {
		if err = r.Skip(); err != nil {
			return err
		}
	}
	return r.EndReadArray()
}
