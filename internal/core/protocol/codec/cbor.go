package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/protocol"
)

// encMode uses Core Deterministic Encoding: sorted map keys and the
// smallest integer encoding, so equal trees produce equal bytes.
var encMode cbor.EncMode

// decMode decodes into generic Go values. Non-negative integers come back
// as uint64 whatever their declared signedness, mirroring the relay.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[any]any(nil)),
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes a Node tree to CBOR bytes.
func Marshal(n Node) ([]byte, error) {
	data, err := encMode.Marshal(toWire(n))
	if err != nil {
		return nil, errors.Wrap(protocol.ErrEncodingFailed, err.Error())
	}
	return data, nil
}

// Unmarshal decodes CBOR bytes into a Node tree.
func Unmarshal(data []byte) (Node, error) {
	var raw any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return Null(), errors.Wrap(protocol.ErrDecodingFailed, err.Error())
	}
	return fromWire(raw)
}

// MarshalValue serializes v and encodes the result in one step.
func MarshalValue(v Serializable) ([]byte, error) {
	n, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return Marshal(n)
}

// UnmarshalValue decodes data and deserializes it into v.
func UnmarshalValue(data []byte, v Deserializable) error {
	n, err := Unmarshal(data)
	if err != nil {
		return err
	}
	return Decode(n, v)
}

func toWire(n Node) any {
	switch n.kind {
	case NodeBool:
		return n.b
	case NodeInt:
		return n.i
	case NodeUint:
		return n.u
	case NodeDouble:
		return n.d
	case NodeString:
		return n.s
	case NodeArray:
		out := make([]any, len(n.arr))
		for i, item := range n.arr {
			out[i] = toWire(item)
		}
		return out
	case NodeUintMap:
		out := make(map[uint64]any, len(n.um))
		for k, v := range n.um {
			out[k] = toWire(v)
		}
		return out
	case NodeStringMap:
		out := make(map[string]any, len(n.sm))
		for k, v := range n.sm {
			out[k] = toWire(v)
		}
		return out
	default:
		return nil
	}
}

func fromWire(raw any) (Node, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case int64:
		return Int(v), nil
	case uint64:
		return Uint(v), nil
	case float64:
		return Double(v), nil
	case float32:
		return Double(float64(v)), nil
	case string:
		return String(v), nil
	case []any:
		items := make([]Node, len(v))
		for i, item := range v {
			n, err := fromWire(item)
			if err != nil {
				return Null(), err
			}
			items[i] = n
		}
		return Node{kind: NodeArray, arr: items}, nil
	case map[any]any:
		return mapFromWire(v)
	default:
		return Null(), errors.Wrapf(protocol.ErrDecodingFailed, "codec: unsupported CBOR value %T", raw)
	}
}

// mapFromWire requires homogeneous keys. Empty maps decode as uint maps;
// both map readers accept an empty map of either kind.
func mapFromWire(m map[any]any) (Node, error) {
	if len(m) == 0 {
		return Node{kind: NodeUintMap, um: map[uint64]Node{}}, nil
	}

	var (
		um map[uint64]Node
		sm map[string]Node
	)
	for k, raw := range m {
		value, err := fromWire(raw)
		if err != nil {
			return Null(), err
		}

		switch key := k.(type) {
		case uint64:
			if sm != nil {
				return Null(), errors.Wrap(protocol.ErrDecodingFailed, "codec: map mixes uint and string keys")
			}
			if um == nil {
				um = make(map[uint64]Node, len(m))
			}
			um[key] = value
		case string:
			if um != nil {
				return Null(), errors.Wrap(protocol.ErrDecodingFailed, "codec: map mixes uint and string keys")
			}
			if sm == nil {
				sm = make(map[string]Node, len(m))
			}
			sm[key] = value
		default:
			return Null(), errors.Wrapf(protocol.ErrDecodingFailed, "codec: unsupported map key %T", k)
		}
	}

	if um != nil {
		return Node{kind: NodeUintMap, um: um}, nil
	}
	return Node{kind: NodeStringMap, sm: sm}, nil
}
