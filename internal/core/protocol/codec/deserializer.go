package codec

import (
	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/protocol"
)

// Deserializable types read themselves back through the Deserializer
// primitives in the order they were written.
type Deserializable interface {
	Deserialize(d *Deserializer) error
}

type readFrame struct {
	kind       frameKind
	items      []Node
	uintKeys   []uint64
	uintMap    map[uint64]Node
	stringKeys []string
	stringMap  map[string]Node
	index      int
	keyPending bool
}

func (f *readFrame) size() int {
	switch f.kind {
	case frameUintMap:
		return len(f.uintKeys)
	case frameStringMap:
		return len(f.stringKeys)
	default:
		return len(f.items)
	}
}

// Deserializer walks a Node tree through a stack of open containers. Map
// entries are visited in ascending key order: read the key with ReadUintKey
// or ReadStringKey, then read its value with any value primitive.
//
// Reads against the wrong frame kind return *UsageError; reads of the wrong
// scalar kind return an error wrapping protocol.ErrTypeMismatch.
type Deserializer struct {
	root         Node
	rootConsumed bool
	stack        []readFrame
}

func NewDeserializer(root Node) *Deserializer {
	return &Deserializer{root: root, stack: make([]readFrame, 0, 8)}
}

// Decode reads v from n.
func Decode(n Node, v Deserializable) error {
	return v.Deserialize(NewDeserializer(n))
}

// Depth is the number of open frames.
func (d *Deserializer) Depth() int { return len(d.stack) }

// Remaining is the number of unread elements in the innermost container.
func (d *Deserializer) Remaining() int {
	if len(d.stack) == 0 {
		if d.rootConsumed {
			return 0
		}
		return 1
	}
	top := &d.stack[len(d.stack)-1]
	return top.size() - top.index
}

func (d *Deserializer) StartReadArray() (int, error) {
	n, err := d.next("StartReadArray")
	if err != nil {
		return 0, err
	}
	if n.kind != NodeArray {
		return 0, mismatch("StartReadArray", NodeArray, n.kind)
	}
	d.stack = append(d.stack, readFrame{kind: frameArray, items: n.arr})
	return len(n.arr), nil
}

func (d *Deserializer) EndReadArray() error {
	return d.pop("EndReadArray", frameArray)
}

// StartReadUintMap opens a uint-keyed map. An empty string map is accepted
// too: an empty map carries no key type on the wire.
func (d *Deserializer) StartReadUintMap() (int, error) {
	n, err := d.next("StartReadUintMap")
	if err != nil {
		return 0, err
	}

	switch {
	case n.kind == NodeUintMap:
		d.stack = append(d.stack, readFrame{kind: frameUintMap, uintKeys: sortedUintKeys(n.um), uintMap: n.um})
		return len(n.um), nil
	case n.kind == NodeStringMap && len(n.sm) == 0:
		d.stack = append(d.stack, readFrame{kind: frameUintMap})
		return 0, nil
	default:
		return 0, mismatch("StartReadUintMap", NodeUintMap, n.kind)
	}
}

func (d *Deserializer) EndReadUintMap() error {
	return d.pop("EndReadUintMap", frameUintMap)
}

// StartReadStringMap opens a string-keyed map. An empty uint map is
// accepted too.
func (d *Deserializer) StartReadStringMap() (int, error) {
	n, err := d.next("StartReadStringMap")
	if err != nil {
		return 0, err
	}

	switch {
	case n.kind == NodeStringMap:
		d.stack = append(d.stack, readFrame{kind: frameStringMap, stringKeys: sortedStringKeys(n.sm), stringMap: n.sm})
		return len(n.sm), nil
	case n.kind == NodeUintMap && len(n.um) == 0:
		d.stack = append(d.stack, readFrame{kind: frameStringMap})
		return 0, nil
	default:
		return 0, mismatch("StartReadStringMap", NodeStringMap, n.kind)
	}
}

func (d *Deserializer) EndReadStringMap() error {
	return d.pop("EndReadStringMap", frameStringMap)
}

// ReadUintKey positions on the next entry of the open uint map and returns
// its key. The following value read consumes the entry's value.
func (d *Deserializer) ReadUintKey() (uint64, error) {
	top, err := d.mapTop("ReadUintKey", frameUintMap)
	if err != nil {
		return 0, err
	}
	top.keyPending = true
	return top.uintKeys[top.index], nil
}

// ReadStringKey positions on the next entry of the open string map.
func (d *Deserializer) ReadStringKey() (string, error) {
	top, err := d.mapTop("ReadStringKey", frameStringMap)
	if err != nil {
		return "", err
	}
	top.keyPending = true
	return top.stringKeys[top.index], nil
}

func (d *Deserializer) ReadBool() (bool, error) {
	n, err := d.nextOf("ReadBool", NodeBool)
	return n.b, err
}

func (d *Deserializer) ReadInt64() (int64, error) {
	n, err := d.nextOf("ReadInt64", NodeInt)
	return n.i, err
}

func (d *Deserializer) ReadUint64() (uint64, error) {
	n, err := d.nextOf("ReadUint64", NodeUint)
	return n.u, err
}

func (d *Deserializer) ReadFloat64() (float64, error) {
	n, err := d.nextOf("ReadFloat64", NodeDouble)
	return n.d, err
}

func (d *Deserializer) ReadFloat32() (float32, error) {
	n, err := d.nextOf("ReadFloat32", NodeDouble)
	return float32(n.d), err
}

func (d *Deserializer) ReadString() (string, error) {
	n, err := d.nextOf("ReadString", NodeString)
	return n.s, err
}

// ReadNode consumes the next value without interpreting it.
func (d *Deserializer) ReadNode() (Node, error) {
	return d.next("ReadNode")
}

// ReadOptionalUint64 reads a uint64 or null. A signed value is accepted and
// converted, since the remote side does not guarantee signedness.
func (d *Deserializer) ReadOptionalUint64() (*uint64, error) {
	n, err := d.next("ReadOptionalUint64")
	if err != nil {
		return nil, err
	}

	var v uint64
	switch n.kind {
	case NodeNull:
		return nil, nil
	case NodeUint:
		v = n.u
	case NodeInt:
		if n.i < 0 {
			return nil, mismatch("ReadOptionalUint64", NodeUint, n.kind)
		}
		v = uint64(n.i)
	default:
		return nil, mismatch("ReadOptionalUint64", NodeUint, n.kind)
	}
	return &v, nil
}

// ReadValue reads v at the current position.
func (d *Deserializer) ReadValue(v Deserializable) error {
	return v.Deserialize(d)
}

func (d *Deserializer) NextIsInt() bool   { return d.nextIs(NodeInt) }
func (d *Deserializer) NextIsUint() bool  { return d.nextIs(NodeUint) }
func (d *Deserializer) NextIsNull() bool  { return d.nextIs(NodeNull) }
func (d *Deserializer) NextIsArray() bool { return d.nextIs(NodeArray) }

// Skip consumes one value of any kind.
func (d *Deserializer) Skip() error {
	_, err := d.next("Skip")
	return err
}

func (d *Deserializer) nextIs(kind NodeKind) bool {
	n, err := d.peek("lookahead")
	return err == nil && n.kind == kind
}

func (d *Deserializer) nextOf(op string, kind NodeKind) (Node, error) {
	n, err := d.next(op)
	if err != nil {
		return Node{}, err
	}
	if n.kind != kind {
		return Node{}, mismatch(op, kind, n.kind)
	}
	return n, nil
}

func (d *Deserializer) peek(op string) (Node, error) {
	if len(d.stack) == 0 {
		if d.rootConsumed {
			return Node{}, errors.Wrapf(protocol.ErrEndOfContainer, "codec: %s: root already consumed", op)
		}
		return d.root, nil
	}

	top := &d.stack[len(d.stack)-1]
	switch top.kind {
	case frameArray:
		if top.index >= len(top.items) {
			return Node{}, errors.Wrapf(protocol.ErrEndOfContainer, "codec: %s: array of %d exhausted", op, len(top.items))
		}
		return top.items[top.index], nil
	case frameUintMap:
		if !top.keyPending {
			return Node{}, usage(op, "uint map value read without ReadUintKey")
		}
		return top.uintMap[top.uintKeys[top.index]], nil
	case frameStringMap:
		if !top.keyPending {
			return Node{}, usage(op, "string map value read without ReadStringKey")
		}
		return top.stringMap[top.stringKeys[top.index]], nil
	default:
		return Node{}, usage(op, "unexpected frame %s", top.kind)
	}
}

func (d *Deserializer) next(op string) (Node, error) {
	n, err := d.peek(op)
	if err != nil {
		return Node{}, err
	}

	if len(d.stack) == 0 {
		d.rootConsumed = true
		return n, nil
	}

	top := &d.stack[len(d.stack)-1]
	top.index++
	top.keyPending = false
	return n, nil
}

func (d *Deserializer) mapTop(op string, want frameKind) (*readFrame, error) {
	if len(d.stack) == 0 {
		return nil, usage(op, "expected open %s, stack is empty", want)
	}
	top := &d.stack[len(d.stack)-1]
	if top.kind != want {
		return nil, usage(op, "expected open %s, top is %s", want, top.kind)
	}
	if top.keyPending {
		return nil, usage(op, "value of the previous key was not read")
	}
	if top.index >= top.size() {
		return nil, errors.Wrapf(protocol.ErrEndOfContainer, "codec: %s: map of %d exhausted", op, top.size())
	}
	return top, nil
}

func (d *Deserializer) pop(op string, want frameKind) error {
	if len(d.stack) == 0 {
		return usage(op, "expected open %s, stack is empty", want)
	}
	top := d.stack[len(d.stack)-1]
	if top.kind != want {
		return usage(op, "expected open %s, top is %s", want, top.kind)
	}
	if top.keyPending {
		return usage(op, "map closed with a key whose value was not read")
	}
	d.stack = d.stack[:len(d.stack)-1]
	return nil
}
