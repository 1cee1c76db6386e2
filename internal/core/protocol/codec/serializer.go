package codec

import "github.com/zeusync/replica/pkg/generic"

// Serializable types write themselves through the Serializer primitives,
// typically as a fixed-order array of their fields.
type Serializable interface {
	Serialize(s *Serializer)
}

type frameKind uint8

const (
	frameArray frameKind = iota
	frameUintMap
	frameStringMap
	frameUintPair
	frameStringPair
)

var frameKindNames = [...]string{
	frameArray:      "array",
	frameUintMap:    "uint map",
	frameStringMap:  "string map",
	frameUintPair:   "uint key-value",
	frameStringPair: "string key-value",
}

func (k frameKind) String() string { return frameKindNames[k] }

type writeFrame struct {
	kind      frameKind
	items     []Node
	uintMap   map[uint64]Node
	stringMap map[string]Node
	value     Node
	hasValue  bool
}

// Serializer builds a Node tree through a LIFO stack of open containers.
// A scalar written with an empty stack becomes the root.
//
// Call-sequence violations panic with *UsageError. Encode recovers them into
// an error so a malformed message fails alone.
type Serializer struct {
	stack   []writeFrame
	root    Node
	hasRoot bool
}

func NewSerializer() *Serializer {
	return &Serializer{stack: make([]writeFrame, 0, 8)}
}

// Reset clears all state so the Serializer can be reused.
func (s *Serializer) Reset() {
	s.stack = s.stack[:0]
	s.root = Node{}
	s.hasRoot = false
}

// Depth is the number of open frames.
func (s *Serializer) Depth() int { return len(s.stack) }

func (s *Serializer) WriteNull()             { s.emit("WriteNull", Null()) }
func (s *Serializer) WriteBool(v bool)       { s.emit("WriteBool", Bool(v)) }
func (s *Serializer) WriteInt64(v int64)     { s.emit("WriteInt64", Int(v)) }
func (s *Serializer) WriteUint64(v uint64)   { s.emit("WriteUint64", Uint(v)) }
func (s *Serializer) WriteFloat32(v float32) { s.emit("WriteFloat32", Double(float64(v))) }
func (s *Serializer) WriteFloat64(v float64) { s.emit("WriteFloat64", Double(v)) }
func (s *Serializer) WriteString(v string)   { s.emit("WriteString", String(v)) }
func (s *Serializer) WriteNode(n Node)       { s.emit("WriteNode", n) }

// WriteOptionalUint64 writes *v, or null when v is nil.
func (s *Serializer) WriteOptionalUint64(v *uint64) {
	if v == nil {
		s.WriteNull()
		return
	}
	s.WriteUint64(*v)
}

// WriteValue runs v.Serialize against this Serializer.
func (s *Serializer) WriteValue(v Serializable) { v.Serialize(s) }

func (s *Serializer) StartArray() { s.push(frameArray) }

func (s *Serializer) EndArray() {
	f := s.pop("EndArray", frameArray)
	s.emit("EndArray", Node{kind: NodeArray, arr: f.items})
}

func (s *Serializer) StartUintMap() { s.push(frameUintMap) }

func (s *Serializer) EndUintMap() {
	f := s.pop("EndUintMap", frameUintMap)
	s.emit("EndUintMap", Node{kind: NodeUintMap, um: f.uintMap})
}

func (s *Serializer) StartStringMap() { s.push(frameStringMap) }

func (s *Serializer) EndStringMap() {
	f := s.pop("EndStringMap", frameStringMap)
	s.emit("EndStringMap", Node{kind: NodeStringMap, sm: f.stringMap})
}

// WriteUintKeyValue writes one entry of the uint map on top of the stack.
// v must write exactly one value.
func (s *Serializer) WriteUintKeyValue(key uint64, v Serializable) {
	s.expectTop("WriteUintKeyValue", frameUintMap)
	s.push(frameUintPair)
	v.Serialize(s)
	pair := s.pop("WriteUintKeyValue", frameUintPair)
	if !pair.hasValue {
		panic(usage("WriteUintKeyValue", "no value written for key %d", key))
	}
	s.stack[len(s.stack)-1].uintMap[key] = pair.value
}

// WriteStringKeyValue writes one entry of the string map on top of the
// stack. v must write exactly one value.
func (s *Serializer) WriteStringKeyValue(key string, v Serializable) {
	s.expectTop("WriteStringKeyValue", frameStringMap)
	s.push(frameStringPair)
	v.Serialize(s)
	pair := s.pop("WriteStringKeyValue", frameStringPair)
	if !pair.hasValue {
		panic(usage("WriteStringKeyValue", "no value written for key %q", key))
	}
	s.stack[len(s.stack)-1].stringMap[key] = pair.value
}

// Root returns the finished tree. It fails while any frame is still open and
// returns Null if nothing was written.
func (s *Serializer) Root() (Node, error) {
	if len(s.stack) > 0 {
		return Null(), usage("Root", "%d frame(s) still open, innermost %s", len(s.stack), s.stack[len(s.stack)-1].kind)
	}
	return s.root, nil
}

var serializers = generic.NewResetPool(NewSerializer, (*Serializer).Reset)

// Encode serializes v into a fresh tree using a pooled Serializer. Usage
// faults raised while v writes itself are returned as *UsageError.
func Encode(v Serializable) (Node, error) {
	s := serializers.Get()
	defer serializers.Put(s)
	return s.Encode(v)
}

// Encode resets s, serializes v and returns the root.
func (s *Serializer) Encode(v Serializable) (root Node, err error) {
	s.Reset()
	defer func() {
		if r := recover(); r != nil {
			ue, ok := r.(*UsageError)
			if !ok {
				panic(r)
			}
			root, err = Null(), ue
			s.Reset()
		}
	}()

	v.Serialize(s)
	return s.Root()
}

func (s *Serializer) push(kind frameKind) {
	f := writeFrame{kind: kind}
	switch kind {
	case frameUintMap:
		f.uintMap = make(map[uint64]Node)
	case frameStringMap:
		f.stringMap = make(map[string]Node)
	}
	s.stack = append(s.stack, f)
}

func (s *Serializer) pop(op string, want frameKind) writeFrame {
	s.expectTop(op, want)
	f := s.stack[len(s.stack)-1]
	s.stack[len(s.stack)-1] = writeFrame{}
	s.stack = s.stack[:len(s.stack)-1]
	return f
}

func (s *Serializer) expectTop(op string, want frameKind) {
	if len(s.stack) == 0 {
		panic(usage(op, "expected open %s, stack is empty", want))
	}
	if got := s.stack[len(s.stack)-1].kind; got != want {
		panic(usage(op, "expected open %s, top is %s", want, got))
	}
}

func (s *Serializer) emit(op string, n Node) {
	if len(s.stack) == 0 {
		if s.hasRoot {
			panic(usage(op, "root value already written"))
		}
		s.root, s.hasRoot = n, true
		return
	}

	top := &s.stack[len(s.stack)-1]
	switch top.kind {
	case frameArray:
		top.items = append(top.items, n)
	case frameUintPair, frameStringPair:
		if top.hasValue {
			panic(usage(op, "key-value already holds a value"))
		}
		top.value, top.hasValue = n, true
	default:
		panic(usage(op, "bare value written into %s, use a key-value write", top.kind))
	}
}
