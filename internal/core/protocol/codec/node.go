// Package codec converts structured values to and from the transport's
// dynamic value tree (Node) using an explicit stack-machine Serializer and
// Deserializer, and encodes that tree to bytes with CBOR.
package codec

import (
	"fmt"
	"sort"
	"strings"
)

// NodeKind discriminates the dynamic value tree.
type NodeKind uint8

const (
	NodeNull NodeKind = iota
	NodeBool
	NodeInt
	NodeUint
	NodeDouble
	NodeString
	NodeArray
	NodeUintMap
	NodeStringMap
)

var nodeKindNames = [...]string{
	NodeNull:      "null",
	NodeBool:      "bool",
	NodeInt:       "int",
	NodeUint:      "uint",
	NodeDouble:    "double",
	NodeString:    "string",
	NodeArray:     "array",
	NodeUintMap:   "uint_map",
	NodeStringMap: "string_map",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("node_kind(%d)", uint8(k))
}

// Node is one value of the dynamic tree exchanged with the hub. The zero
// Node is Null.
type Node struct {
	kind NodeKind
	b    bool
	i    int64
	u    uint64
	d    float64
	s    string
	arr  []Node
	um   map[uint64]Node
	sm   map[string]Node
}

func Null() Node               { return Node{} }
func Bool(v bool) Node         { return Node{kind: NodeBool, b: v} }
func Int(v int64) Node         { return Node{kind: NodeInt, i: v} }
func Uint(v uint64) Node       { return Node{kind: NodeUint, u: v} }
func Double(v float64) Node    { return Node{kind: NodeDouble, d: v} }
func String(v string) Node     { return Node{kind: NodeString, s: v} }
func Array(items ...Node) Node { return Node{kind: NodeArray, arr: append([]Node{}, items...)} }

func UintMap(m map[uint64]Node) Node {
	out := make(map[uint64]Node, len(m))
	for k, v := range m {
		out[k] = v
	}
	return Node{kind: NodeUintMap, um: out}
}

func StringMap(m map[string]Node) Node {
	out := make(map[string]Node, len(m))
	for k, v := range m {
		out[k] = v
	}
	return Node{kind: NodeStringMap, sm: out}
}

func (n Node) Kind() NodeKind { return n.kind }
func (n Node) IsNull() bool   { return n.kind == NodeNull }

func (n Node) AsBool() bool      { return n.b }
func (n Node) AsInt() int64      { return n.i }
func (n Node) AsUint() uint64    { return n.u }
func (n Node) AsDouble() float64 { return n.d }
func (n Node) AsString() string  { return n.s }

// ToUint64 reads an integer node of either signedness as uint64. The relay
// does not preserve signedness, so callers reading plain counters and ids
// out of loosely typed replies use this instead of AsUint.
func (n Node) ToUint64() (uint64, bool) {
	switch n.kind {
	case NodeUint:
		return n.u, true
	case NodeInt:
		if n.i < 0 {
			return 0, false
		}
		return uint64(n.i), true
	default:
		return 0, false
	}
}

// ToInt64 is the signed counterpart of ToUint64.
func (n Node) ToInt64() (int64, bool) {
	switch n.kind {
	case NodeInt:
		return n.i, true
	case NodeUint:
		if n.u > 1<<63-1 {
			return 0, false
		}
		return int64(n.u), true
	default:
		return 0, false
	}
}

// Items returns the elements of an array node, nil otherwise.
func (n Node) Items() []Node {
	if n.kind != NodeArray {
		return nil
	}
	return append([]Node(nil), n.arr...)
}

func (n Node) AsUintMap() map[uint64]Node {
	if n.kind != NodeUintMap {
		return nil
	}
	out := make(map[uint64]Node, len(n.um))
	for k, v := range n.um {
		out[k] = v
	}
	return out
}

func (n Node) AsStringMap() map[string]Node {
	if n.kind != NodeStringMap {
		return nil
	}
	out := make(map[string]Node, len(n.sm))
	for k, v := range n.sm {
		out[k] = v
	}
	return out
}

func (n Node) Len() int {
	switch n.kind {
	case NodeArray:
		return len(n.arr)
	case NodeUintMap:
		return len(n.um)
	case NodeStringMap:
		return len(n.sm)
	default:
		return 0
	}
}

// Serialize lets a Node be written wherever a Serializable is accepted.
func (n Node) Serialize(s *Serializer) { s.WriteNode(n) }

func (n Node) Equal(o Node) bool {
	if n.kind != o.kind {
		return false
	}

	switch n.kind {
	case NodeNull:
		return true
	case NodeBool:
		return n.b == o.b
	case NodeInt:
		return n.i == o.i
	case NodeUint:
		return n.u == o.u
	case NodeDouble:
		return n.d == o.d
	case NodeString:
		return n.s == o.s
	case NodeArray:
		if len(n.arr) != len(o.arr) {
			return false
		}
		for i := range n.arr {
			if !n.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case NodeUintMap:
		if len(n.um) != len(o.um) {
			return false
		}
		for k, v := range n.um {
			other, ok := o.um[k]
			if !ok || !v.Equal(other) {
				return false
			}
		}
		return true
	case NodeStringMap:
		if len(n.sm) != len(o.sm) {
			return false
		}
		for k, v := range n.sm {
			other, ok := o.sm[k]
			if !ok || !v.Equal(other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (n Node) String() string {
	switch n.kind {
	case NodeNull:
		return "null"
	case NodeBool:
		return fmt.Sprintf("%t", n.b)
	case NodeInt:
		return fmt.Sprintf("%di", n.i)
	case NodeUint:
		return fmt.Sprintf("%du", n.u)
	case NodeDouble:
		return fmt.Sprintf("%g", n.d)
	case NodeString:
		return fmt.Sprintf("%q", n.s)
	case NodeArray:
		parts := make([]string, len(n.arr))
		for i, item := range n.arr {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case NodeUintMap:
		keys := sortedUintKeys(n.um)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%d: %s", k, n.um[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case NodeStringMap:
		keys := sortedStringKeys(n.sm)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q: %s", k, n.sm[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "?"
	}
}

func sortedUintKeys(m map[uint64]Node) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedStringKeys(m map[string]Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
