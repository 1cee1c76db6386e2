package entity

import (
	"sort"
	"sync"

	"github.com/zeusync/replica/internal/core/value"
)

// ComponentType identifies the behaviour attached to a component. It is
// replicated under ComponentTypeKey.
type ComponentType uint64

const (
	ComponentTypeInvalid ComponentType = 0
	ComponentTypeCore    ComponentType = 1
	ComponentTypeCustom  ComponentType = 2

	// ComponentTypeDelete marks a patch entry that removes the component.
	ComponentTypeDelete ComponentType = 0xFFFF
)

// Component is a keyed bag of replicated properties attached to an entity.
// Property writes apply immediately and stage an update on the owning
// entity; the update is replicated on the next patch.
type Component struct {
	key   uint16
	typ   ComponentType
	owner *Entity

	mu    sync.RWMutex
	props map[uint16]value.Replicated
}

func newComponent(owner *Entity, key uint16, typ ComponentType) *Component {
	return &Component{
		key:   key,
		typ:   typ,
		owner: owner,
		props: make(map[uint16]value.Replicated),
	}
}

func (c *Component) Key() uint16         { return c.key }
func (c *Component) Type() ComponentType { return c.typ }

func (c *Component) Property(key uint16) (value.Replicated, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.props[key]
	return v, ok
}

// Properties returns a copy of all properties.
func (c *Component) Properties() map[uint16]value.Replicated {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uint16]value.Replicated, len(c.props))
	for k, v := range c.props {
		out[k] = v
	}
	return out
}

// PropertyKeys returns the property keys in ascending order.
func (c *Component) PropertyKeys() []uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]uint16, 0, len(c.props))
	for k := range c.props {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// SetProperty stores v and stages the component for replication. Returns
// false if the value was unchanged.
func (c *Component) SetProperty(key uint16, v value.Replicated) bool {
	c.mu.Lock()
	if old, ok := c.props[key]; ok && old.Equal(v) {
		c.mu.Unlock()
		return false
	}
	c.props[key] = v
	c.mu.Unlock()

	if c.owner != nil {
		c.owner.patcher.markComponentUpdated(c)
	}
	return true
}

// RemoveProperty deletes a property and stages the component for
// replication.
func (c *Component) RemoveProperty(key uint16) bool {
	c.mu.Lock()
	if _, ok := c.props[key]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.props, key)
	c.mu.Unlock()

	if c.owner != nil {
		c.owner.patcher.markComponentUpdated(c)
	}
	return true
}

// setPropertyFromPatch stores a remote value without staging anything.
func (c *Component) setPropertyFromPatch(key uint16, v value.Replicated) {
	c.mu.Lock()
	c.props[key] = v
	c.mu.Unlock()
}
