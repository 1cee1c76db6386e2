package entity

import (
	"slices"
	"sync"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol/mcs"
	"github.com/zeusync/replica/internal/core/value"
)

// DirtyComponent is one staged component operation.
type DirtyComponent struct {
	Component  *Component
	UpdateType ComponentUpdateType
}

type parentChange struct {
	id *uint64
}

// StatePatcher owns the dirty state of one entity: staged view property
// writes, staged component operations, pending component deletions and a
// pending parent change. Local state reaches the entity only through
// ApplyLocalPatch; remote state only through ApplyPatchFromObjectPatch.
//
// Lock order is propertiesMu before componentsMu. Neither is held while a
// callback runs.
type StatePatcher struct {
	entity *Entity
	logger log.Log

	propertiesMu    sync.Mutex
	properties      map[uint16]Property
	dirtyProperties map[uint16]value.Replicated
	pendingParent   *parentChange

	componentsMu     sync.Mutex
	dirtyComponents  map[uint16]DirtyComponent
	pendingDeletions []uint16

	callbackMu sync.RWMutex
	patchSent  func(ok bool)
}

func newStatePatcher(e *Entity, logger log.Log) *StatePatcher {
	return &StatePatcher{
		entity:          e,
		logger:          logger,
		properties:      make(map[uint16]Property),
		dirtyProperties: make(map[uint16]value.Replicated),
		dirtyComponents: make(map[uint16]DirtyComponent),
	}
}

// RegisterProperties adds or replaces property bindings.
func (p *StatePatcher) RegisterProperties(props ...Property) {
	p.propertiesMu.Lock()
	defer p.propertiesMu.Unlock()
	for _, prop := range props {
		p.properties[prop.Key] = prop
	}
}

func (p *StatePatcher) property(key uint16) (Property, bool) {
	p.propertiesMu.Lock()
	defer p.propertiesMu.Unlock()
	prop, ok := p.properties[key]
	return prop, ok
}

// SetDirtyProperty stages v for key. A value equal to the current one is
// dropped, along with any earlier staged write for the key.
func (p *StatePatcher) SetDirtyProperty(key uint16, v value.Replicated) bool {
	p.propertiesMu.Lock()
	defer p.propertiesMu.Unlock()

	prop, ok := p.properties[key]
	if !ok {
		p.logger.Warn("no registered property for key", log.ComponentKey(key))
		return false
	}

	delete(p.dirtyProperties, key)
	if prop.Get().Equal(v) {
		p.logger.Debug("property already holds value, not staged", log.ComponentKey(key))
		return false
	}

	p.dirtyProperties[key] = v
	return true
}

// SetDirtyComponent stages one component operation. Only one operation per
// key may be staged between applies.
func (p *StatePatcher) SetDirtyComponent(key uint16, dirty DirtyComponent) bool {
	p.componentsMu.Lock()
	defer p.componentsMu.Unlock()

	if _, exists := p.dirtyComponents[key]; exists {
		p.logger.Warn("component operation already staged", log.ComponentKey(key), log.String("update_type", dirty.UpdateType.String()))
		return false
	}

	p.dirtyComponents[key] = dirty
	return true
}

// markComponentUpdated stages an Update unless some operation is already
// staged for the component.
func (p *StatePatcher) markComponentUpdated(c *Component) {
	p.componentsMu.Lock()
	defer p.componentsMu.Unlock()

	if _, exists := p.dirtyComponents[c.Key()]; exists {
		return
	}
	p.dirtyComponents[c.Key()] = DirtyComponent{Component: c, UpdateType: ComponentUpdate}
}

// RemoveDirtyComponent drops any staged operation for key and stages its
// deletion. It is a no-op if the deletion is already pending and the
// component is no longer present.
func (p *StatePatcher) RemoveDirtyComponent(key uint16, current map[uint16]*Component) bool {
	p.componentsMu.Lock()
	defer p.componentsMu.Unlock()

	pending := slices.Contains(p.pendingDeletions, key)
	if _, present := current[key]; pending && !present {
		return false
	}

	delete(p.dirtyComponents, key)
	if !pending {
		p.pendingDeletions = append(p.pendingDeletions, key)
	}
	return true
}

// SetParent stages a parent change; nil clears the parent.
func (p *StatePatcher) SetParent(parentID *uint64) {
	p.propertiesMu.Lock()
	defer p.propertiesMu.Unlock()
	p.pendingParent = &parentChange{id: copyID(parentID)}
}

// IsPropertyDirty reports whether a write is staged for key.
func (p *StatePatcher) IsPropertyDirty(key uint16) bool {
	p.propertiesMu.Lock()
	defer p.propertiesMu.Unlock()
	_, ok := p.dirtyProperties[key]
	return ok
}

func (p *StatePatcher) HasPendingPatch() bool {
	p.propertiesMu.Lock()
	defer p.propertiesMu.Unlock()
	p.componentsMu.Lock()
	defer p.componentsMu.Unlock()

	return len(p.dirtyProperties) > 0 ||
		p.pendingParent != nil ||
		len(p.dirtyComponents) > 0 ||
		len(p.pendingDeletions) > 0
}

// DirtyComponents returns a copy of the staged component operations.
func (p *StatePatcher) DirtyComponents() map[uint16]DirtyComponent {
	p.componentsMu.Lock()
	defer p.componentsMu.Unlock()
	out := make(map[uint16]DirtyComponent, len(p.dirtyComponents))
	for k, v := range p.dirtyComponents {
		out[k] = v
	}
	return out
}

// FirstPendingComponentOfType returns the staged Add with the lowest key
// whose component has type typ.
func (p *StatePatcher) FirstPendingComponentOfType(typ ComponentType) (*Component, bool) {
	p.componentsMu.Lock()
	defer p.componentsMu.Unlock()

	for _, key := range sortedKeys(p.dirtyComponents) {
		dirty := p.dirtyComponents[key]
		if dirty.UpdateType == ComponentAdd && dirty.Component.Type() == typ {
			return dirty.Component, true
		}
	}
	return nil, false
}

// ApplyLocalPatch moves all staged state onto the entity and drains it.
// It returns the changed aspects and one record per component touched, in
// key order for staged operations followed by pending deletions.
func (p *StatePatcher) ApplyLocalPatch() (UpdateFlags, []ComponentUpdateInfo) {
	p.propertiesMu.Lock()
	defer p.propertiesMu.Unlock()
	p.componentsMu.Lock()
	defer p.componentsMu.Unlock()
	return p.applyLocalPatchLocked()
}

// TakeObjectPatch packs the staged state and applies it in one hold of both
// locks, so a write staged concurrently lands either in this patch or in
// the next one.
func (p *StatePatcher) TakeObjectPatch() (mcs.ObjectPatch, UpdateFlags, []ComponentUpdateInfo) {
	p.propertiesMu.Lock()
	defer p.propertiesMu.Unlock()
	p.componentsMu.Lock()
	defer p.componentsMu.Unlock()

	patch := p.createObjectPatchLocked()
	flags, updates := p.applyLocalPatchLocked()
	return patch, flags, updates
}

func (p *StatePatcher) applyLocalPatchLocked() (UpdateFlags, []ComponentUpdateInfo) {
	var (
		flags   UpdateFlags
		updates []ComponentUpdateInfo
	)

	for _, key := range sortedKeys(p.dirtyProperties) {
		prop := p.properties[key]
		prop.Set(p.dirtyProperties[key])
		flags |= prop.UpdateFlag
	}

	for _, key := range sortedKeys(p.dirtyComponents) {
		dirty := p.dirtyComponents[key]
		switch dirty.UpdateType {
		case ComponentAdd:
			p.entity.attachComponent(dirty.Component)
		case ComponentDelete:
			p.entity.detachComponent(key)
		}
		flags |= UpdateComponents
		updates = append(updates, ComponentUpdateInfo{ComponentID: key, UpdateType: dirty.UpdateType})
	}

	if p.pendingParent != nil {
		p.entity.setParentDirect(p.pendingParent.id)
		flags |= UpdateParent
	}

	for _, key := range p.pendingDeletions {
		if _, covered := p.dirtyComponents[key]; covered {
			continue
		}
		if p.entity.detachComponent(key) {
			flags |= UpdateComponents
			updates = append(updates, ComponentUpdateInfo{ComponentID: key, UpdateType: ComponentDelete})
		}
	}

	clear(p.dirtyProperties)
	clear(p.dirtyComponents)
	p.pendingDeletions = p.pendingDeletions[:0]
	p.pendingParent = nil

	return flags, updates
}

// CreateObjectMessage snapshots the entity: every registered view property
// plus the live components overlaid with staged adds and updates.
func (p *StatePatcher) CreateObjectMessage() mcs.ObjectMessage {
	p.propertiesMu.Lock()
	defer p.propertiesMu.Unlock()
	p.componentsMu.Lock()
	defer p.componentsMu.Unlock()

	packer := newComponentPacker()

	for _, key := range sortedKeys(p.properties) {
		if err := packer.writeValue(key, p.properties[key].Get()); err != nil {
			p.logger.Error("failed to pack view property", log.ComponentKey(key), log.Error(err))
		}
	}

	components := p.entity.Components()
	for key, dirty := range p.dirtyComponents {
		switch dirty.UpdateType {
		case ComponentDelete:
			delete(components, key)
		default:
			components[key] = dirty.Component
		}
	}
	for _, key := range sortedKeys(components) {
		if err := packer.writeComponent(components[key]); err != nil {
			p.logger.Error("failed to pack component", log.ComponentKey(key), log.Error(err))
		}
	}

	e := p.entity
	return mcs.ObjectMessage{
		ID:             e.ID(),
		Type:           uint64(e.Type()),
		IsTransferable: e.IsTransferable(),
		IsPersistent:   e.IsPersistent(),
		OwnerID:        e.OwnerID(),
		ParentID:       e.ParentID(),
		Components:     packer.components,
	}
}

// CreateObjectPatch packs the staged state without applying it: dirty view
// properties, staged component operations, pending deletions as delete
// components, and the pending parent change.
func (p *StatePatcher) CreateObjectPatch() mcs.ObjectPatch {
	p.propertiesMu.Lock()
	defer p.propertiesMu.Unlock()
	p.componentsMu.Lock()
	defer p.componentsMu.Unlock()
	return p.createObjectPatchLocked()
}

func (p *StatePatcher) createObjectPatchLocked() mcs.ObjectPatch {
	packer := newComponentPacker()

	for _, key := range sortedKeys(p.dirtyProperties) {
		if err := packer.writeValue(key, p.dirtyProperties[key]); err != nil {
			p.logger.Error("failed to pack view property", log.ComponentKey(key), log.Error(err))
		}
	}

	for _, key := range sortedKeys(p.dirtyComponents) {
		dirty := p.dirtyComponents[key]
		if dirty.UpdateType == ComponentDelete {
			packer.writeDeletion(key)
			continue
		}
		if err := packer.writeComponent(dirty.Component); err != nil {
			p.logger.Error("failed to pack component", log.ComponentKey(key), log.Error(err))
		}
	}

	for _, key := range p.pendingDeletions {
		packer.writeDeletion(key)
	}

	patch := mcs.ObjectPatch{
		ID:         p.entity.ID(),
		OwnerID:    p.entity.OwnerID(),
		Components: packer.components,
	}
	if p.pendingParent != nil {
		patch.ShouldUpdateParent = true
		patch.ParentID = copyID(p.pendingParent.id)
	}
	return patch
}

// ApplyPatchFromObjectPatch applies a remote patch to the entity and fires
// the update callback once if anything changed. The parent is applied only
// when the patch says so: with no parent change the wire carries no parent
// id, and applying it would clear the parent.
func (p *StatePatcher) ApplyPatchFromObjectPatch(patch mcs.ObjectPatch) (UpdateFlags, []ComponentUpdateInfo) {
	var (
		flags   UpdateFlags
		updates []ComponentUpdateInfo
	)

	for _, key := range sortedKeys(patch.Components) {
		data := patch.Components[key]

		if !IsViewKey(key) {
			info, ok := p.entity.applyComponentPatch(key, data)
			if ok {
				flags |= UpdateComponents
				updates = append(updates, info)
			}
			continue
		}

		prop, ok := p.property(key)
		if !ok {
			p.logger.Error("patch carries unknown view property", log.EntityID(patch.ID), log.ComponentKey(key))
			continue
		}

		v, err := FromItemComponentData(data)
		if err != nil {
			p.logger.Error("failed to unpack view property", log.EntityID(patch.ID), log.ComponentKey(key), log.Error(err))
			continue
		}
		prop.Set(v)
		flags |= prop.UpdateFlag
	}

	p.entity.setOwnerDirect(patch.OwnerID)
	if patch.ShouldUpdateParent {
		p.entity.setParentDirect(patch.ParentID)
		flags |= UpdateParent
	}

	if flags != 0 {
		p.entity.fireUpdate(flags, updates)
	}
	return flags, updates
}

// SetPatchSentCallback registers the observer told whether the last
// outgoing patch was delivered.
func (p *StatePatcher) SetPatchSentCallback(cb func(ok bool)) {
	p.callbackMu.Lock()
	p.patchSent = cb
	p.callbackMu.Unlock()
}

// NotifyPatchSent reports the outcome of sending a patch.
func (p *StatePatcher) NotifyPatchSent(ok bool) {
	p.callbackMu.RLock()
	cb := p.patchSent
	p.callbackMu.RUnlock()
	if cb != nil {
		cb(ok)
	}
}

func copyID(id *uint64) *uint64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
