// Package entity models replicated entities: view properties, components,
// and the StatePatcher that turns local mutations into object patches and
// applies remote ones.
package entity

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/mcs"
	"github.com/zeusync/replica/internal/core/value"
)

// UpdateCallback observes one coalesced application of a patch.
type UpdateCallback func(e *Entity, flags UpdateFlags, updates []ComponentUpdateInfo)

// Entity is a replicated scene object. Setters only stage changes; the
// authoritative fields change when a patch is applied.
type Entity struct {
	id     uint64
	typ    Type
	logger log.Log

	mu                 sync.RWMutex
	ownerID            uint64
	parentID           *uint64
	transferable       bool
	persistent         bool
	name               string
	position           value.Vector3
	rotation           value.Vector4
	scale              value.Vector3
	selectedClientID   uint64
	thirdPartyRef      string
	thirdPartyPlatform int64
	lockType           LockType
	components         map[uint16]*Component

	callbackMu sync.RWMutex
	onUpdate   UpdateCallback
	onDestroy  func(*Entity)

	patcher *StatePatcher
}

type Option func(*Entity)

func WithName(name string) Option { return func(e *Entity) { e.name = name } }

func WithParent(parentID uint64) Option {
	return func(e *Entity) { e.parentID = &parentID }
}

func WithTransform(position value.Vector3, rotation value.Vector4, scale value.Vector3) Option {
	return func(e *Entity) {
		e.position, e.rotation, e.scale = position, rotation, scale
	}
}

func Transferable(v bool) Option { return func(e *Entity) { e.transferable = v } }

func Persistent(v bool) Option { return func(e *Entity) { e.persistent = v } }

// New builds an entity with default transform (origin, identity rotation,
// unit scale) and registers its view properties with a fresh patcher.
func New(id uint64, typ Type, ownerID uint64, logger log.Log, opts ...Option) *Entity {
	if logger == nil {
		logger = log.Nop()
	}

	e := &Entity{
		id:           id,
		typ:          typ,
		logger:       logger.With(log.String("component", "entity"), log.EntityID(id)),
		ownerID:      ownerID,
		transferable: true,
		rotation:     value.QuaternionIdentity,
		scale:        value.Vector3One,
		components:   make(map[uint16]*Component),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.patcher = newStatePatcher(e, e.logger)
	e.patcher.RegisterProperties(e.viewProperties()...)
	return e
}

// NewFromObjectMessage builds an entity from a full snapshot. User keys
// become components; view keys are applied to the registered properties.
// Entries that cannot be decoded are logged and skipped.
func NewFromObjectMessage(msg mcs.ObjectMessage, logger log.Log) *Entity {
	opts := []Option{Transferable(msg.IsTransferable), Persistent(msg.IsPersistent)}
	if msg.ParentID != nil {
		opts = append(opts, WithParent(*msg.ParentID))
	}
	e := New(msg.ID, Type(msg.Type), msg.OwnerID, logger, opts...)

	for _, key := range sortedKeys(msg.Components) {
		data := msg.Components[key]

		if !IsViewKey(key) {
			typ, props, err := UnpackComponent(data)
			if err != nil {
				e.logger.Error("failed to unpack component", log.ComponentKey(key), log.Error(err))
				continue
			}
			c := newComponent(e, key, typ)
			for k, v := range props {
				c.setPropertyFromPatch(k, v)
			}
			e.attachComponent(c)
			continue
		}

		prop, ok := e.patcher.property(key)
		if !ok {
			e.logger.Error("message carries unknown view property", log.ComponentKey(key))
			continue
		}
		v, err := FromItemComponentData(data)
		if err != nil {
			e.logger.Error("failed to unpack view property", log.ComponentKey(key), log.Error(err))
			continue
		}
		prop.Set(v)
	}

	return e
}

func (e *Entity) ID() uint64                             { return e.id }
func (e *Entity) Type() Type                             { return e.typ }
func (e *Entity) Patcher() *StatePatcher                 { return e.patcher }
func (e *Entity) HasPendingPatch() bool                  { return e.patcher.HasPendingPatch() }
func (e *Entity) CreateObjectMessage() mcs.ObjectMessage { return e.patcher.CreateObjectMessage() }
func (e *Entity) CreateObjectPatch() mcs.ObjectPatch     { return e.patcher.CreateObjectPatch() }

func (e *Entity) OwnerID() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ownerID
}

func (e *Entity) ParentID() *uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyID(e.parentID)
}

func (e *Entity) IsTransferable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transferable
}

func (e *Entity) IsPersistent() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.persistent
}

func (e *Entity) Name() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.name
}

func (e *Entity) Position() value.Vector3 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.position
}

func (e *Entity) Rotation() value.Vector4 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rotation
}

func (e *Entity) Scale() value.Vector3 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scale
}

func (e *Entity) SelectedClientID() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selectedClientID
}

func (e *Entity) ThirdPartyRef() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thirdPartyRef
}

func (e *Entity) ThirdPartyPlatform() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thirdPartyPlatform
}

func (e *Entity) LockType() LockType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lockType
}

func (e *Entity) IsSelected() bool { return e.SelectedClientID() != 0 }

// IsModifiableBy reports whether clientID may send patches for e. A
// user-agnostic lock blocks everyone unless the unlock itself is staged;
// otherwise the owner or anyone, for a transferable entity, may.
func (e *Entity) IsModifiableBy(clientID uint64) bool {
	if e.LockType() == LockTypeUserAgnostic && !e.patcher.IsPropertyDirty(KeyLockType) {
		return false
	}
	return e.OwnerID() == clientID || e.IsTransferable()
}

// ClaimOwnership makes clientID the owner, ahead of patching e.
func (e *Entity) ClaimOwnership(clientID uint64) { e.setOwnerDirect(clientID) }

// Staged setters. Each returns false when the value equals the current one.

func (e *Entity) SetName(name string) bool {
	return e.patcher.SetDirtyProperty(KeyEntityName, value.NewString(name))
}

func (e *Entity) SetPosition(v value.Vector3) bool {
	return e.patcher.SetDirtyProperty(KeyPosition, value.NewVector3(v))
}

func (e *Entity) SetRotation(v value.Vector4) bool {
	return e.patcher.SetDirtyProperty(KeyRotation, value.NewVector4(v))
}

func (e *Entity) SetScale(v value.Vector3) bool {
	return e.patcher.SetDirtyProperty(KeyScale, value.NewVector3(v))
}

func (e *Entity) SetSelectedClientID(clientID uint64) bool {
	return e.patcher.SetDirtyProperty(KeySelectedClientID, value.NewInt(int64(clientID)))
}

func (e *Entity) SetThirdPartyRef(ref string) bool {
	return e.patcher.SetDirtyProperty(KeyThirdPartyRef, value.NewString(ref))
}

func (e *Entity) SetThirdPartyPlatform(platform int64) bool {
	return e.patcher.SetDirtyProperty(KeyThirdPartyPlatform, value.NewInt(platform))
}

func (e *Entity) SetLockType(lock LockType) bool {
	return e.patcher.SetDirtyProperty(KeyLockType, value.NewInt(int64(lock)))
}

// SetParent stages a parent change; nil detaches from the current parent.
func (e *Entity) SetParent(parentID *uint64) { e.patcher.SetParent(parentID) }

// AddComponent creates a component and stages its addition.
func (e *Entity) AddComponent(key uint16, typ ComponentType) (*Component, error) {
	if IsViewKey(key) {
		return nil, errors.Wrapf(protocol.ErrMalformedKey, "component key %#x is reserved", key)
	}
	if typ == ComponentTypeInvalid || typ == ComponentTypeDelete {
		return nil, errors.Wrapf(protocol.ErrUnsupportedValue, "component type %d", typ)
	}
	if _, exists := e.Component(key); exists {
		return nil, errors.Errorf("component %d already attached to entity %d", key, e.id)
	}

	c := newComponent(e, key, typ)
	if !e.patcher.SetDirtyComponent(key, DirtyComponent{Component: c, UpdateType: ComponentAdd}) {
		return nil, errors.Errorf("component %d already staged on entity %d", key, e.id)
	}
	return c, nil
}

// RemoveComponent stages the deletion of key. Returns false if the key is
// neither attached nor staged.
func (e *Entity) RemoveComponent(key uint16) bool {
	current := e.Components()
	if _, present := current[key]; !present {
		if _, staged := e.patcher.DirtyComponents()[key]; !staged {
			return false
		}
	}
	return e.patcher.RemoveDirtyComponent(key, current)
}

func (e *Entity) Component(key uint16) (*Component, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.components[key]
	return c, ok
}

// Components returns a copy of the live component map.
func (e *Entity) Components() map[uint16]*Component {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[uint16]*Component, len(e.components))
	for k, c := range e.components {
		out[k] = c
	}
	return out
}

// ApplyLocalPatch applies and drains staged state, then fires the update
// callback if requested and anything changed.
func (e *Entity) ApplyLocalPatch(invokeCallback bool) (UpdateFlags, []ComponentUpdateInfo) {
	flags, updates := e.patcher.ApplyLocalPatch()
	if invokeCallback && flags != 0 {
		e.fireUpdate(flags, updates)
	}
	return flags, updates
}

// TakeObjectPatch returns the patch for the staged state and applies it
// atomically. The update callback is not fired; see NotifyUpdated.
func (e *Entity) TakeObjectPatch() (mcs.ObjectPatch, UpdateFlags, []ComponentUpdateInfo) {
	return e.patcher.TakeObjectPatch()
}

// NotifyUpdated fires the update callback if flags is non-zero.
func (e *Entity) NotifyUpdated(flags UpdateFlags, updates []ComponentUpdateInfo) {
	if flags != 0 {
		e.fireUpdate(flags, updates)
	}
}

func (e *Entity) ApplyPatchFromObjectPatch(patch mcs.ObjectPatch) (UpdateFlags, []ComponentUpdateInfo) {
	return e.patcher.ApplyPatchFromObjectPatch(patch)
}

func (e *Entity) SetUpdateCallback(cb UpdateCallback) {
	e.callbackMu.Lock()
	e.onUpdate = cb
	e.callbackMu.Unlock()
}

func (e *Entity) SetDestroyCallback(cb func(*Entity)) {
	e.callbackMu.Lock()
	e.onDestroy = cb
	e.callbackMu.Unlock()
}

// NotifyDestroyed fires the destroy callback. Called once the entity has
// been removed from its session.
func (e *Entity) NotifyDestroyed() {
	e.callbackMu.RLock()
	cb := e.onDestroy
	e.callbackMu.RUnlock()
	if cb != nil {
		cb(e)
	}
}

func (e *Entity) fireUpdate(flags UpdateFlags, updates []ComponentUpdateInfo) {
	e.callbackMu.RLock()
	cb := e.onUpdate
	e.callbackMu.RUnlock()
	if cb != nil {
		cb(e, flags, updates)
	}
}

func (e *Entity) withState(fn func()) {
	e.mu.Lock()
	fn()
	e.mu.Unlock()
}

func (e *Entity) expectKind(key uint16, v value.Replicated, want value.ReplicatedKind) bool {
	if v.Kind() == want {
		return true
	}
	e.logger.Warn("view property value has wrong kind",
		log.ComponentKey(key),
		log.String("want", want.String()),
		log.String("got", v.Kind().String()),
	)
	return false
}

func (e *Entity) attachComponent(c *Component) {
	e.mu.Lock()
	e.components[c.Key()] = c
	e.mu.Unlock()
}

func (e *Entity) detachComponent(key uint16) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.components[key]; !ok {
		return false
	}
	delete(e.components, key)
	return true
}

func (e *Entity) setOwnerDirect(ownerID uint64) {
	e.mu.Lock()
	e.ownerID = ownerID
	e.mu.Unlock()
}

func (e *Entity) setParentDirect(parentID *uint64) {
	e.mu.Lock()
	e.parentID = copyID(parentID)
	e.mu.Unlock()
}

// applyComponentPatch applies one remote component entry. A delete-typed
// entry removes the component. An unknown key, or a key whose component
// changed type, gets a fresh component and is reported as an add.
// Otherwise the properties are merged into the existing component.
func (e *Entity) applyComponentPatch(key uint16, data mcs.ItemComponentData) (ComponentUpdateInfo, bool) {
	typ, props, err := UnpackComponent(data)
	if err != nil {
		e.logger.Error("failed to unpack component patch", log.ComponentKey(key), log.Error(err))
		return ComponentUpdateInfo{}, false
	}

	if typ == ComponentTypeDelete {
		if !e.detachComponent(key) {
			e.logger.Warn("delete for component not present", log.ComponentKey(key))
			return ComponentUpdateInfo{}, false
		}
		return ComponentUpdateInfo{ComponentID: key, UpdateType: ComponentDelete}, true
	}

	existing, exists := e.Component(key)
	if !exists || existing.Type() != typ {
		c := newComponent(e, key, typ)
		for k, v := range props {
			c.setPropertyFromPatch(k, v)
		}
		e.attachComponent(c)
		return ComponentUpdateInfo{ComponentID: key, UpdateType: ComponentAdd}, true
	}

	for k, v := range props {
		existing.setPropertyFromPatch(k, v)
	}
	return ComponentUpdateInfo{ComponentID: key, UpdateType: ComponentUpdate}, true
}
