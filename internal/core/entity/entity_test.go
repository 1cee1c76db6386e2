package entity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol/codec"
	"github.com/zeusync/replica/internal/core/protocol/mcs"
	"github.com/zeusync/replica/internal/core/value"
)

func newTestEntity(id uint64, opts ...Option) *Entity {
	return New(id, TypeObject, 1, log.Nop(), opts...)
}

func sendOverWire(t *testing.T, patch mcs.ObjectPatch) mcs.ObjectPatch {
	t.Helper()
	data, err := codec.MarshalValue(patch)
	require.NoError(t, err)
	var out mcs.ObjectPatch
	require.NoError(t, codec.UnmarshalValue(data, &out))
	return out
}

func TestNewDefaults(t *testing.T) {
	e := newTestEntity(10)

	assert.Equal(t, uint64(10), e.ID())
	assert.Equal(t, TypeObject, e.Type())
	assert.Equal(t, uint64(1), e.OwnerID())
	assert.Nil(t, e.ParentID())
	assert.Equal(t, value.Vector3Zero, e.Position())
	assert.Equal(t, value.QuaternionIdentity, e.Rotation())
	assert.Equal(t, value.Vector3One, e.Scale())
	assert.False(t, e.HasPendingPatch())
	assert.Empty(t, e.Components())
}

func TestSettersStageWithoutApplying(t *testing.T) {
	e := newTestEntity(1)

	require.True(t, e.SetName("crate"))
	require.True(t, e.SetPosition(value.Vector3{X: 1, Y: 2, Z: 3}))

	assert.Equal(t, "", e.Name())
	assert.Equal(t, value.Vector3Zero, e.Position())
	assert.True(t, e.HasPendingPatch())

	flags, updates := e.ApplyLocalPatch(false)
	assert.Equal(t, UpdateName|UpdatePosition, flags)
	assert.Empty(t, updates)
	assert.Equal(t, "crate", e.Name())
	assert.Equal(t, value.Vector3{X: 1, Y: 2, Z: 3}, e.Position())
	assert.False(t, e.HasPendingPatch())
}

func TestSetterDropsUnchangedValue(t *testing.T) {
	e := newTestEntity(1)

	assert.False(t, e.SetScale(value.Vector3One))
	assert.False(t, e.HasPendingPatch())

	require.True(t, e.SetPosition(value.Vector3{X: 5}))
	assert.False(t, e.SetPosition(value.Vector3Zero), "writing current value back clears the staged write")
	assert.False(t, e.HasPendingPatch())
}

func TestApplyLocalPatchIsIdempotent(t *testing.T) {
	e := newTestEntity(1)
	require.True(t, e.SetRotation(value.Vector4{X: 0, Y: 1, Z: 0, W: 0}))
	_, err := e.AddComponent(3, ComponentTypeCustom)
	require.NoError(t, err)

	flags, updates := e.ApplyLocalPatch(false)
	assert.Equal(t, UpdateRotation|UpdateComponents, flags)
	assert.Equal(t, []ComponentUpdateInfo{{ComponentID: 3, UpdateType: ComponentAdd}}, updates)

	flags, updates = e.ApplyLocalPatch(false)
	assert.Zero(t, flags)
	assert.Empty(t, updates)
}

func TestApplyLocalPatchCallback(t *testing.T) {
	e := newTestEntity(1)

	var calls int
	var got UpdateFlags
	e.SetUpdateCallback(func(_ *Entity, flags UpdateFlags, _ []ComponentUpdateInfo) {
		calls++
		got = flags
	})

	e.ApplyLocalPatch(true)
	assert.Zero(t, calls, "nothing staged, no callback")

	require.True(t, e.SetLockType(LockTypeUserAgnostic))
	e.ApplyLocalPatch(false)
	assert.Zero(t, calls)

	require.True(t, e.SetThirdPartyRef("ref-1"))
	e.ApplyLocalPatch(true)
	assert.Equal(t, 1, calls)
	assert.Equal(t, UpdateThirdPartyRef, got)
	assert.Equal(t, LockTypeUserAgnostic, e.LockType())
}

func TestAddComponentValidation(t *testing.T) {
	e := newTestEntity(1)

	_, err := e.AddComponent(KeyPosition, ComponentTypeCustom)
	assert.Error(t, err)

	_, err = e.AddComponent(4, ComponentTypeInvalid)
	assert.Error(t, err)

	_, err = e.AddComponent(4, ComponentTypeCore)
	require.NoError(t, err)
	_, err = e.AddComponent(4, ComponentTypeCore)
	assert.Error(t, err, "second add for the same key before apply")

	e.ApplyLocalPatch(false)
	_, err = e.AddComponent(4, ComponentTypeCore)
	assert.Error(t, err, "component already attached")
}

func TestComponentPropertyStagesUpdate(t *testing.T) {
	e := newTestEntity(1)
	c, err := e.AddComponent(2, ComponentTypeCustom)
	require.NoError(t, err)
	e.ApplyLocalPatch(false)

	require.True(t, c.SetProperty(1, value.NewFloat(2.5)))
	assert.False(t, c.SetProperty(1, value.NewFloat(2.5)))
	require.True(t, c.SetProperty(2, value.NewString("x")))

	dirty := e.Patcher().DirtyComponents()
	require.Len(t, dirty, 1)
	assert.Equal(t, ComponentUpdate, dirty[2].UpdateType)

	_, updates := e.ApplyLocalPatch(false)
	assert.Equal(t, []ComponentUpdateInfo{{ComponentID: 2, UpdateType: ComponentUpdate}}, updates)
}

func TestRemoveComponent(t *testing.T) {
	e := newTestEntity(1)
	_, err := e.AddComponent(5, ComponentTypeCustom)
	require.NoError(t, err)
	_, err = e.AddComponent(6, ComponentTypeCustom)
	require.NoError(t, err)
	e.ApplyLocalPatch(false)

	require.True(t, e.RemoveComponent(6))
	require.True(t, e.RemoveComponent(5))

	patch := e.CreateObjectPatch()
	for _, key := range []uint16{5, 6} {
		typ, _, err := UnpackComponent(patch.Components[key])
		require.NoError(t, err)
		assert.Equal(t, ComponentTypeDelete, typ)
	}

	_, updates := e.ApplyLocalPatch(false)
	assert.Equal(t, []ComponentUpdateInfo{
		{ComponentID: 6, UpdateType: ComponentDelete},
		{ComponentID: 5, UpdateType: ComponentDelete},
	}, updates)
	assert.Empty(t, e.Components())

	assert.False(t, e.RemoveComponent(5), "deletion already applied and nothing present")
}

func TestRemoveComponentTwiceBeforeApply(t *testing.T) {
	e := newTestEntity(1)
	_, err := e.AddComponent(5, ComponentTypeCustom)
	require.NoError(t, err)
	e.ApplyLocalPatch(false)

	require.True(t, e.RemoveComponent(5))
	assert.True(t, e.RemoveComponent(5), "component still present until apply")

	_, updates := e.ApplyLocalPatch(false)
	assert.Len(t, updates, 1)
	assert.False(t, e.RemoveComponent(5))
}

func TestRemoveStagedAddDiscardsIt(t *testing.T) {
	e := newTestEntity(1)
	_, err := e.AddComponent(9, ComponentTypeCustom)
	require.NoError(t, err)

	require.True(t, e.RemoveComponent(9))
	assert.Empty(t, e.Patcher().DirtyComponents())

	flags, updates := e.ApplyLocalPatch(false)
	assert.Zero(t, flags)
	assert.Empty(t, updates)
	_, ok := e.Component(9)
	assert.False(t, ok)
}

func TestParentStaging(t *testing.T) {
	e := newTestEntity(1, WithParent(7))
	require.NotNil(t, e.ParentID())

	e.SetParent(nil)
	patch := e.CreateObjectPatch()
	assert.True(t, patch.ShouldUpdateParent)
	assert.Nil(t, patch.ParentID)

	flags, _ := e.ApplyLocalPatch(false)
	assert.Equal(t, UpdateParent, flags)
	assert.Nil(t, e.ParentID())

	parent := uint64(42)
	e.SetParent(&parent)
	parent = 43
	e.ApplyLocalPatch(false)
	require.NotNil(t, e.ParentID())
	assert.Equal(t, uint64(42), *e.ParentID())
}

func TestCreateObjectMessage(t *testing.T) {
	e := New(100, TypeAvatar, 9, log.Nop(), WithName("player"), Persistent(true))
	live, err := e.AddComponent(1, ComponentTypeCore)
	require.NoError(t, err)
	live.SetProperty(1, value.NewInt(5))
	e.ApplyLocalPatch(false)

	staged, err := e.AddComponent(2, ComponentTypeCustom)
	require.NoError(t, err)
	staged.SetProperty(1, value.NewBool(true))

	msg := e.CreateObjectMessage()
	assert.Equal(t, uint64(100), msg.ID)
	assert.Equal(t, uint64(TypeAvatar), msg.Type)
	assert.Equal(t, uint64(9), msg.OwnerID)
	assert.True(t, msg.IsPersistent)
	assert.Contains(t, msg.Components, uint16(1))
	assert.Contains(t, msg.Components, uint16(2))
	for key := KeyEntityName; key <= KeyLockType; key++ {
		assert.Contains(t, msg.Components, key)
	}

	rebuilt := NewFromObjectMessage(msg, log.Nop())
	assert.Equal(t, "player", rebuilt.Name())
	assert.Equal(t, value.Vector3One, rebuilt.Scale())
	assert.True(t, rebuilt.IsPersistent())
	c, ok := rebuilt.Component(2)
	require.True(t, ok)
	v, ok := c.Property(1)
	require.True(t, ok)
	assert.True(t, v.Bool())
	assert.False(t, rebuilt.HasPendingPatch())
}

func TestReplicationBetweenEntities(t *testing.T) {
	local := newTestEntity(55)
	remote := NewFromObjectMessage(local.CreateObjectMessage(), log.Nop())

	require.True(t, local.SetPosition(value.Vector3{X: 1, Y: 2, Z: 3}))
	c, err := local.AddComponent(7, ComponentTypeCustom)
	require.NoError(t, err)
	require.True(t, c.SetProperty(1, value.NewBool(true)))

	patch := sendOverWire(t, local.CreateObjectPatch())
	local.ApplyLocalPatch(false)

	flags, updates := remote.ApplyPatchFromObjectPatch(patch)
	assert.Equal(t, UpdatePosition|UpdateComponents, flags)
	assert.Equal(t, []ComponentUpdateInfo{{ComponentID: 7, UpdateType: ComponentAdd}}, updates)
	assert.Equal(t, value.Vector3{X: 1, Y: 2, Z: 3}, remote.Position())

	rc, ok := remote.Component(7)
	require.True(t, ok)
	assert.Equal(t, ComponentTypeCustom, rc.Type())
	v, ok := rc.Property(1)
	require.True(t, ok)
	assert.Equal(t, value.NewBool(true), v)
	assert.False(t, remote.HasPendingPatch(), "remote application stages nothing")
}

func TestRemotePatchFiresCallbackOnce(t *testing.T) {
	local := newTestEntity(55)
	remote := NewFromObjectMessage(local.CreateObjectMessage(), log.Nop())

	var calls []UpdateFlags
	remote.SetUpdateCallback(func(_ *Entity, flags UpdateFlags, _ []ComponentUpdateInfo) {
		calls = append(calls, flags)
	})

	require.True(t, local.SetPosition(value.Vector3{X: 4, Y: 5, Z: 6}))
	remote.ApplyPatchFromObjectPatch(sendOverWire(t, local.CreateObjectPatch()))

	require.Len(t, calls, 1)
	assert.Equal(t, UpdatePosition, calls[0])
	assert.Equal(t, value.Vector3{X: 4, Y: 5, Z: 6}, remote.Position())
}

func TestRemotePatchKeepsParentUnlessFlagged(t *testing.T) {
	e := newTestEntity(3, WithParent(11))

	patch := mcs.ObjectPatch{ID: 3, OwnerID: 1}
	flags, _ := e.ApplyPatchFromObjectPatch(sendOverWire(t, patch))
	assert.Zero(t, flags)
	require.NotNil(t, e.ParentID())
	assert.Equal(t, uint64(11), *e.ParentID())

	patch.ShouldUpdateParent = true
	flags, _ = e.ApplyPatchFromObjectPatch(sendOverWire(t, patch))
	assert.Equal(t, UpdateParent, flags)
	assert.Nil(t, e.ParentID())
}

func TestRemotePatchTakesOwner(t *testing.T) {
	e := newTestEntity(3)
	e.ApplyPatchFromObjectPatch(mcs.ObjectPatch{ID: 3, OwnerID: 77})
	assert.Equal(t, uint64(77), e.OwnerID())
}

func TestRemoteComponentLifecycle(t *testing.T) {
	e := newTestEntity(3)

	add, err := PackComponent(ComponentTypeCore, map[uint16]value.Replicated{1: value.NewInt(1)})
	require.NoError(t, err)
	_, updates := e.ApplyPatchFromObjectPatch(mcs.ObjectPatch{ID: 3, Components: mcs.Components{4: add}})
	assert.Equal(t, []ComponentUpdateInfo{{ComponentID: 4, UpdateType: ComponentAdd}}, updates)

	upd, err := PackComponent(ComponentTypeCore, map[uint16]value.Replicated{2: value.NewInt(2)})
	require.NoError(t, err)
	_, updates = e.ApplyPatchFromObjectPatch(mcs.ObjectPatch{ID: 3, Components: mcs.Components{4: upd}})
	assert.Equal(t, []ComponentUpdateInfo{{ComponentID: 4, UpdateType: ComponentUpdate}}, updates)
	c, _ := e.Component(4)
	assert.Len(t, c.Properties(), 2)

	retyped, err := PackComponent(ComponentTypeCustom, nil)
	require.NoError(t, err)
	_, updates = e.ApplyPatchFromObjectPatch(mcs.ObjectPatch{ID: 3, Components: mcs.Components{4: retyped}})
	assert.Equal(t, []ComponentUpdateInfo{{ComponentID: 4, UpdateType: ComponentAdd}}, updates)
	c, _ = e.Component(4)
	assert.Equal(t, ComponentTypeCustom, c.Type())
	assert.Empty(t, c.Properties())

	del, err := PackComponent(ComponentTypeDelete, nil)
	require.NoError(t, err)
	_, updates = e.ApplyPatchFromObjectPatch(mcs.ObjectPatch{ID: 3, Components: mcs.Components{4: del}})
	assert.Equal(t, []ComponentUpdateInfo{{ComponentID: 4, UpdateType: ComponentDelete}}, updates)

	flags, updates := e.ApplyPatchFromObjectPatch(mcs.ObjectPatch{ID: 3, Components: mcs.Components{4: del}})
	assert.Zero(t, flags, "deleting an absent component changes nothing")
	assert.Empty(t, updates)
}

func TestRemotePatchSkipsBadEntries(t *testing.T) {
	e := newTestEntity(3)

	patch := mcs.ObjectPatch{ID: 3, Components: mcs.Components{
		KeyPosition:     mcs.NewItemComponentData(value.FloatArray(1, 2, 3)),
		KeyEntityName:   mcs.NewItemComponentData(value.Bool(true)),
		KeyLockType + 1: mcs.NewItemComponentData(value.Int64(1)),
		8:               mcs.NewItemComponentData(value.String("not a component")),
	}}

	flags, updates := e.ApplyPatchFromObjectPatch(patch)
	assert.True(t, flags.Has(UpdatePosition))
	assert.False(t, flags.Has(UpdateComponents))
	assert.Empty(t, updates)
	assert.Equal(t, value.Vector3{X: 1, Y: 2, Z: 3}, e.Position())
	assert.Equal(t, "", e.Name())
}

func TestSelectedClientIDReplicatesAsInt(t *testing.T) {
	local := newTestEntity(1)
	require.True(t, local.SetSelectedClientID(99))
	assert.False(t, local.IsSelected())

	patch := local.CreateObjectPatch()
	assert.Equal(t, value.KindInt64, patch.Components[KeySelectedClientID].Value().Kind())

	remote := newTestEntity(1)
	remote.ApplyPatchFromObjectPatch(sendOverWire(t, patch))
	assert.Equal(t, uint64(99), remote.SelectedClientID())
	assert.True(t, remote.IsSelected())
}

func TestDestroyCallback(t *testing.T) {
	e := newTestEntity(1)
	var got *Entity
	e.SetDestroyCallback(func(d *Entity) { got = d })
	e.NotifyDestroyed()
	assert.Same(t, e, got)
}

func TestConcurrentMutation(t *testing.T) {
	e := newTestEntity(1)
	c, err := e.AddComponent(1, ComponentTypeCustom)
	require.NoError(t, err)
	e.ApplyLocalPatch(false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				e.SetPosition(value.Vector3{X: float32(i), Y: float32(j)})
				c.SetProperty(uint16(i), value.NewInt(int64(j)))
				_ = e.CreateObjectPatch()
				_ = e.CreateObjectMessage()
				e.ApplyLocalPatch(j%10 == 0)
			}
		}(i)
	}
	wg.Wait()

	e.ApplyLocalPatch(false)
	assert.False(t, e.HasPendingPatch())
	assert.Len(t, c.Properties(), 8)
}

func TestObjectMessageOverWireRebuildsEntity(t *testing.T) {
	e := newTestEntity(12)
	require.True(t, e.SetPosition(value.Vector3{X: 1, Y: 2, Z: 3}))
	c, err := e.AddComponent(7, ComponentTypeCustom)
	require.NoError(t, err)
	c.SetProperty(1, value.NewBool(true))
	e.ApplyLocalPatch(false)

	data, err := codec.MarshalValue(e.CreateObjectMessage())
	require.NoError(t, err)
	var msg mcs.ObjectMessage
	require.NoError(t, codec.UnmarshalValue(data, &msg))

	rebuilt := NewFromObjectMessage(msg, log.Nop())
	assert.Equal(t, value.Vector3{X: 1, Y: 2, Z: 3}, rebuilt.Position())
	rc, ok := rebuilt.Component(7)
	require.True(t, ok)
	assert.Equal(t, map[uint16]value.Replicated{1: value.NewBool(true)}, rc.Properties())
}

func TestIsModifiableBy(t *testing.T) {
	owned := newTestEntity(1, Transferable(false))
	assert.True(t, owned.IsModifiableBy(1))
	assert.False(t, owned.IsModifiableBy(2))

	shared := newTestEntity(2)
	assert.True(t, shared.IsModifiableBy(2))

	require.True(t, shared.SetLockType(LockTypeUserAgnostic))
	assert.True(t, shared.IsModifiableBy(2), "the lock is only staged")
	shared.ApplyLocalPatch(false)
	assert.False(t, shared.IsModifiableBy(1))

	require.True(t, shared.SetLockType(LockTypeNone))
	assert.True(t, shared.IsModifiableBy(1), "a staged unlock may be sent")
}

func TestClaimOwnership(t *testing.T) {
	e := newTestEntity(1)
	e.ClaimOwnership(9)
	assert.Equal(t, uint64(9), e.OwnerID())
	assert.Equal(t, uint64(9), e.CreateObjectPatch().OwnerID)
	assert.False(t, e.HasPendingPatch())
}
