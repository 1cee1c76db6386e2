package entity

import "github.com/zeusync/replica/internal/core/value"

// Property binds a view key to an entity field. Get and Set read and write
// the authoritative value; the patcher calls Set only while applying a
// patch.
type Property struct {
	Key        uint16
	UpdateFlag UpdateFlags
	Get        func() value.Replicated
	Set        func(value.Replicated)
}

// viewProperties returns the bindings for every view property of e.
func (e *Entity) viewProperties() []Property {
	return []Property{
		{
			Key:        KeyEntityName,
			UpdateFlag: UpdateName,
			Get:        func() value.Replicated { return value.NewString(e.Name()) },
			Set: func(v value.Replicated) {
				if e.expectKind(KeyEntityName, v, value.ReplicatedString) {
					e.withState(func() { e.name = v.String() })
				}
			},
		},
		{
			Key:        KeyPosition,
			UpdateFlag: UpdatePosition,
			Get:        func() value.Replicated { return value.NewVector3(e.Position()) },
			Set: func(v value.Replicated) {
				if e.expectKind(KeyPosition, v, value.ReplicatedVector3) {
					e.withState(func() { e.position = v.Vector3() })
				}
			},
		},
		{
			Key:        KeyRotation,
			UpdateFlag: UpdateRotation,
			Get:        func() value.Replicated { return value.NewVector4(e.Rotation()) },
			Set: func(v value.Replicated) {
				if e.expectKind(KeyRotation, v, value.ReplicatedVector4) {
					e.withState(func() { e.rotation = v.Vector4() })
				}
			},
		},
		{
			Key:        KeyScale,
			UpdateFlag: UpdateScale,
			Get:        func() value.Replicated { return value.NewVector3(e.Scale()) },
			Set: func(v value.Replicated) {
				if e.expectKind(KeyScale, v, value.ReplicatedVector3) {
					e.withState(func() { e.scale = v.Vector3() })
				}
			},
		},
		{
			// Stored unsigned, replicated as a signed integer.
			Key:        KeySelectedClientID,
			UpdateFlag: UpdateSelectionID,
			Get:        func() value.Replicated { return value.NewInt(int64(e.SelectedClientID())) },
			Set: func(v value.Replicated) {
				if e.expectKind(KeySelectedClientID, v, value.ReplicatedInt) {
					e.withState(func() { e.selectedClientID = uint64(v.Int()) })
				}
			},
		},
		{
			Key:        KeyThirdPartyRef,
			UpdateFlag: UpdateThirdPartyRef,
			Get:        func() value.Replicated { return value.NewString(e.ThirdPartyRef()) },
			Set: func(v value.Replicated) {
				if e.expectKind(KeyThirdPartyRef, v, value.ReplicatedString) {
					e.withState(func() { e.thirdPartyRef = v.String() })
				}
			},
		},
		{
			Key:        KeyThirdPartyPlatform,
			UpdateFlag: UpdateThirdPartyPlatform,
			Get:        func() value.Replicated { return value.NewInt(e.ThirdPartyPlatform()) },
			Set: func(v value.Replicated) {
				if e.expectKind(KeyThirdPartyPlatform, v, value.ReplicatedInt) {
					e.withState(func() { e.thirdPartyPlatform = v.Int() })
				}
			},
		},
		{
			Key:        KeyLockType,
			UpdateFlag: UpdateLockType,
			Get:        func() value.Replicated { return value.NewInt(int64(e.LockType())) },
			Set: func(v value.Replicated) {
				if e.expectKind(KeyLockType, v, value.ReplicatedInt) {
					e.withState(func() { e.lockType = LockType(v.Int()) })
				}
			},
		},
	}
}
