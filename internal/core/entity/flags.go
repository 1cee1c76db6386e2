package entity

import "strings"

// UpdateFlags is the set of entity aspects changed by one patch
// application.
type UpdateFlags uint32

const (
	UpdateName UpdateFlags = 1 << iota
	UpdatePosition
	UpdateRotation
	UpdateScale
	UpdateComponents
	UpdateSelectionID
	UpdateThirdPartyRef
	UpdateThirdPartyPlatform
	UpdateParent
	UpdateLockType
)

var flagNames = []struct {
	flag UpdateFlags
	name string
}{
	{UpdateName, "name"},
	{UpdatePosition, "position"},
	{UpdateRotation, "rotation"},
	{UpdateScale, "scale"},
	{UpdateComponents, "components"},
	{UpdateSelectionID, "selection_id"},
	{UpdateThirdPartyRef, "third_party_ref"},
	{UpdateThirdPartyPlatform, "third_party_platform"},
	{UpdateParent, "parent"},
	{UpdateLockType, "lock_type"},
}

func (f UpdateFlags) Has(flag UpdateFlags) bool { return f&flag == flag }

func (f UpdateFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ComponentUpdateType is what happened to one component.
type ComponentUpdateType uint8

const (
	ComponentAdd ComponentUpdateType = iota
	ComponentUpdate
	ComponentDelete
)

func (t ComponentUpdateType) String() string {
	switch t {
	case ComponentAdd:
		return "add"
	case ComponentUpdate:
		return "update"
	case ComponentDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type ComponentUpdateInfo struct {
	ComponentID uint16
	UpdateType  ComponentUpdateType
}
