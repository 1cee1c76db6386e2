package entity

// Component keys below ReservedThreshold name user components. Keys at or
// above it are view properties with engine-defined meaning.
const ReservedThreshold uint16 = 0xFF00

// ComponentTypeKey holds a component's declared type inside its own
// encoded dictionary.
const ComponentTypeKey uint16 = 0xFFFF

// View property keys.
const (
	KeyEntityName uint16 = ReservedThreshold + iota
	KeyPosition
	KeyRotation
	KeyScale
	KeySelectedClientID
	KeyThirdPartyRef
	KeyThirdPartyPlatform
	KeyLockType
)

// IsViewKey reports whether key addresses a view property rather than a
// user component.
func IsViewKey(key uint16) bool { return key >= ReservedThreshold }

// Type is the kind of entity. Values are fixed by the relay.
type Type uint64

const (
	TypeAvatar Type = 1
	TypeObject Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeAvatar:
		return "avatar"
	case TypeObject:
		return "object"
	default:
		return "unknown"
	}
}

// LockType restricts who may mutate an entity.
type LockType int64

const (
	LockTypeNone LockType = iota
	LockTypeUserAgnostic
)
