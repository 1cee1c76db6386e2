package hub

import "fmt"

// Method is a named remote procedure or push notification on the relay.
type Method uint8

const (
	MethodInvalid Method = iota

	SendObjectMessage
	SendObjectPatch
	SendObjectPatches
	GenerateObjectIds
	PageScopedObjects
	DeleteObjects
	SendObjectNotFound
	OnObjectMessage
	OnObjectPatch
	OnRequestToSendObject
	OnRequestToDisconnect
	GetClientId
	StartListening
	StopListening
	SetScopes
	ResetScopes
	SetAllowSelfMessaging
	SendEventMessage
	AssumeScopeLeadership
	SendScopeLeaderHeartbeat
	OnElectedScopeLeader
	OnVacatedAsScopeLeader
)

// methodNames is the wire contract with the relay and must match it exactly.
var methodNames = map[Method]string{
	SendObjectMessage:        "SendObjectMessage",
	SendObjectPatch:          "SendObjectPatch",
	SendObjectPatches:        "SendObjectPatches",
	GenerateObjectIds:        "GenerateObjectIds",
	PageScopedObjects:        "PageScopedObjects",
	DeleteObjects:            "DeleteObjects",
	SendObjectNotFound:       "SendObjectNotFound",
	OnObjectMessage:          "OnObjectMessage",
	OnObjectPatch:            "OnObjectPatch",
	OnRequestToSendObject:    "OnRequestToSendObject",
	OnRequestToDisconnect:    "OnRequestToDisconnect",
	GetClientId:              "GetClientId",
	StartListening:           "StartListening",
	StopListening:            "StopListening",
	SetScopes:                "SetScopes",
	ResetScopes:              "ResetScopes",
	SetAllowSelfMessaging:    "SetAllowSelfMessaging",
	SendEventMessage:         "SendEventMessage",
	AssumeScopeLeadership:    "AssumeScopeLeadership",
	SendScopeLeaderHeartbeat: "SendScopeLeaderHeartbeat",
	OnElectedScopeLeader:     "OnElectedScopeLeader",
	OnVacatedAsScopeLeader:   "OnVacatedAsScopeLeader",
}

var methodsByName = func() map[string]Method {
	out := make(map[string]Method, len(methodNames))
	for m, name := range methodNames {
		out[name] = m
	}
	return out
}()

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", uint8(m))
}

// ParseMethod maps a wire name back to its Method.
func ParseMethod(name string) (Method, bool) {
	m, ok := methodsByName[name]
	return m, ok
}

// Methods returns every known method.
func Methods() []Method {
	out := make([]Method, 0, len(methodNames))
	for m := SendObjectMessage; m <= OnVacatedAsScopeLeader; m++ {
		out = append(out, m)
	}
	return out
}
