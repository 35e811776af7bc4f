// Package workflow holds the approval lifecycle of activity claims, documents,
// events and categories: the policy table describing every legal edge, and the
// pure engine that evaluates a requested transition against a snapshot.
package workflow

import (
	"strings"
	"time"
)

// EntityType identifies one of the workflow-tracked record kinds.
type EntityType string

const (
	EntityActivityClaim EntityType = "activity_claim"
	EntityDocument      EntityType = "document"
	EntityEvent         EntityType = "event"
	EntityCategory      EntityType = "category"
)

// EntityTypes lists every known entity type in a stable order.
var EntityTypes = []EntityType{EntityActivityClaim, EntityDocument, EntityEvent, EntityCategory}

// Valid reports whether the entity type is known.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// State is a lifecycle state.
type State string

const (
	StatePending         State = "pending"
	StateProctorVerified State = "proctor_verified"
	StateProctorRejected State = "proctor_rejected"
	StateApproved        State = "approved"
	StateRejected        State = "rejected"
	StateActive          State = "active"
)

// Terminal reports whether no ordinary transition leaves the state.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateRejected, StateActive, StateProctorRejected:
		return true
	default:
		return false
	}
}

// Action names a requested transition.
type Action string

const (
	ActionVerify         Action = "verify"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionOverrideVerify Action = "override_verify"
	ActionOverrideReject Action = "override_reject"
)

// Override reports whether the action may be applied to a terminal record.
func (a Action) Override() bool {
	return a == ActionOverrideVerify || a == ActionOverrideReject
}

// Rejecting reports whether the action moves the record to a rejected state
// and therefore needs a justification.
func (a Action) Rejecting() bool {
	return a == ActionReject || a == ActionOverrideReject
}

// Role is the caller's authorization role as supplied by the identity provider.
type Role string

const (
	RoleStudent Role = "student"
	RoleProctor Role = "proctor"
	RoleHOD     Role = "hod"
	RoleAdmin   Role = "admin"
)

// ParseRole normalises a role string. Unknown values are returned lower-cased
// so the policy table simply never matches them.
func ParseRole(value string) Role {
	return Role(strings.ToLower(strings.TrimSpace(value)))
}

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role Role
}

// Payload keys understood by the engine.
const (
	PayloadPoints                 = "points"
	PayloadMaxPoints              = "max_points"
	PayloadRequiresProctorSignoff = "requires_proctor_signoff"
	PayloadReason                 = "reason"
	PayloadRemarks                = "remarks"
)

// Snapshot is an immutable view of a persisted entity.
type Snapshot struct {
	ID        string
	Type      EntityType
	OwnerRef  string
	State     State
	Version   int64
	Payload   map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep-enough copy: the payload map is duplicated so callers
// can merge updates without touching the original snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Payload = make(map[string]any, len(s.Payload))
	for k, v := range s.Payload {
		out.Payload[k] = v
	}
	return out
}

// Request is a single proposed transition.
type Request struct {
	EntityID string
	Actor    Actor
	Action   Action
	Payload  map[string]any
}

// Outcome of a transition attempt as stored in the audit trail.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeRejected Outcome = "rejected"
)
