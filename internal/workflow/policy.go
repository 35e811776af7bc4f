package workflow

import "sort"

// Guard is an extra condition an edge places on the snapshot.
type Guard string

const (
	GuardNone Guard = ""
	// GuardProctorSignoffWaived holds when the claim's category lets the HOD
	// decide without a proctor verification.
	GuardProctorSignoffWaived Guard = "proctor_signoff_waived"
)

// Edge is one declared transition of the policy table.
type Edge struct {
	Type   EntityType `yaml:"entity_type" json:"entity_type"`
	From   State      `yaml:"from" json:"from"`
	Action Action     `yaml:"action" json:"action"`
	Roles  []Role     `yaml:"roles" json:"roles"`
	To     State      `yaml:"to" json:"to"`
	Guard  Guard      `yaml:"guard,omitempty" json:"guard,omitempty"`
}

// Option is a transition currently open to a role.
type Option struct {
	State  State  `json:"state"`
	Action Action `json:"action"`
	To     State  `json:"to"`
}

type policyKey struct {
	entity EntityType
	from   State
	action Action
	role   Role
}

// Policy is the static authorization graph. The zero value is empty; use
// DefaultPolicy for the campus rules.
type Policy struct {
	edges []Edge
	index map[policyKey]Edge
}

// NewPolicy indexes the given edges. A later edge with the same
// (type, state, action, role) key replaces an earlier one.
func NewPolicy(edges []Edge) *Policy {
	p := &Policy{
		edges: append([]Edge(nil), edges...),
		index: make(map[policyKey]Edge),
	}
	for _, edge := range edges {
		for _, role := range edge.Roles {
			p.index[policyKey{entity: edge.Type, from: edge.From, action: edge.Action, role: role}] = edge
		}
	}
	return p
}

var defaultEdges = []Edge{
	{Type: EntityActivityClaim, From: StatePending, Action: ActionVerify, Roles: []Role{RoleProctor}, To: StateProctorVerified},
	{Type: EntityActivityClaim, From: StatePending, Action: ActionReject, Roles: []Role{RoleProctor}, To: StateProctorRejected},
	{Type: EntityActivityClaim, From: StateProctorVerified, Action: ActionApprove, Roles: []Role{RoleHOD}, To: StateApproved},
	{Type: EntityActivityClaim, From: StateProctorVerified, Action: ActionReject, Roles: []Role{RoleHOD}, To: StateRejected},
	{Type: EntityActivityClaim, From: StatePending, Action: ActionApprove, Roles: []Role{RoleHOD}, To: StateApproved, Guard: GuardProctorSignoffWaived},
	{Type: EntityActivityClaim, From: StatePending, Action: ActionReject, Roles: []Role{RoleHOD}, To: StateRejected, Guard: GuardProctorSignoffWaived},

	{Type: EntityDocument, From: StatePending, Action: ActionVerify, Roles: []Role{RoleProctor, RoleHOD}, To: StateApproved},
	{Type: EntityDocument, From: StatePending, Action: ActionReject, Roles: []Role{RoleProctor, RoleHOD}, To: StateRejected},
	{Type: EntityDocument, From: StateRejected, Action: ActionOverrideVerify, Roles: []Role{RoleHOD}, To: StateApproved},
	{Type: EntityDocument, From: StateApproved, Action: ActionOverrideReject, Roles: []Role{RoleHOD}, To: StateRejected},

	{Type: EntityEvent, From: StatePending, Action: ActionApprove, Roles: []Role{RoleHOD}, To: StateActive},
	{Type: EntityEvent, From: StatePending, Action: ActionReject, Roles: []Role{RoleHOD}, To: StateRejected},

	{Type: EntityCategory, From: StatePending, Action: ActionApprove, Roles: []Role{RoleHOD}, To: StateActive},
	{Type: EntityCategory, From: StatePending, Action: ActionReject, Roles: []Role{RoleHOD}, To: StateRejected},
}

var defaultPolicy = NewPolicy(defaultEdges)

// DefaultPolicy returns the campus approval rules.
func DefaultPolicy() *Policy {
	return defaultPolicy
}

// Lookup resolves a (type, state, action, role) tuple. It is total: any
// combination that is not declared returns ok=false.
func (p *Policy) Lookup(entity EntityType, from State, action Action, role Role) (Edge, bool) {
	if p == nil {
		return Edge{}, false
	}
	edge, ok := p.index[policyKey{entity: entity, from: from, action: action, role: role}]
	return edge, ok
}

// Available lists the transitions the role may request from the state,
// ignoring guards. Output is sorted by action for stable responses.
func (p *Policy) Available(entity EntityType, from State, role Role) []Option {
	return p.options(entity, from, role, nil)
}

// AvailableFor lists the transitions the role may request on the snapshot
// right now: edges whose guard does not hold for it are left out.
func (p *Policy) AvailableFor(snapshot Snapshot, role Role) []Option {
	return p.options(snapshot.Type, snapshot.State, role, func(edge Edge) bool {
		return checkGuard(edge, snapshot) == nil
	})
}

func (p *Policy) options(entity EntityType, from State, role Role, keep func(Edge) bool) []Option {
	if p == nil {
		return nil
	}
	options := make([]Option, 0)
	for key, edge := range p.index {
		if key.entity != entity || key.from != from || key.role != role {
			continue
		}
		if keep != nil && !keep(edge) {
			continue
		}
		options = append(options, Option{State: from, Action: edge.Action, To: edge.To})
	}
	sort.Slice(options, func(i, j int) bool {
		if options[i].Action == options[j].Action {
			return options[i].To < options[j].To
		}
		return options[i].Action < options[j].Action
	})
	return options
}

// Edges returns a copy of the declared edges, optionally filtered by type.
func (p *Policy) Edges(entity EntityType) []Edge {
	if p == nil {
		return nil
	}
	out := make([]Edge, 0, len(p.edges))
	for _, edge := range p.edges {
		if entity != "" && edge.Type != entity {
			continue
		}
		out = append(out, edge)
	}
	return out
}

// Reachable reports whether some declared edge of the type enters the state.
// Initial state pending is always reachable.
func (p *Policy) Reachable(entity EntityType, to State) bool {
	if to == StatePending {
		return true
	}
	for _, edge := range p.Edges(entity) {
		if edge.To == to {
			return true
		}
	}
	return false
}
