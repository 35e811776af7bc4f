package workflow

import "fmt"

var (
	knownStates  = []State{StatePending, StateProctorVerified, StateProctorRejected, StateApproved, StateRejected, StateActive}
	knownActions = []Action{ActionVerify, ActionApprove, ActionReject, ActionOverrideVerify, ActionOverrideReject}
	knownRoles   = []Role{RoleStudent, RoleProctor, RoleHOD, RoleAdmin}
	knownGuards  = []Guard{GuardNone, GuardProctorSignoffWaived}
)

func contains[T comparable](values []T, v T) bool {
	for _, known := range values {
		if known == v {
			return true
		}
	}
	return false
}

// ValidateEdges lists the problems of a candidate policy table. An empty
// result means the edges can be loaded with NewPolicy without ambiguity.
func ValidateEdges(edges []Edge) []string {
	var problems []string
	seen := make(map[policyKey]int)

	for i, edge := range edges {
		at := fmt.Sprintf("edge %d (%s %s --%s--> %s)", i, edge.Type, edge.From, edge.Action, edge.To)

		if !edge.Type.Valid() {
			problems = append(problems, at+": unknown entity type")
		}
		if !contains(knownStates, edge.From) {
			problems = append(problems, at+": unknown source state")
		}
		if !contains(knownStates, edge.To) {
			problems = append(problems, at+": unknown target state")
		}
		if !contains(knownActions, edge.Action) {
			problems = append(problems, at+": unknown action")
		}
		if !contains(knownGuards, edge.Guard) {
			problems = append(problems, fmt.Sprintf("%s: unknown guard %q", at, edge.Guard))
		}
		if edge.From.Terminal() && !edge.Action.Override() {
			problems = append(problems, at+": terminal source state needs an override action")
		}
		if edge.To == StatePending {
			problems = append(problems, at+": edges may not return to pending")
		}
		if len(edge.Roles) == 0 {
			problems = append(problems, at+": no roles")
		}
		for _, role := range edge.Roles {
			if !contains(knownRoles, role) {
				problems = append(problems, fmt.Sprintf("%s: unknown role %q", at, role))
				continue
			}
			if role == RoleStudent {
				problems = append(problems, at+": students may not act on the workflow")
			}
			key := policyKey{entity: edge.Type, from: edge.From, action: edge.Action, role: role}
			if prev, dup := seen[key]; dup {
				problems = append(problems, fmt.Sprintf("%s: role %s duplicates edge %d", at, role, prev))
				continue
			}
			seen[key] = i
		}
	}
	return problems
}
