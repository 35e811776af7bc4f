package workflow

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Decision is the engine's accepted outcome: the edge taken and the snapshot
// that should replace the current one.
type Decision struct {
	Edge Edge
	Prev Snapshot
	Next Snapshot
}

// Engine evaluates requests against a policy. It performs no I/O.
type Engine struct {
	policy *Policy
}

// NewEngine builds an engine over the policy, falling back to DefaultPolicy.
func NewEngine(policy *Policy) *Engine {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Engine{policy: policy}
}

// Policy exposes the table the engine evaluates against.
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Evaluate validates req against the snapshot. Checks short-circuit in order:
// existence and finality, policy lookup (including edge guards), then payload.
func (e *Engine) Evaluate(current Snapshot, req Request) (Decision, error) {
	if current.ID == "" {
		return Decision{}, ErrNotFound.WithMessagef("entity %q not found", req.EntityID)
	}

	available := e.policy.AvailableFor(current, req.Actor.Role)

	if current.State.Terminal() && !req.Action.Override() {
		return Decision{}, ErrAlreadyFinalized.
			WithMessagef("%s is already %s", current.Type, current.State).
			WithAvailable(available)
	}

	edge, ok := e.policy.Lookup(current.Type, current.State, req.Action, req.Actor.Role)
	if !ok {
		return Decision{}, ErrForbidden.
			WithMessagef("role %q may not %s a %s in state %s", req.Actor.Role, req.Action, current.Type, current.State).
			WithAvailable(available)
	}

	if err := checkGuard(edge, current); err != nil {
		return Decision{}, err.WithAvailable(available)
	}

	updates, err := validatePayload(edge, current, req.Payload)
	if err != nil {
		return Decision{}, err.WithAvailable(available)
	}

	next := current.Clone()
	for k, v := range updates {
		next.Payload[k] = v
	}
	next.State = edge.To
	next.Version = current.Version + 1

	return Decision{Edge: edge, Prev: current, Next: next}, nil
}

func checkGuard(edge Edge, current Snapshot) *Error {
	switch edge.Guard {
	case GuardNone:
		return nil
	case GuardProctorSignoffWaived:
		required, ok := current.Payload[PayloadRequiresProctorSignoff].(bool)
		if !ok || required {
			return ErrForbidden.WithMessagef("claim %s requires proctor verification before HOD decision", current.ID)
		}
		return nil
	default:
		return ErrForbidden.WithMessagef("unknown guard %q", edge.Guard)
	}
}

func validatePayload(edge Edge, current Snapshot, payload map[string]any) (map[string]any, *Error) {
	updates := make(map[string]any, len(payload))

	for key, value := range payload {
		switch key {
		case PayloadReason, PayloadRemarks:
			text, ok := value.(string)
			if !ok {
				return nil, ErrInvalidPayload.WithMessagef("%s must be a string", key)
			}
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				updates[key] = trimmed
			}
		case PayloadPoints:
			if current.Type != EntityActivityClaim {
				return nil, ErrInvalidPayload.WithMessagef("points are only accepted on activity claims")
			}
			points, err := wholeNumber(value)
			if err != nil {
				return nil, ErrInvalidPayload.WithMessagef("points: %v", err)
			}
			updates[key] = points
		default:
			return nil, ErrInvalidPayload.WithMessagef("unsupported payload field %q", key)
		}
	}

	if edge.Action.Rejecting() {
		if _, ok := updates[PayloadReason]; !ok {
			return nil, ErrInvalidPayload.WithMessagef("%s requires a non-empty reason", edge.Action)
		}
	}

	if current.Type == EntityActivityClaim {
		points, hasPoints := updates[PayloadPoints]
		if !hasPoints && edge.To == StateApproved {
			existing, err := wholeNumber(current.Payload[PayloadPoints])
			if err != nil {
				return nil, ErrInvalidPayload.WithMessagef("claim points: %v", err)
			}
			points, hasPoints = existing, true
		}
		if hasPoints {
			if err := checkPointsRange(points.(int64), current.Payload[PayloadMaxPoints]); err != nil {
				return nil, err
			}
		}
	}

	return updates, nil
}

func checkPointsRange(points int64, rawMax any) *Error {
	if points < 0 {
		return ErrInvalidPayload.WithMessagef("points must not be negative")
	}
	if rawMax == nil {
		return nil
	}
	maxPoints, err := wholeNumber(rawMax)
	if err != nil {
		return ErrInvalidPayload.WithMessagef("category max_points: %v", err)
	}
	if points > maxPoints {
		return ErrInvalidPayload.WithMessagef("points %d exceed category maximum %d", points, maxPoints)
	}
	return nil
}

const maxExactFloat = 1 << 53

// wholeNumber accepts the numeric shapes a payload map may hold after JSON
// decoding or direct construction.
func wholeNumber(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, fmt.Errorf("out of range")
		}
		return int64(v), nil
	case float32:
		return wholeNumber(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, fmt.Errorf("must be a whole number")
		}
		// beyond 2^53 a float no longer holds every integer exactly
		if math.Abs(v) > maxExactFloat {
			return 0, fmt.Errorf("out of range")
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

// WholeNumber exposes the payload number coercion used by the engine.
func WholeNumber(value any) (int64, error) {
	return wholeNumber(value)
}
