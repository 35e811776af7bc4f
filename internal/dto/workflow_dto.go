package dto

import (
	"time"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

// TransitionRequest is the body of POST /entities/:id/transitions. Unknown
// actions are not rejected here; the policy table answers them as forbidden.
type TransitionRequest struct {
	Action  string                 `json:"action" validate:"required,max=32"`
	Payload map[string]interface{} `json:"payload"`
}

// EntityResponse serialises a workflow entity snapshot.
type EntityResponse struct {
	ID         string                 `json:"id"`
	EntityType string                 `json:"entity_type"`
	OwnerRef   string                 `json:"owner_ref"`
	State      string                 `json:"state"`
	Version    int64                  `json:"version"`
	Terminal   bool                   `json:"terminal"`
	Payload    map[string]interface{} `json:"payload"`
	Available  []workflow.Option      `json:"available,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// NewEntityResponse maps a snapshot into its response shape.
func NewEntityResponse(snapshot workflow.Snapshot) EntityResponse {
	payload := make(map[string]interface{}, len(snapshot.Payload))
	for k, v := range snapshot.Payload {
		payload[k] = v
	}
	return EntityResponse{
		ID:         snapshot.ID,
		EntityType: string(snapshot.Type),
		OwnerRef:   snapshot.OwnerRef,
		State:      string(snapshot.State),
		Version:    snapshot.Version,
		Terminal:   snapshot.State.Terminal(),
		Payload:    payload,
		CreatedAt:  snapshot.CreatedAt,
		UpdatedAt:  snapshot.UpdatedAt,
	}
}

// TransitionResponse is returned when a transition applied or was replayed.
type TransitionResponse struct {
	Entity   EntityResponse `json:"entity"`
	Action   string         `json:"action"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Replayed bool           `json:"replayed"`
	Attempts int            `json:"attempts"`
}

// WorkflowErrorResponse describes a typed workflow failure.
type WorkflowErrorResponse struct {
	Kind      string            `json:"kind"`
	Message   string            `json:"message"`
	Available []workflow.Option `json:"available"`
	Entity    *EntityResponse   `json:"entity,omitempty"`
}

// TransitionRecordResponse serialises one audit row.
type TransitionRecordResponse struct {
	ID            uint                   `json:"id"`
	EntityID      string                 `json:"entity_id"`
	EntityType    string                 `json:"entity_type"`
	FromState     string                 `json:"from_state"`
	ToState       string                 `json:"to_state,omitempty"`
	Action        string                 `json:"action"`
	ActorRole     string                 `json:"actor_role"`
	ActorID       string                 `json:"actor_id"`
	Outcome       string                 `json:"outcome"`
	Reason        string                 `json:"reason,omitempty"`
	Version       int64                  `json:"version"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	RecordedAt    time.Time              `json:"recorded_at"`
}

// NewTransitionRecordResponse maps an audit model.
func NewTransitionRecordResponse(record models.TransitionRecord) TransitionRecordResponse {
	return TransitionRecordResponse{
		ID:            record.ID,
		EntityID:      record.EntityID,
		EntityType:    record.EntityType,
		FromState:     record.FromState,
		ToState:       record.ToState,
		Action:        record.Action,
		ActorRole:     record.ActorRole,
		ActorID:       record.ActorID,
		Outcome:       record.Outcome,
		Reason:        record.Reason,
		Version:       record.Version,
		CorrelationID: record.CorrelationID,
		Details:       map[string]interface{}(record.Details),
		RecordedAt:    record.RecordedAt,
	}
}

// TransitionHistoryResponse wraps a paginated audit trail.
type TransitionHistoryResponse struct {
	Items      []TransitionRecordResponse `json:"items"`
	Pagination PaginationMeta             `json:"pagination"`
}

// PolicyResponse lists the declared edges.
type PolicyResponse struct {
	Edges []workflow.Edge `json:"edges"`
}
