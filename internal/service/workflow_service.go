package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-points-api/internal/observability"
	"github.com/noah-isme/activity-points-api/internal/repository"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

// DefaultTransitionRetries is how many times a lost conditional write is
// re-evaluated against a fresh snapshot before Contention is reported.
const DefaultTransitionRetries = 1

// TransitionResult is the outcome of RequestTransition.
type TransitionResult struct {
	Snapshot workflow.Snapshot
	Edge     workflow.Edge
	// Replayed is set when the same actor already applied this action and the
	// current snapshot is returned unchanged.
	Replayed bool
	Attempts int
}

// TransitionListener is notified after a transition is applied and audited.
type TransitionListener interface {
	TransitionApplied(ctx context.Context, decision workflow.Decision)
}

// WorkflowService is the single entry point for lifecycle changes.
type WorkflowService interface {
	RequestTransition(ctx context.Context, actor workflow.Actor, entityID string, action workflow.Action, payload map[string]any) (TransitionResult, error)
	Policy() *workflow.Policy
}

type workflowService struct {
	entities  repository.WorkflowEntityRepository
	records   repository.TransitionRecordRepository
	engine    *workflow.Engine
	guard     TransitionGuard
	audit     AuditRecorder
	listeners []TransitionListener
	retries   int
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// WorkflowOption customises the workflow service.
type WorkflowOption func(*workflowService)

// WithTransitionRetries overrides DefaultTransitionRetries. Negative values are ignored.
func WithTransitionRetries(retries int) WorkflowOption {
	return func(s *workflowService) {
		if retries >= 0 {
			s.retries = retries
		}
	}
}

// WithTransitionListener registers a listener for applied transitions.
func WithTransitionListener(listener TransitionListener) WorkflowOption {
	return func(s *workflowService) {
		if listener != nil {
			s.listeners = append(s.listeners, listener)
		}
	}
}

// NewWorkflowService wires the engine, guard and recorder together.
func NewWorkflowService(entities repository.WorkflowEntityRepository, records repository.TransitionRecordRepository, engine *workflow.Engine, guard TransitionGuard, audit AuditRecorder, logger zerolog.Logger, opts ...WorkflowOption) WorkflowService {
	if engine == nil {
		engine = workflow.NewEngine(nil)
	}
	s := &workflowService{
		entities:  entities,
		records:   records,
		engine:    engine,
		guard:     guard,
		audit:     audit,
		retries:   DefaultTransitionRetries,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "workflow_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/activity-points-api/internal/service/workflow"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *workflowService) Policy() *workflow.Policy {
	return s.engine.Policy()
}

func (s *workflowService) RequestTransition(ctx context.Context, actor workflow.Actor, entityID string, action workflow.Action, payload map[string]any) (TransitionResult, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.request_transition")
	span.SetAttributes(
		attribute.String("workflow.entity_id", entityID),
		attribute.String("workflow.action", string(action)),
		attribute.String("workflow.actor_role", string(actor.Role)),
	)
	defer span.End()

	start := s.now()
	req := workflow.Request{
		EntityID: strings.TrimSpace(entityID),
		Actor:    workflow.Actor{ID: strings.TrimSpace(actor.ID), Role: actor.Role},
		Action:   workflow.Action(strings.ToLower(strings.TrimSpace(string(action)))),
		Payload:  s.cleanPayload(payload),
	}

	result, err := s.requestTransition(ctx, req)

	outcome := "applied"
	switch {
	case err != nil:
		outcome = string(workflow.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	case result.Replayed:
		outcome = "replayed"
	}

	entityType := string(result.Snapshot.Type)
	if entityType == "" {
		entityType = "unknown"
	}
	observability.WorkflowTransitions().WithLabelValues(entityType, string(req.Action), outcome).Inc()
	observability.WorkflowTransitionLatency().WithLabelValues(entityType).Observe(time.Since(start).Seconds())

	span.SetAttributes(
		attribute.String("workflow.entity_type", entityType),
		attribute.String("workflow.outcome", outcome),
		attribute.Int("workflow.attempts", result.Attempts),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}

	return result, err
}

func (s *workflowService) requestTransition(ctx context.Context, req workflow.Request) (TransitionResult, error) {
	if req.EntityID == "" {
		return TransitionResult{}, workflow.ErrNotFound.WithMessagef("entity id is required")
	}
	if req.Actor.ID == "" {
		return TransitionResult{}, workflow.ErrForbidden.WithMessagef("caller identity is required")
	}

	attempts := s.retries + 1
	var current workflow.Snapshot
	for attempt := 1; attempt <= attempts; attempt++ {
		var err error
		current, err = s.load(ctx, req.EntityID)
		if err != nil {
			return TransitionResult{Attempts: attempt}, err
		}

		decision, evalErr := s.engine.Evaluate(current, req)
		if evalErr != nil {
			if workflow.KindOf(evalErr) == workflow.KindNotFound {
				return TransitionResult{Attempts: attempt}, evalErr
			}
			if replayed, ok := s.replay(ctx, current, req, evalErr); ok {
				replayed.Attempts = attempt
				return replayed, nil
			}
			s.recordRejection(ctx, current, req, evalErr)
			return TransitionResult{Snapshot: current, Attempts: attempt}, evalErr
		}

		outcome, applied, err := s.guard.Apply(ctx, current.ID, current.Version, decision.Next)
		if err != nil {
			return TransitionResult{Snapshot: current, Attempts: attempt}, err
		}
		if outcome == GuardConflict {
			s.logger.Debug().
				Str("entity_id", current.ID).
				Int64("version", current.Version).
				Int("attempt", attempt).
				Msg("transition conflict, re-reading snapshot")
			continue
		}

		decision.Next = applied
		result := TransitionResult{Snapshot: applied, Edge: decision.Edge, Attempts: attempt}

		_, auditErr := s.audit.Record(ctx, appliedEntry(decision, req))
		for _, listener := range s.listeners {
			listener.TransitionApplied(ctx, decision)
		}

		if auditErr != nil {
			// The state change is visible and is not rolled back; operators
			// reconcile from this log line.
			s.logger.Error().
				Err(auditErr).
				Str("entity_id", applied.ID).
				Str("entity_type", string(applied.Type)).
				Str("action", string(req.Action)).
				Str("actor_id", req.Actor.ID).
				Str("from_state", string(decision.Prev.State)).
				Str("to_state", string(applied.State)).
				Int64("version", applied.Version).
				Msg("transition applied but audit append failed")
			return result, workflow.ErrAuditWriteFailed.
				WithMessagef("%s %s moved to %s at version %d but was not audited", applied.Type, applied.ID, applied.State, applied.Version).
				Wrap(auditErr)
		}

		return result, nil
	}

	contention := workflow.ErrContention.
		WithMessagef("%s %s changed concurrently %d times", current.Type, current.ID, attempts).
		WithAvailable(s.engine.Policy().AvailableFor(current, req.Actor.Role))
	s.recordRejection(ctx, current, req, contention)
	return TransitionResult{Snapshot: current, Attempts: attempts}, contention
}

// cleanPayload strips markup from free text fields before evaluation so the
// entity payload and the audit trail hold the same value.
func (s *workflowService) cleanPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	cleaned := make(map[string]any, len(payload))
	for key, value := range payload {
		if text, ok := value.(string); ok && (key == workflow.PayloadReason || key == workflow.PayloadRemarks) {
			value = cleanText(s.sanitizer, text)
		}
		cleaned[key] = value
	}
	return cleaned
}

func (s *workflowService) load(ctx context.Context, entityID string) (workflow.Snapshot, error) {
	entity, err := s.entities.GetByID(ctx, entityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return workflow.Snapshot{}, nil
		}
		return workflow.Snapshot{}, fmt.Errorf("load entity %s: %w", entityID, err)
	}
	return snapshotFromModel(entity), nil
}

// replay recognises a resubmission of an action this actor already applied.
// Only rejections caused by the record having moved on qualify.
func (s *workflowService) replay(ctx context.Context, current workflow.Snapshot, req workflow.Request, evalErr error) (TransitionResult, bool) {
	kind := workflow.KindOf(evalErr)
	if kind != workflow.KindAlreadyFinalized && kind != workflow.KindForbidden {
		return TransitionResult{}, false
	}
	if s.records == nil {
		return TransitionResult{}, false
	}

	record, ok, err := s.records.FindLatestApplied(ctx, current.ID, string(req.Action), req.Actor.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("entity_id", current.ID).Msg("failed to look up prior transition")
		return TransitionResult{}, false
	}
	if !ok || record.Version > current.Version {
		return TransitionResult{}, false
	}

	// an override applied after the caller's transition has reversed it, so
	// the resubmission is not a retry of something still in effect
	later, _, err := s.records.List(ctx, repository.TransitionRecordFilter{
		EntityID:     current.ID,
		Outcome:      string(workflow.OutcomeApplied),
		AfterVersion: record.Version,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("entity_id", current.ID).Msg("failed to look up later transitions")
		return TransitionResult{}, false
	}
	for _, applied := range later {
		if workflow.Action(applied.Action).Override() {
			return TransitionResult{}, false
		}
	}

	s.logger.Info().
		Str("entity_id", current.ID).
		Str("action", string(req.Action)).
		Str("actor_id", req.Actor.ID).
		Int64("applied_version", record.Version).
		Msg("idempotent replay of applied transition")

	edge, _ := s.engine.Policy().Lookup(current.Type, workflow.State(record.FromState), req.Action, req.Actor.Role)
	return TransitionResult{Snapshot: current, Edge: edge, Replayed: true}, true
}

func (s *workflowService) recordRejection(ctx context.Context, current workflow.Snapshot, req workflow.Request, cause error) {
	details := map[string]interface{}{"message": cause.Error()}
	if remark, ok := req.Payload[workflow.PayloadReason].(string); ok && strings.TrimSpace(remark) != "" {
		details["requested_reason"] = remark
	}

	_, err := s.audit.Record(ctx, TransitionEntry{
		EntityID:   current.ID,
		EntityType: current.Type,
		FromState:  current.State,
		Action:     req.Action,
		Actor:      req.Actor,
		Outcome:    workflow.OutcomeRejected,
		Reason:     string(workflow.KindOf(cause)),
		Version:    current.Version,
		Details:    details,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("entity_id", current.ID).Str("action", string(req.Action)).Msg("failed to audit rejected transition")
	}
}

func appliedEntry(decision workflow.Decision, req workflow.Request) TransitionEntry {
	details := map[string]interface{}{}
	for _, key := range []string{workflow.PayloadRemarks, workflow.PayloadPoints} {
		if value, ok := decision.Next.Payload[key]; ok {
			if _, requested := req.Payload[key]; requested {
				details[key] = value
			}
		}
	}
	if decision.Edge.Guard != workflow.GuardNone {
		details["guard"] = string(decision.Edge.Guard)
	}

	reason, _ := decision.Next.Payload[workflow.PayloadReason].(string)
	if _, requested := req.Payload[workflow.PayloadReason]; !requested {
		reason = ""
	}

	return TransitionEntry{
		EntityID:   decision.Next.ID,
		EntityType: decision.Next.Type,
		FromState:  decision.Prev.State,
		ToState:    decision.Next.State,
		Action:     decision.Edge.Action,
		Actor:      req.Actor,
		Outcome:    workflow.OutcomeApplied,
		Reason:     reason,
		Version:    decision.Next.Version,
		Details:    details,
	}
}
