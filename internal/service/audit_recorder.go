package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/activity-points-api/internal/middleware"
	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/observability"
	"github.com/noah-isme/activity-points-api/internal/repository"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

// TransitionEntry captures one attempt to be appended to the audit trail.
type TransitionEntry struct {
	EntityID   string
	EntityType workflow.EntityType
	FromState  workflow.State
	ToState    workflow.State
	Action     workflow.Action
	Actor      workflow.Actor
	Outcome    workflow.Outcome
	Reason     string
	Version    int64
	Details    map[string]interface{}
}

// AuditRecorder appends transition attempts. Record returns only after the
// row is durable; fan-out to subscribers happens afterwards and never fails
// the call.
type AuditRecorder interface {
	Record(ctx context.Context, entry TransitionEntry) (models.TransitionRecord, error)
	History(ctx context.Context, filter repository.TransitionRecordFilter) ([]models.TransitionRecord, int64, error)
}

type auditRecorder struct {
	repo      repository.TransitionRecordRepository
	publisher TransitionPublisher
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuditRecorder constructs the recorder. publisher may be nil.
func NewAuditRecorder(repo repository.TransitionRecordRepository, publisher TransitionPublisher, logger zerolog.Logger) AuditRecorder {
	return &auditRecorder{
		repo:      repo,
		publisher: publisher,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "audit_recorder").Logger(),
		now:       time.Now,
	}
}

func (r *auditRecorder) Record(ctx context.Context, entry TransitionEntry) (models.TransitionRecord, error) {
	if strings.TrimSpace(entry.EntityID) == "" {
		return models.TransitionRecord{}, fmt.Errorf("entity id is required")
	}
	if entry.Action == "" {
		return models.TransitionRecord{}, fmt.Errorf("action is required")
	}
	if entry.Outcome != workflow.OutcomeApplied && entry.Outcome != workflow.OutcomeRejected {
		return models.TransitionRecord{}, fmt.Errorf("unknown outcome %q", entry.Outcome)
	}

	record := models.TransitionRecord{
		EntityID:      entry.EntityID,
		EntityType:    string(entry.EntityType),
		FromState:     string(entry.FromState),
		ToState:       string(entry.ToState),
		Action:        strings.ToLower(strings.TrimSpace(string(entry.Action))),
		ActorRole:     normalizeRole(string(entry.Actor.Role)),
		ActorID:       strings.TrimSpace(entry.Actor.ID),
		Outcome:       string(entry.Outcome),
		Reason:        cleanText(r.sanitizer, entry.Reason),
		Version:       entry.Version,
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
		Details:       r.details(entry.Details),
		RecordedAt:    r.now().UTC(),
	}

	if err := r.repo.Append(ctx, &record); err != nil {
		observability.AuditFailures().Inc()
		r.logger.Error().Err(err).Str("entity_id", record.EntityID).Str("action", record.Action).Msg("failed to persist transition record")
		return models.TransitionRecord{}, err
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, record); err != nil {
			r.logger.Warn().Err(err).Str("entity_id", record.EntityID).Msg("failed to publish transition record")
		}
	}

	return record, nil
}

func (r *auditRecorder) History(ctx context.Context, filter repository.TransitionRecordFilter) ([]models.TransitionRecord, int64, error) {
	return r.repo.List(ctx, filter)
}

// details copies entry details, cleaning any free text such as remarks or a
// requested reason the same way the reason column is cleaned.
func (r *auditRecorder) details(metadata map[string]interface{}) datatypes.JSONMap {
	cleaned := datatypes.JSONMap{}
	for key, value := range metadata {
		if text, ok := value.(string); ok {
			value = cleanText(r.sanitizer, text)
		}
		cleaned[key] = value
	}
	return cleaned
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
