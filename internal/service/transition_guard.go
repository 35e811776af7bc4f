package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-points-api/internal/observability"
	"github.com/noah-isme/activity-points-api/internal/repository"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

// GuardResult reports whether a conditional write won.
type GuardResult string

const (
	GuardApplied  GuardResult = "applied"
	GuardConflict GuardResult = "conflict"
)

// TransitionGuard applies engine decisions to the store with a
// compare-and-swap on the version column. It holds no lock; concurrent
// writers for the same entity are arbitrated by the store.
type TransitionGuard interface {
	Apply(ctx context.Context, entityID string, expectedVersion int64, next workflow.Snapshot) (GuardResult, workflow.Snapshot, error)
}

type transitionGuard struct {
	repo   repository.WorkflowEntityRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewTransitionGuard constructs the concurrency guard.
func NewTransitionGuard(repo repository.WorkflowEntityRepository, logger zerolog.Logger) TransitionGuard {
	return &transitionGuard{
		repo:   repo,
		logger: logger.With().Str("component", "transition_guard").Logger(),
		now:    time.Now,
	}
}

func (g *transitionGuard) Apply(ctx context.Context, entityID string, expectedVersion int64, next workflow.Snapshot) (GuardResult, workflow.Snapshot, error) {
	if next.ID != entityID {
		return "", workflow.Snapshot{}, fmt.Errorf("snapshot %q does not belong to entity %q", next.ID, entityID)
	}
	if next.Version != expectedVersion+1 {
		return "", workflow.Snapshot{}, fmt.Errorf("next version %d must follow expected version %d", next.Version, expectedVersion)
	}

	next.UpdatedAt = g.now().UTC()
	row := modelFromSnapshot(next)

	swapped, err := g.repo.CompareAndSwap(ctx, &row, expectedVersion)
	if err != nil {
		return "", workflow.Snapshot{}, fmt.Errorf("conditional write for %s: %w", entityID, err)
	}
	if !swapped {
		observability.WorkflowConflicts().WithLabelValues(string(next.Type)).Inc()
		g.logger.Debug().
			Str("entity_id", entityID).
			Int64("expected_version", expectedVersion).
			Msg("conditional write lost the race")
		return GuardConflict, workflow.Snapshot{}, nil
	}

	return GuardApplied, next, nil
}
