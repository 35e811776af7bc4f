package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/activity-points-api/internal/models"
)

// TransitionRecordFilter narrows audit trail queries.
type TransitionRecordFilter struct {
	Page       int
	PageSize   int
	EntityID   string
	EntityType string
	ActorID    string
	Outcome    string

	// AfterVersion keeps only records written for versions above it.
	AfterVersion int64
}

// TransitionRecordRepository is the append-only audit store. It never updates
// or deletes rows.
type TransitionRecordRepository interface {
	Append(ctx context.Context, record *models.TransitionRecord) error
	List(ctx context.Context, filter TransitionRecordFilter) ([]models.TransitionRecord, int64, error)
	FindLatestApplied(ctx context.Context, entityID, action, actorID string) (models.TransitionRecord, bool, error)
}

type transitionRecordRepository struct {
	db *gorm.DB
}

// NewTransitionRecordRepository constructs the audit repository.
func NewTransitionRecordRepository(db *gorm.DB) TransitionRecordRepository {
	return &transitionRecordRepository{db: db}
}

func (r *transitionRecordRepository) Append(ctx context.Context, record *models.TransitionRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *transitionRecordRepository) List(ctx context.Context, filter TransitionRecordFilter) ([]models.TransitionRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TransitionRecord{})

	if filter.EntityID != "" {
		query = query.Where("entity_id = ?", filter.EntityID)
	}

	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}

	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}

	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}

	if filter.AfterVersion > 0 {
		query = query.Where("version > ?", filter.AfterVersion)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var records []models.TransitionRecord
	if err := query.Order("recorded_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (r *transitionRecordRepository) FindLatestApplied(ctx context.Context, entityID, action, actorID string) (models.TransitionRecord, bool, error) {
	var record models.TransitionRecord
	err := r.db.WithContext(ctx).
		Where("entity_id = ? AND action = ? AND actor_id = ? AND outcome = ?", entityID, action, actorID, "applied").
		Order("version DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.TransitionRecord{}, false, nil
		}
		return models.TransitionRecord{}, false, err
	}
	return record, true, nil
}
