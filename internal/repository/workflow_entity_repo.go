package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/activity-points-api/internal/models"
)

// WorkflowEntityFilter narrows entity listings.
type WorkflowEntityFilter struct {
	Page       int
	PageSize   int
	EntityType string
	State      string
	OwnerRef   string
}

// WorkflowEntityRepository persists workflow entities. CompareAndSwap is the
// only method that mutates an existing row.
type WorkflowEntityRepository interface {
	Create(ctx context.Context, entity *models.WorkflowEntity) error
	GetByID(ctx context.Context, id string) (models.WorkflowEntity, error)
	CompareAndSwap(ctx context.Context, entity *models.WorkflowEntity, expectedVersion int64) (bool, error)
	List(ctx context.Context, filter WorkflowEntityFilter) ([]models.WorkflowEntity, int64, error)
}

type workflowEntityRepository struct {
	db *gorm.DB
}

// NewWorkflowEntityRepository constructs the entity repository.
func NewWorkflowEntityRepository(db *gorm.DB) WorkflowEntityRepository {
	return &workflowEntityRepository{db: db}
}

func (r *workflowEntityRepository) Create(ctx context.Context, entity *models.WorkflowEntity) error {
	return r.db.WithContext(ctx).Create(entity).Error
}

func (r *workflowEntityRepository) GetByID(ctx context.Context, id string) (models.WorkflowEntity, error) {
	var entity models.WorkflowEntity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return models.WorkflowEntity{}, err
	}
	return entity, nil
}

// CompareAndSwap writes state, version and payload only when the stored
// version still equals expectedVersion. It reports false without error when
// the row moved on or does not exist.
func (r *workflowEntityRepository) CompareAndSwap(ctx context.Context, entity *models.WorkflowEntity, expectedVersion int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WorkflowEntity{}).
		Where("id = ? AND version = ?", entity.ID, expectedVersion).
		Updates(map[string]interface{}{
			"state":      entity.State,
			"version":    entity.Version,
			"payload":    entity.Payload,
			"updated_at": entity.UpdatedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *workflowEntityRepository) List(ctx context.Context, filter WorkflowEntityFilter) ([]models.WorkflowEntity, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.WorkflowEntity{})

	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}

	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}

	if filter.OwnerRef != "" {
		query = query.Where("owner_ref = ?", filter.OwnerRef)
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

	var entities []models.WorkflowEntity
	if err := query.Order("created_at DESC").Order("id").Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return entities, total, nil
}
