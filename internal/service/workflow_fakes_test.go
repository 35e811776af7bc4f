package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/repository"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type memoryEntityRepo struct {
	mu   sync.Mutex
	rows map[string]models.WorkflowEntity
	// beforeSwap runs inside CompareAndSwap before the version check and may
	// mutate the stored row to simulate a concurrent writer.
	beforeSwap func(row *models.WorkflowEntity)
}

func newMemoryEntityRepo() *memoryEntityRepo {
	return &memoryEntityRepo{rows: map[string]models.WorkflowEntity{}}
}

func (m *memoryEntityRepo) Create(ctx context.Context, entity *models.WorkflowEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[entity.ID]; exists {
		return errors.New("duplicate id")
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now()
	}
	m.rows[entity.ID] = copyEntity(*entity)
	return nil
}

func (m *memoryEntityRepo) GetByID(ctx context.Context, id string) (models.WorkflowEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return models.WorkflowEntity{}, gorm.ErrRecordNotFound
	}
	return copyEntity(row), nil
}

func (m *memoryEntityRepo) CompareAndSwap(ctx context.Context, entity *models.WorkflowEntity, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[entity.ID]
	if !ok {
		return false, nil
	}
	if m.beforeSwap != nil {
		m.beforeSwap(&row)
		m.rows[entity.ID] = row
	}
	if row.Version != expectedVersion {
		return false, nil
	}
	row.State = entity.State
	row.Version = entity.Version
	row.Payload = entity.Payload
	row.UpdatedAt = entity.UpdatedAt
	m.rows[entity.ID] = copyEntity(row)
	return true, nil
}

func (m *memoryEntityRepo) List(ctx context.Context, filter repository.WorkflowEntityFilter) ([]models.WorkflowEntity, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]models.WorkflowEntity, 0)
	for _, row := range m.rows {
		if filter.EntityType != "" && row.EntityType != filter.EntityType {
			continue
		}
		if filter.State != "" && row.State != filter.State {
			continue
		}
		if filter.OwnerRef != "" && row.OwnerRef != filter.OwnerRef {
			continue
		}
		items = append(items, copyEntity(row))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, int64(len(items)), nil
}

func (m *memoryEntityRepo) get(id string) models.WorkflowEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyEntity(m.rows[id])
}

func copyEntity(row models.WorkflowEntity) models.WorkflowEntity {
	payload := datatypes.JSONMap{}
	for k, v := range row.Payload {
		payload[k] = v
	}
	row.Payload = payload
	return row
}

type memoryRecordRepo struct {
	mu        sync.Mutex
	records   []models.TransitionRecord
	appendErr error
}

func (m *memoryRecordRepo) Append(ctx context.Context, record *models.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	record.ID = uint(len(m.records) + 1)
	m.records = append(m.records, *record)
	return nil
}

func (m *memoryRecordRepo) List(ctx context.Context, filter repository.TransitionRecordFilter) ([]models.TransitionRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]models.TransitionRecord, 0)
	for i := len(m.records) - 1; i >= 0; i-- {
		record := m.records[i]
		if filter.EntityID != "" && record.EntityID != filter.EntityID {
			continue
		}
		if filter.EntityType != "" && record.EntityType != filter.EntityType {
			continue
		}
		if filter.Outcome != "" && record.Outcome != filter.Outcome {
			continue
		}
		if filter.ActorID != "" && record.ActorID != filter.ActorID {
			continue
		}
		if filter.AfterVersion > 0 && record.Version <= filter.AfterVersion {
			continue
		}
		items = append(items, record)
	}
	return items, int64(len(items)), nil
}

func (m *memoryRecordRepo) FindLatestApplied(ctx context.Context, entityID, action, actorID string) (models.TransitionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		record := m.records[i]
		if record.EntityID == entityID && record.Action == action && record.ActorID == actorID && record.Outcome == "applied" {
			return record, true, nil
		}
	}
	return models.TransitionRecord{}, false, nil
}

func (m *memoryRecordRepo) byOutcome(outcome string) []models.TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []models.TransitionRecord
	for _, record := range m.records {
		if record.Outcome == outcome {
			items = append(items, record)
		}
	}
	return items
}

type recordingListener struct {
	mu        sync.Mutex
	decisions []workflow.Decision
}

func (l *recordingListener) TransitionApplied(ctx context.Context, decision workflow.Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, decision)
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.decisions)
}
