package models

import (
	"time"

	"gorm.io/datatypes"
)

// WorkflowEntity is the persisted row behind claims, documents, events and categories.
// Version is the optimistic concurrency token; it only changes through a
// conditional update on (id, version).
type WorkflowEntity struct {
	ID         string            `gorm:"primaryKey;size:36" json:"id"`
	EntityType string            `gorm:"size:32;not null;index:idx_workflow_entities_type_state,priority:1" json:"entity_type"`
	OwnerRef   string            `gorm:"size:64;not null;index" json:"owner_ref"`
	State      string            `gorm:"size:32;not null;index:idx_workflow_entities_type_state,priority:2" json:"state"`
	Version    int64             `gorm:"not null;default:1" json:"version"`
	Payload    datatypes.JSONMap `gorm:"type:json" json:"payload"`
	CreatedBy  string            `gorm:"size:64" json:"created_by"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// TableName keeps a stable table name independent of struct renames.
func (WorkflowEntity) TableName() string {
	return "workflow_entities"
}
