package models

import (
	"time"

	"gorm.io/datatypes"
)

// TransitionRecord is one immutable audit row for a transition attempt.
type TransitionRecord struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	EntityID      string            `gorm:"size:36;not null;index:idx_transition_records_entity,priority:1" json:"entity_id"`
	EntityType    string            `gorm:"size:32;not null" json:"entity_type"`
	FromState     string            `gorm:"size:32;not null" json:"from_state"`
	ToState       string            `gorm:"size:32" json:"to_state"`
	Action        string            `gorm:"size:32;not null" json:"action"`
	ActorRole     string            `gorm:"size:32;not null" json:"actor_role"`
	ActorID       string            `gorm:"size:64;not null;index" json:"actor_id"`
	Outcome       string            `gorm:"size:16;not null;index" json:"outcome"`
	Reason        string            `gorm:"type:text" json:"reason,omitempty"`
	Version       int64             `gorm:"not null" json:"version"`
	CorrelationID string            `gorm:"size:64" json:"correlation_id,omitempty"`
	Details       datatypes.JSONMap `gorm:"type:json" json:"details"`
	RecordedAt    time.Time         `gorm:"not null;index:idx_transition_records_entity,priority:2" json:"recorded_at"`
}

// TableName pins the audit table name.
func (TransitionRecord) TableName() string {
	return "transition_records"
}
