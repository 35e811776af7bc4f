package service

import (
	"gorm.io/datatypes"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

func snapshotFromModel(entity models.WorkflowEntity) workflow.Snapshot {
	payload := make(map[string]any, len(entity.Payload))
	for k, v := range entity.Payload {
		payload[k] = v
	}
	return workflow.Snapshot{
		ID:        entity.ID,
		Type:      workflow.EntityType(entity.EntityType),
		OwnerRef:  entity.OwnerRef,
		State:     workflow.State(entity.State),
		Version:   entity.Version,
		Payload:   payload,
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}

func modelFromSnapshot(snapshot workflow.Snapshot) models.WorkflowEntity {
	payload := datatypes.JSONMap{}
	for k, v := range snapshot.Payload {
		payload[k] = v
	}
	return models.WorkflowEntity{
		ID:         snapshot.ID,
		EntityType: string(snapshot.Type),
		OwnerRef:   snapshot.OwnerRef,
		State:      string(snapshot.State),
		Version:    snapshot.Version,
		Payload:    payload,
		CreatedAt:  snapshot.CreatedAt,
		UpdatedAt:  snapshot.UpdatedAt,
	}
}
