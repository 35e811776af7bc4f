package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-points-api/internal/middleware"
	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/repository"
	"github.com/noah-isme/activity-points-api/internal/workflow"
)

func TestAuditRecorderCleansFreeText(t *testing.T) {
	repo := &memoryRecordRepo{}
	recorder := NewAuditRecorder(repo, nil, testLogger())
	ctx := middleware.ContextWithCorrelation(context.Background(), "corr-42")

	record, err := recorder.Record(ctx, TransitionEntry{
		EntityID:   "claim-1",
		EntityType: workflow.EntityActivityClaim,
		FromState:  workflow.StatePending,
		ToState:    workflow.StateProctorRejected,
		Action:     " Reject ",
		Actor:      workflow.Actor{ID: "proctor-1", Role: "Proctor"},
		Outcome:    workflow.OutcomeApplied,
		Reason:     "<script>alert(1)</script>missing Q&A certificate",
		Version:    2,
		Details: map[string]interface{}{
			"remarks":          "<b>see</b> attached",
			"requested_reason": "R&D <i>only</i>",
			"attempt":          2,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "reject", record.Action)
	require.Equal(t, "proctor", record.ActorRole)
	require.Equal(t, "missing Q&A certificate", record.Reason)
	require.Equal(t, "corr-42", record.CorrelationID)
	require.Equal(t, "see attached", record.Details["remarks"])
	require.Equal(t, "R&D only", record.Details["requested_reason"])
	require.Equal(t, 2, record.Details["attempt"])
	require.NotZero(t, record.ID)

	history, total, err := recorder.History(context.Background(), repository.TransitionRecordFilter{EntityID: "claim-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, history, 1)
}

func TestAuditRecorderRejectsIncompleteEntries(t *testing.T) {
	recorder := NewAuditRecorder(&memoryRecordRepo{}, nil, testLogger())

	_, err := recorder.Record(context.Background(), TransitionEntry{Action: workflow.ActionVerify, Outcome: workflow.OutcomeApplied})
	require.Error(t, err)

	_, err = recorder.Record(context.Background(), TransitionEntry{EntityID: "e-1", Action: workflow.ActionVerify, Outcome: "replayed"})
	require.Error(t, err)
}

func TestAuditRecorderSurfacesAppendFailure(t *testing.T) {
	repo := &memoryRecordRepo{appendErr: errors.New("connection reset")}
	recorder := NewAuditRecorder(repo, nil, testLogger())

	_, err := recorder.Record(context.Background(), TransitionEntry{
		EntityID: "e-1",
		Action:   workflow.ActionApprove,
		Actor:    workflow.Actor{ID: "hod-1", Role: workflow.RoleHOD},
		Outcome:  workflow.OutcomeApplied,
	})
	require.EqualError(t, err, "connection reset")
}

func TestAuditRecorderPublishesToRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer redisClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := redisClient.Subscribe(ctx, "activity:transitions")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	recorder := NewAuditRecorder(&memoryRecordRepo{}, NewTransitionPublisher(redisClient, nil, "activity"), testLogger())
	_, err = recorder.Record(ctx, TransitionEntry{
		EntityID:   "event-1",
		EntityType: workflow.EntityEvent,
		FromState:  workflow.StatePending,
		ToState:    workflow.StateActive,
		Action:     workflow.ActionApprove,
		Actor:      workflow.Actor{ID: "hod-1", Role: workflow.RoleHOD},
		Outcome:    workflow.OutcomeApplied,
		Version:    2,
	})
	require.NoError(t, err)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event TransitionEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	require.Equal(t, "event-1", event.Record.EntityID)
	require.Equal(t, "active", event.Record.ToState)
	require.NotEmpty(t, event.Source)
}

func TestAuditRecorderIgnoresPublishFailure(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer redisClient.Close()
	server.Close()

	repo := &memoryRecordRepo{}
	recorder := NewAuditRecorder(repo, NewTransitionPublisher(redisClient, nil, "activity"), testLogger())

	_, err = recorder.Record(context.Background(), TransitionEntry{
		EntityID: "event-1",
		Action:   workflow.ActionApprove,
		Actor:    workflow.Actor{ID: "hod-1", Role: workflow.RoleHOD},
		Outcome:  workflow.OutcomeApplied,
	})
	require.NoError(t, err)
	require.Len(t, repo.records, 1)
}

func TestTransitionPublisherWithoutBrokers(t *testing.T) {
	publisher := NewTransitionPublisher(nil, nil, "")
	require.NoError(t, publisher.Publish(context.Background(), models.TransitionRecord{EntityID: "e-1"}))
}
