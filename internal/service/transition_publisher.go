package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/activity-points-api/internal/models"
)

// TransitionPublisher fans audit records out to optional notifiers.
type TransitionPublisher interface {
	Publish(ctx context.Context, record models.TransitionRecord) error
}

// TransitionEvent is the message body placed on Redis and NATS.
type TransitionEvent struct {
	Source string                  `json:"source"`
	Record models.TransitionRecord `json:"record"`
	SentAt time.Time               `json:"sent_at"`
}

type brokerPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
}

// NewTransitionPublisher publishes on "<channelBase>:transitions" in Redis and
// "<channelBase>.transitions" in NATS. Either client may be nil.
func NewTransitionPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string) TransitionPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":transitions"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".transitions"
	}

	return &brokerPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		nodeID:       uuid.NewString(),
	}
}

func (p *brokerPublisher) Publish(ctx context.Context, record models.TransitionRecord) error {
	payload, err := json.Marshal(TransitionEvent{
		Source: p.nodeID,
		Record: record,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var errs []error
	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
