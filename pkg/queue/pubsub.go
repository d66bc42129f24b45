package queue

import (
	"context"
	"encoding/json"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/heimdex/heimdex-backend/pkg/config"
	"github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
)

// Publisher is the slice of the Pub/Sub publisher the durable backend uses.
type Publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult
}

// PublishResult resolves once the broker has accepted the message.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// Durable hands jobs to Pub/Sub. Enqueue blocks until the broker
// acknowledges the message so a failed publish can be surfaced before the
// submission is accepted.
type Durable struct {
	publisher Publisher
	logg      *logger.Logger
}

func NewDurable(publisher Publisher, logg *logger.Logger) *Durable {
	return &Durable{publisher: publisher, logg: logg}
}

func (q *Durable) Backend() string {
	return config.QueueBackendDurable
}

func (q *Durable) Enqueue(ctx context.Context, msg Message) error {
	if q.publisher == nil {
		return errors.New(errors.CodeQueueUnavail, "queue backend is not configured")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "encode job message")
	}

	result := q.publisher.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"job_id":   msg.JobID,
			"job_type": string(msg.JobType),
			"org_id":   msg.OrgID,
		},
	})
	if result == nil {
		return errors.New(errors.CodeQueueUnavail, "queue backend is not configured")
	}

	if _, err := result.Get(ctx); err != nil {
		return errors.Wrap(errors.CodeQueueUnavail, err, "publish job message")
	}

	if q.logg != nil {
		q.logg.Info(q.logg.WithJobID(ctx, msg.JobID), "job message published")
	}
	return nil
}

// NewGCPPublisher adapts the concrete Pub/Sub publisher to the Publisher
// interface used here.
func NewGCPPublisher(p *gcppubsub.Publisher) Publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{p}
}

type gcpPublisher struct {
	publisher *gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	if p == nil || p.publisher == nil {
		return nil
	}
	return p.publisher.Publish(ctx, msg)
}
