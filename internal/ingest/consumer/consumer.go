package consumer

import (
	"context"
	"encoding/json"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"

	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
	"github.com/heimdex/heimdex-backend/pkg/queue"
)

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer drains the ingest job subscription and hands each envelope to
// the job runner. Poison messages are acked so they do not loop forever;
// infrastructure failures are nacked for redelivery.
type Consumer struct {
	runner       queue.Runner
	subscription subscriber
	logg         *logger.Logger
}

// NewConsumer constructs a consumer bound to the ingest subscription.
func NewConsumer(runner queue.Runner, subscription subscriber, logg *logger.Logger) (*Consumer, error) {
	if runner == nil {
		return nil, errors.New("job runner is required")
	}
	if subscription == nil {
		return nil, errors.New("ingest subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		runner:       runner,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes messages until the context is canceled or the subscription
// errors.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, data []byte) processResult {
	logCtx := c.logg.WithField(ctx, "message_id", messageID)

	var envelope queue.Message
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode job envelope", err)
		return processResult{ack: true}
	}
	if envelope.JobID == "" {
		c.logg.Error(logCtx, "job envelope missing job_id", errors.New("empty job_id"))
		return processResult{ack: true}
	}

	if err := c.runner.Execute(ctx, envelope); err != nil {
		if pkgerrors.Retryable(err) {
			c.logg.Error(logCtx, "job execution failed, requeueing delivery", err)
			return processResult{nack: true}
		}
		c.logg.Error(logCtx, "job execution failed permanently", err)
		return processResult{ack: true}
	}
	return processResult{ack: true}
}
