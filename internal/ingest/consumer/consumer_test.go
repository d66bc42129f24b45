package consumer

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
	"github.com/heimdex/heimdex-backend/pkg/queue"
)

type stubRunner struct {
	executed []queue.Message
	err      error
}

func (r *stubRunner) Execute(_ context.Context, msg queue.Message) error {
	r.executed = append(r.executed, msg)
	return r.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: "consumer-test",
		Level:       zerolog.Disabled,
		Output:      io.Discard,
	})
}

func newTestConsumer(t *testing.T, runner *stubRunner) *Consumer {
	t.Helper()
	c, err := NewConsumer(runner, noopSubscriber{}, testLogger())
	if err != nil {
		t.Fatalf("building consumer: %v", err)
	}
	return c
}

type noopSubscriber struct{}

func (noopSubscriber) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

func envelope(t *testing.T, jobID string) []byte {
	t.Helper()
	data, err := json.Marshal(queue.Message{
		JobID:   jobID,
		OrgID:   "org-1",
		AssetID: "sha256:a",
	})
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return data
}

func TestProcessExecutesValidEnvelope(t *testing.T) {
	runner := &stubRunner{}
	c := newTestConsumer(t, runner)

	result := c.process(context.Background(), "m-1", envelope(t, "job-1"))
	if !result.ack || result.nack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(runner.executed) != 1 || runner.executed[0].JobID != "job-1" {
		t.Fatalf("runner should have seen the envelope, got %+v", runner.executed)
	}
}

func TestProcessAcksPoisonMessages(t *testing.T) {
	runner := &stubRunner{}
	c := newTestConsumer(t, runner)

	if result := c.process(context.Background(), "m-1", []byte("{not json")); !result.ack {
		t.Fatalf("malformed envelopes must be acked, got %+v", result)
	}
	if result := c.process(context.Background(), "m-2", []byte(`{"job_id":""}`)); !result.ack {
		t.Fatalf("envelopes without a job id must be acked, got %+v", result)
	}
	if len(runner.executed) != 0 {
		t.Fatalf("poison messages must not reach the runner, got %+v", runner.executed)
	}
}

func TestProcessNacksRetryableFailures(t *testing.T) {
	runner := &stubRunner{err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
	c := newTestConsumer(t, runner)

	result := c.process(context.Background(), "m-1", envelope(t, "job-1"))
	if !result.nack {
		t.Fatalf("retryable failures must be nacked for redelivery, got %+v", result)
	}
}

func TestProcessAcksPermanentFailures(t *testing.T) {
	runner := &stubRunner{err: pkgerrors.New(pkgerrors.CodeValidation, "bad payload")}
	c := newTestConsumer(t, runner)

	result := c.process(context.Background(), "m-1", envelope(t, "job-1"))
	if !result.ack || result.nack {
		t.Fatalf("permanent failures must be acked, got %+v", result)
	}
}
