package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/heimdex/heimdex-backend/pkg/enums"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
)

type stubRunner struct {
	mu       sync.Mutex
	executed []Message
	err      error
}

func (r *stubRunner) Execute(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, msg)
	return r.err
}

func (r *stubRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.executed)
}

func TestInline_EnqueueExecutesRunner(t *testing.T) {
	runner := &stubRunner{}
	q := NewInline(runner, nil)

	msg := Message{JobID: "j1", JobType: enums.JobTypeProbe, OrgID: "org-1", AssetID: "sha256:abc"}
	if err := q.Enqueue(context.Background(), msg); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if runner.count() != 1 {
		t.Fatalf("expected one execution, got %d", runner.count())
	}
	runner.mu.Lock()
	got := runner.executed[0]
	runner.mu.Unlock()
	if got.JobID != "j1" || got.JobType != enums.JobTypeProbe {
		t.Fatalf("unexpected message %+v", got)
	}
}

func TestInline_SurvivesCanceledSubmitContext(t *testing.T) {
	runner := &stubRunner{}
	q := NewInline(runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Enqueue(ctx, Message{JobID: "j2"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if runner.count() != 1 {
		t.Fatal("job accepted before cancellation must still run")
	}
}

type slowRunner struct {
	delay time.Duration
	done  atomic.Bool
}

func (r *slowRunner) Execute(context.Context, Message) error {
	time.Sleep(r.delay)
	r.done.Store(true)
	return nil
}

func TestInline_EnqueueBlocksUntilJobCompletes(t *testing.T) {
	runner := &slowRunner{delay: 50 * time.Millisecond}
	q := NewInline(runner, nil)

	if err := q.Enqueue(context.Background(), Message{JobID: "j4"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if !runner.done.Load() {
		t.Fatal("enqueue returned before the job finished")
	}
}

func TestInline_RunnerErrorDoesNotSurface(t *testing.T) {
	runner := &stubRunner{err: errors.New("boom")}
	q := NewInline(runner, nil)

	if err := q.Enqueue(context.Background(), Message{JobID: "j3"}); err != nil {
		t.Fatalf("enqueue must accept the job regardless of runner outcome: %v", err)
	}
}

type stubPublisher struct {
	published []*gcppubsub.Message
	err       error
}

type stubResult struct {
	err error
}

func (r stubResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

func (p *stubPublisher) Publish(_ context.Context, msg *gcppubsub.Message) PublishResult {
	p.published = append(p.published, msg)
	return stubResult{err: p.err}
}

func TestDurable_EnqueuePublishesEnvelope(t *testing.T) {
	pub := &stubPublisher{}
	q := NewDurable(pub, nil)

	msg := Message{
		JobID:      "j1",
		JobType:    enums.JobTypeGenerateSidecar,
		OrgID:      "org-1",
		AssetID:    "sha256:abc",
		Payload:    json.RawMessage(`{"force":true}`),
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.Enqueue(context.Background(), msg); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.published))
	}
	published := pub.published[0]
	if published.Attributes["job_type"] != "generate_sidecar" {
		t.Fatalf("unexpected attributes %v", published.Attributes)
	}

	var decoded Message
	if err := json.Unmarshal(published.Data, &decoded); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if decoded.JobID != "j1" || decoded.OrgID != "org-1" {
		t.Fatalf("unexpected envelope %+v", decoded)
	}
}

func TestDurable_PublishFailureIsQueueUnavailable(t *testing.T) {
	pub := &stubPublisher{err: errors.New("broker down")}
	q := NewDurable(pub, nil)

	err := q.Enqueue(context.Background(), Message{JobID: "j1"})
	if !pkgerrors.Is(err, pkgerrors.CodeQueueUnavail) {
		t.Fatalf("expected queue unavailable, got %v", err)
	}
}

func TestDurable_NilPublisherIsQueueUnavailable(t *testing.T) {
	q := NewDurable(nil, nil)
	err := q.Enqueue(context.Background(), Message{JobID: "j1"})
	if !pkgerrors.Is(err, pkgerrors.CodeQueueUnavail) {
		t.Fatalf("expected queue unavailable, got %v", err)
	}
}
