package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
)

type stubStore struct {
	data map[string]string
}

func newStubStore() *stubStore {
	return &stubStore{data: make(map[string]string)}
}

func (s *stubStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (s *stubStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.data[key] = value.(string)
	return nil
}

func (s *stubStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = value.(string)
	return true, nil
}

func (s *stubStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *stubStore) IdempotencyKey(scope, id string) string {
	return "hx:idempotency:" + scope + ":" + id
}

func TestRun_FirstSubmissionExecutes(t *testing.T) {
	guard := New(newStubStore(), time.Hour, nil)

	calls := 0
	result, replayed, err := guard.Run(context.Background(), "org-1", "key-1", "fp-a", func(context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"job_id":"j1"}`), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replayed {
		t.Fatal("first submission should not be a replay")
	}
	if calls != 1 {
		t.Fatalf("expected one execution, got %d", calls)
	}
	if string(result) != `{"job_id":"j1"}` {
		t.Fatalf("unexpected result %s", result)
	}
}

func TestRun_SameFingerprintReplaysResult(t *testing.T) {
	store := newStubStore()
	guard := New(store, time.Hour, nil)
	ctx := context.Background()

	if _, _, err := guard.Run(ctx, "org-1", "key-1", "fp-a", func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"job_id":"j1"}`), nil
	}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	calls := 0
	result, replayed, err := guard.Run(ctx, "org-1", "key-1", "fp-a", func(context.Context) (json.RawMessage, error) {
		calls++
		return nil, nil
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !replayed {
		t.Fatal("expected stored result to be replayed")
	}
	if calls != 0 {
		t.Fatalf("replay must not re-execute, got %d calls", calls)
	}
	if string(result) != `{"job_id":"j1"}` {
		t.Fatalf("unexpected replayed result %s", result)
	}
}

func TestRun_DifferentFingerprintConflicts(t *testing.T) {
	store := newStubStore()
	guard := New(store, time.Hour, nil)
	ctx := context.Background()

	if _, _, err := guard.Run(ctx, "org-1", "key-1", "fp-a", func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	_, _, err := guard.Run(ctx, "org-1", "key-1", "fp-b", func(context.Context) (json.RawMessage, error) {
		t.Fatal("conflicting submission must not execute")
		return nil, nil
	})
	if !pkgerrors.Is(err, pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestRun_InFlightRejectsConcurrentRetry(t *testing.T) {
	store := newStubStore()
	guard := New(store, time.Hour, nil)
	ctx := context.Background()

	pending, _ := json.Marshal(record{Fingerprint: "fp-a", State: stateInFlight})
	store.data[store.IdempotencyKey("org-1", "key-1")] = string(pending)

	_, _, err := guard.Run(ctx, "org-1", "key-1", "fp-a", func(context.Context) (json.RawMessage, error) {
		t.Fatal("in-flight key must not execute")
		return nil, nil
	})
	if !pkgerrors.Is(err, pkgerrors.CodeInProgress) {
		t.Fatalf("expected in-progress error, got %v", err)
	}
}

func TestRun_FailureReleasesKey(t *testing.T) {
	store := newStubStore()
	guard := New(store, time.Hour, nil)
	ctx := context.Background()

	boom := errors.New("queue down")
	if _, _, err := guard.Run(ctx, "org-1", "key-1", "fp-a", func(context.Context) (json.RawMessage, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected operation error, got %v", err)
	}

	if _, exists := store.data[store.IdempotencyKey("org-1", "key-1")]; exists {
		t.Fatal("failed operation should release the key")
	}

	// The same key is usable again after the failure.
	if _, _, err := guard.Run(ctx, "org-1", "key-1", "fp-a", func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}); err != nil {
		t.Fatalf("retry after failure should execute: %v", err)
	}
}

func TestRun_EmptyKeySkipsGuard(t *testing.T) {
	store := newStubStore()
	guard := New(store, time.Hour, nil)

	for i := 0; i < 2; i++ {
		result, replayed, err := guard.Run(context.Background(), "org-1", "", "fp-a", func(context.Context) (json.RawMessage, error) {
			return json.RawMessage(`{"n":1}`), nil
		})
		if err != nil || replayed {
			t.Fatalf("keyless run should always execute: err=%v replayed=%v", err, replayed)
		}
		if string(result) != `{"n":1}` {
			t.Fatalf("unexpected result %s", result)
		}
	}
	if len(store.data) != 0 {
		t.Fatal("keyless runs must not touch the store")
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint([]byte(`{"asset_id":"sha256:abc"}`))
	b := Fingerprint([]byte(`{"asset_id":"sha256:abc"}`))
	c := Fingerprint([]byte(`{"asset_id":"sha256:def"}`))
	if a != b {
		t.Fatal("same payload must produce the same fingerprint")
	}
	if a == c {
		t.Fatal("different payloads must not collide")
	}
}
