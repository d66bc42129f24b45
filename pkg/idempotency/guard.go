package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
	"github.com/heimdex/heimdex-backend/pkg/redis"
)

// record states. An in_flight record pins the key while the first request
// is still executing; done records carry the replayable result.
const (
	stateInFlight = "in_flight"
	stateDone     = "done"
)

type record struct {
	Fingerprint string          `json:"fingerprint"`
	State       string          `json:"state"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Operation produces the result to persist for replay.
type Operation func(ctx context.Context) (json.RawMessage, error)

// Guard serializes submissions sharing an (org, key) pair. The first
// request with a given key executes; a retry with the same fingerprint
// replays the stored result, a retry with a different fingerprint is
// rejected.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	logg  *logger.Logger
}

func New(store redis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) *Guard {
	return &Guard{store: store, ttl: ttl, logg: logg}
}

// Run executes op under the guard. The returned bool reports whether the
// result was replayed from a prior completed request.
func (g *Guard) Run(ctx context.Context, orgID, key, fingerprint string, op Operation) (json.RawMessage, bool, error) {
	if key == "" {
		result, err := op(ctx)
		return result, false, err
	}

	storageKey := g.store.IdempotencyKey(orgID, key)

	pending, err := json.Marshal(record{Fingerprint: fingerprint, State: stateInFlight})
	if err != nil {
		return nil, false, errors.Wrap(errors.CodeInternal, err, "marshal idempotency record")
	}

	won, err := g.store.SetNX(ctx, storageKey, string(pending), g.ttl)
	if err != nil {
		return nil, false, errors.Wrap(errors.CodeDependency, err, "reserve idempotency key")
	}

	if !won {
		return g.resolveExisting(ctx, storageKey, fingerprint)
	}

	result, opErr := op(ctx)
	if opErr != nil {
		// Release the key so the caller can retry the same submission.
		if delErr := g.store.Del(ctx, storageKey); delErr != nil && g.logg != nil {
			g.logg.Error(ctx, "releasing idempotency key failed", delErr)
		}
		return nil, false, opErr
	}

	done, err := json.Marshal(record{Fingerprint: fingerprint, State: stateDone, Result: result})
	if err != nil {
		return nil, false, errors.Wrap(errors.CodeInternal, err, "marshal idempotency result")
	}
	if setErr := g.store.Set(ctx, storageKey, string(done), g.ttl); setErr != nil && g.logg != nil {
		g.logg.Error(ctx, "persisting idempotency result failed", setErr)
	}

	return result, false, nil
}

func (g *Guard) resolveExisting(ctx context.Context, storageKey, fingerprint string) (json.RawMessage, bool, error) {
	stored, err := g.store.Get(ctx, storageKey)
	if err != nil {
		if redis.IsNil(err) {
			// Reservation expired or was released between SetNX and Get.
			return nil, false, errors.New(errors.CodeInProgress, "operation already in progress, retry shortly")
		}
		return nil, false, errors.Wrap(errors.CodeDependency, err, "check idempotency key")
	}

	var rec record
	if err := json.Unmarshal([]byte(stored), &rec); err != nil {
		return nil, false, errors.Wrap(errors.CodeDependency, err, "decode idempotency record")
	}

	if rec.Fingerprint != fingerprint {
		return nil, false, errors.New(errors.CodeIdempotency, "idempotency key reused with a different request")
	}
	if rec.State == stateInFlight {
		return nil, false, errors.New(errors.CodeInProgress, "operation already in progress, retry shortly")
	}

	return rec.Result, true, nil
}

// Fingerprint hashes the canonical request payload for comparison.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}
