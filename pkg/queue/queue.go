package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/heimdex/heimdex-backend/pkg/enums"
)

// Message is the envelope handed to the queue backend. The job row is
// already persisted by the time a message is enqueued; the envelope only
// carries what the worker needs to locate and execute it.
type Message struct {
	JobID      string          `json:"job_id"`
	JobType    enums.JobType   `json:"job_type"`
	OrgID      string          `json:"org_id"`
	AssetID    string          `json:"asset_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Runner executes a previously persisted job. Both backends drive the
// same runner so job transitions look identical to callers.
type Runner interface {
	Execute(ctx context.Context, msg Message) error
}

// Queue hands jobs to a backend for asynchronous execution.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	Backend() string
}
