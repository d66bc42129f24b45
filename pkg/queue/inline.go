package queue

import (
	"context"
	"fmt"

	"github.com/heimdex/heimdex-backend/pkg/config"
	"github.com/heimdex/heimdex-backend/pkg/logger"
)

// Inline executes jobs in-process. Enqueue runs the job to completion
// before returning, so the submitting request blocks until the job has
// finished. A runner failure is recorded on the job row by the runner
// itself and does not fail the enqueue.
type Inline struct {
	runner Runner
	logg   *logger.Logger
}

func NewInline(runner Runner, logg *logger.Logger) *Inline {
	return &Inline{runner: runner, logg: logg}
}

func (q *Inline) Backend() string {
	return config.QueueBackendInline
}

// Enqueue executes the job synchronously. The run detaches from the
// request deadline; a job that was accepted runs to completion even if
// the submitting request is canceled mid-flight.
func (q *Inline) Enqueue(ctx context.Context, msg Message) error {
	if q.runner == nil {
		return fmt.Errorf("inline queue has no runner")
	}

	runCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil && q.logg != nil {
			q.logg.Error(runCtx, "inline job panicked", fmt.Errorf("panic: %v", r))
		}
	}()
	if err := q.runner.Execute(runCtx, msg); err != nil && q.logg != nil {
		q.logg.Error(runCtx, "inline job failed", err)
	}
	return nil
}
