package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/heimdex/heimdex-backend/pkg/config"
	"github.com/heimdex/heimdex-backend/pkg/enums"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
	"github.com/heimdex/heimdex-backend/pkg/metrics"
)

// Reaper recovers work orphaned by worker crashes. A job that entered
// running and never finished within the staleness window is failed, and
// its asset returns to queued so a caller can resubmit.
type Reaper struct {
	repo       *Repository
	tx         txRunner
	cfg        config.JobsConfig
	jobMetrics *metrics.JobMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewReaper constructs a reaper over the ingest tables.
func NewReaper(repo *Repository, tx txRunner, cfg config.JobsConfig, jobMetrics *metrics.JobMetrics, logg *logger.Logger) (*Reaper, error) {
	if repo == nil {
		return nil, fmt.Errorf("ingest repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if cfg.StaleAfter <= 0 {
		return nil, fmt.Errorf("staleness window must be positive")
	}
	return &Reaper{
		repo:       repo,
		tx:         tx,
		cfg:        cfg,
		jobMetrics: jobMetrics,
		logg:       logg,
		now:        time.Now,
	}, nil
}

// Run sweeps on a fixed interval until the context is canceled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logg.Error(ctx, "reaper sweep failed", err)
			}
		}
	}
}

// Sweep fails stale running jobs and requeues their assets. It also
// requeues processing assets with no live job, which happens when a worker
// dies between claiming the job and entering processing. Returns how many
// rows were recovered.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.cfg.StaleAfter)
	recovered := 0

	stale, err := r.repo.StaleRunningJobs(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale jobs")
	}
	for _, job := range stale {
		job := job
		err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := r.repo.WithDB(tx)
			payload, _ := json.Marshal(map[string]any{
				"code":      string(pkgerrors.CodeInternal),
				"message":   "job stalled in running and was reaped",
				"retryable": true,
			})
			if err := repo.FinishJob(ctx, job.JobID, enums.JobStatusFailed, nil, payload); err != nil {
				return err
			}
			if job.AssetID != nil {
				if _, err := repo.TransitionAsset(ctx, *job.AssetID,
					[]enums.AssetStatus{enums.AssetStatusProcessing}, enums.AssetStatusQueued); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			r.logg.Error(ctx, "reaping stale job failed", err)
			continue
		}
		r.jobMetrics.IncFailure(string(job.JobType))
		jobCtx := r.logg.WithJobID(ctx, job.JobID)
		r.logg.Warn(jobCtx, "stale job reaped")
		recovered++
	}

	orphaned, err := r.repo.StaleProcessingAssets(ctx, cutoff)
	if err != nil {
		return recovered, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale assets")
	}
	for _, asset := range orphaned {
		active, err := r.repo.CountActiveJobs(ctx, asset.AssetID)
		if err != nil {
			r.logg.Error(ctx, "checking active jobs failed", err)
			continue
		}
		if active > 0 {
			continue
		}
		moved, err := r.repo.TransitionAsset(ctx, asset.AssetID,
			[]enums.AssetStatus{enums.AssetStatusProcessing}, enums.AssetStatusQueued)
		if err != nil {
			r.logg.Error(ctx, "requeueing stale asset failed", err)
			continue
		}
		if moved {
			assetCtx := r.logg.WithAssetID(ctx, asset.AssetID)
			r.logg.Warn(assetCtx, "stale processing asset requeued")
			recovered++
		}
	}

	return recovered, nil
}
