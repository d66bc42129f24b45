package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/heimdex/heimdex-backend/internal/identity"
	"github.com/heimdex/heimdex-backend/internal/ingest"
	"github.com/heimdex/heimdex-backend/internal/probe"
	"github.com/heimdex/heimdex-backend/internal/thumbs"
	"github.com/heimdex/heimdex-backend/pkg/config"
	"github.com/heimdex/heimdex-backend/pkg/db"
	"github.com/heimdex/heimdex-backend/pkg/db/models"
	"github.com/heimdex/heimdex-backend/pkg/enums"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
	"github.com/heimdex/heimdex-backend/pkg/metrics"
	"github.com/heimdex/heimdex-backend/pkg/queue"
	"github.com/heimdex/heimdex-backend/pkg/storage"
)

type prober interface {
	Probe(ctx context.Context, sourceURI string) (*probe.Sidecar, *identity.AssetIdentity, error)
}

type renderer interface {
	Render(ctx context.Context, videoPath string, doc *probe.Sidecar, workDir string) ([]thumbs.Rendered, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Runner executes persisted ingest jobs. Both queue backends drive it, so
// the observable job and asset transitions are identical either way.
type Runner struct {
	repo       *ingest.Repository
	tx         txRunner
	store      storage.Store
	prober     prober
	renderer   renderer
	cfg        config.JobsConfig
	jobMetrics *metrics.JobMetrics
	logg       *logger.Logger
}

// New constructs a job runner.
func New(
	repo *ingest.Repository,
	tx txRunner,
	store storage.Store,
	prb prober,
	rnd renderer,
	cfg config.JobsConfig,
	jobMetrics *metrics.JobMetrics,
	logg *logger.Logger,
) (*Runner, error) {
	if repo == nil {
		return nil, fmt.Errorf("ingest repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if prb == nil {
		return nil, fmt.Errorf("prober required")
	}
	if rnd == nil {
		return nil, fmt.Errorf("thumbnail renderer required")
	}
	return &Runner{
		repo:       repo,
		tx:         tx,
		store:      store,
		prober:     prb,
		renderer:   rnd,
		cfg:        cfg,
		jobMetrics: jobMetrics,
		logg:       logg,
	}, nil
}

// sidecarResult is persisted on the job row when generation succeeds.
type sidecarResult struct {
	SidecarKey string             `json:"sidecar_key"`
	ETag       *string            `json:"etag"`
	Thumbnails []models.Thumbnail `json:"-"`
	ThumbKeys  []string           `json:"thumbnail_keys"`
	Warnings   []string           `json:"warnings"`
}

// jobError is the structured error payload recorded on failed jobs. The
// retryable flag tells callers whether resubmission is worth trying.
type jobError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Execute runs one job to a terminal state. Duplicate deliveries are
// detected through the queued→running transition and dropped silently.
func (r *Runner) Execute(ctx context.Context, msg queue.Message) error {
	ctx = r.logg.WithJobID(r.logg.WithOrgID(ctx, msg.OrgID), msg.JobID)
	if msg.AssetID != "" {
		ctx = r.logg.WithAssetID(ctx, msg.AssetID)
	}

	job, err := r.repo.FindJob(ctx, msg.JobID)
	if err != nil {
		if db.IsNotFound(err) {
			r.logg.Warn(ctx, "job row missing, dropping delivery")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
	}
	if job.Status.IsTerminal() {
		return nil
	}

	started, err := r.repo.StartJob(ctx, job.JobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "start job")
	}
	if !started {
		r.logg.Info(ctx, "job already claimed, dropping delivery")
		return nil
	}

	startedAt := time.Now()
	result, runErr := r.run(ctx, job)
	duration := time.Since(startedAt)
	r.jobMetrics.ObserveDuration(string(job.JobType), duration)

	if runErr != nil {
		r.jobMetrics.IncFailure(string(job.JobType))
		return r.finishFailed(ctx, job, runErr)
	}

	r.jobMetrics.IncSuccess(string(job.JobType))
	return r.finishSucceeded(ctx, job, result)
}

func (r *Runner) run(ctx context.Context, job *models.Job) (*sidecarResult, error) {
	var payload ingest.SidecarJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode job payload")
	}
	if payload.AssetID == "" || payload.OrgID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job payload missing asset or organization")
	}

	asset, err := r.repo.FindAsset(ctx, payload.AssetID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "asset row missing")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load asset")
	}
	if asset.OrgID != payload.OrgID {
		r.logg.Warn(ctx, "cross-tenant job rejected")
		return nil, pkgerrors.New(pkgerrors.CodeTenantMismatch, "asset belongs to another organization")
	}

	moved, err := r.repo.TransitionAsset(ctx, asset.AssetID,
		[]enums.AssetStatus{enums.AssetStatusQueued}, enums.AssetStatusProcessing)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enter processing")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeAssetBusy, "asset is not queued for processing")
	}

	var result *sidecarResult
	backoff := retry.WithCappedDuration(r.cfg.RetryMaxDelay,
		retry.WithMaxRetries(uint64(r.cfg.MaxRetries),
			retry.NewExponential(r.cfg.RetryInitialDelay)))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt, attemptErr := r.generate(ctx, payload)
		if attemptErr == nil {
			result = attempt
			return nil
		}
		if pkgerrors.Retryable(attemptErr) {
			r.jobMetrics.IncRetry(string(job.JobType))
			if incErr := r.repo.IncrementJobRetry(ctx, job.JobID); incErr != nil {
				r.logg.Error(ctx, "recording retry failed", incErr)
			}
			r.logg.Warn(ctx, "transient failure, retrying")
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// generate is one attempt: probe, render thumbnails, upload artifacts.
func (r *Runner) generate(ctx context.Context, payload ingest.SidecarJobPayload) (*sidecarResult, error) {
	doc, _, err := r.prober.Probe(ctx, payload.SourceURI)
	if err != nil {
		return nil, err
	}

	localPath, err := probe.ResolveLocalPath(payload.SourceURI)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "hx-render-*")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create work directory")
	}
	defer os.RemoveAll(workDir)

	rendered, err := r.renderer.Render(ctx, localPath, doc, workDir)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "render thumbnails")
	}

	result := &sidecarResult{Warnings: doc.Warnings}
	for idx, entry := range rendered {
		data, readErr := os.ReadFile(entry.LocalPath)
		if readErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, readErr, "read rendered thumbnail")
		}
		key := storage.ThumbKey(payload.OrgID, payload.AssetID, entry.Name)
		if _, writeErr := r.store.Write(ctx, key, data, "image/jpeg"); writeErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, writeErr, "write thumbnail")
		}
		rewriteManifestPath(doc, entry.Name, key)

		tsMs := int64(entry.TimestampS * 1000)
		width, height := entry.WidthPx, entry.HeightPx
		result.Thumbnails = append(result.Thumbnails, models.Thumbnail{
			AssetID:    payload.AssetID,
			OrgID:      payload.OrgID,
			Idx:        idx,
			TsMs:       &tsMs,
			StorageKey: key,
			Width:      &width,
			Height:     &height,
		})
		result.ThumbKeys = append(result.ThumbKeys, key)
	}

	document, err := doc.MarshalIndent()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode sidecar document")
	}
	sidecarKey := storage.SidecarKey(payload.OrgID, payload.AssetID)
	info, err := r.store.Write(ctx, sidecarKey, document, "application/json")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write sidecar document")
	}

	result.SidecarKey = sidecarKey
	result.Warnings = doc.Warnings
	if info.ETag != "" {
		etag := info.ETag
		result.ETag = &etag
	}
	return result, nil
}

// finishSucceeded commits the sidecar row, the thumbnail rows, the asset
// flip to ready, and the job result in one transaction.
func (r *Runner) finishSucceeded(ctx context.Context, job *models.Job, result *sidecarResult) error {
	assetID := ""
	if job.AssetID != nil {
		assetID = *job.AssetID
	}

	resultPayload, err := json.Marshal(result)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode job result")
	}

	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithDB(tx)
		if err := repo.UpsertSidecar(ctx, &models.Sidecar{
			AssetID:       assetID,
			OrgID:         job.OrgID,
			SchemaVersion: probe.SchemaVersion,
			StorageKey:    result.SidecarKey,
			ETag:          result.ETag,
		}); err != nil {
			return err
		}
		if err := repo.ReplaceThumbnails(ctx, assetID, result.Thumbnails); err != nil {
			return err
		}
		moved, err := repo.TransitionAsset(ctx, assetID,
			[]enums.AssetStatus{enums.AssetStatusProcessing}, enums.AssetStatusReady)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("asset %s left processing during the job", assetID)
		}
		return repo.FinishJob(ctx, job.JobID, enums.JobStatusSucceeded, resultPayload, nil)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit job success")
	}

	r.logg.Info(ctx, "sidecar job succeeded")
	return nil
}

// finishFailed records the structured failure and flips the asset to
// failed. The prior failure stays on the job row for audit; resubmission
// creates a new job.
func (r *Runner) finishFailed(ctx context.Context, job *models.Job, cause error) error {
	assetID := ""
	if job.AssetID != nil {
		assetID = *job.AssetID
	}

	appErr := pkgerrors.As(cause)
	if appErr == nil {
		appErr = pkgerrors.Wrap(pkgerrors.CodeInternal, cause, "job execution failed")
	}
	payload, err := json.Marshal(jobError{
		Code:      string(appErr.Code()),
		Message:   appErr.Message(),
		Retryable: pkgerrors.Retryable(cause),
	})
	if err != nil {
		payload = json.RawMessage(`{"code":"INTERNAL_ERROR","message":"failure payload encoding failed"}`)
	}

	txErr := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithDB(tx)
		if assetID != "" {
			if _, err := repo.TransitionAsset(ctx, assetID,
				[]enums.AssetStatus{enums.AssetStatusProcessing}, enums.AssetStatusFailed); err != nil {
				return err
			}
		}
		return repo.FinishJob(ctx, job.JobID, enums.JobStatusFailed, nil, payload)
	})
	if txErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "commit job failure")
	}

	r.logg.Error(ctx, "sidecar job failed", cause)
	return nil
}

func rewriteManifestPath(doc *probe.Sidecar, name, key string) {
	if doc.Thumbnails.Poster.Path != "" && fileName(doc.Thumbnails.Poster.Path) == name {
		doc.Thumbnails.Poster.Path = key
		return
	}
	for i := range doc.Thumbnails.Samples {
		if fileName(doc.Thumbnails.Samples[i].Path) == name {
			doc.Thumbnails.Samples[i].Path = key
			return
		}
	}
}

func fileName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
