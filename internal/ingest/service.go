package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/heimdex/heimdex-backend/internal/identity"
	"github.com/heimdex/heimdex-backend/internal/probe"
	"github.com/heimdex/heimdex-backend/pkg/config"
	"github.com/heimdex/heimdex-backend/pkg/db"
	"github.com/heimdex/heimdex-backend/pkg/db/models"
	"github.com/heimdex/heimdex-backend/pkg/enums"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/idempotency"
	"github.com/heimdex/heimdex-backend/pkg/logger"
	"github.com/heimdex/heimdex-backend/pkg/metrics"
	"github.com/heimdex/heimdex-backend/pkg/pagination"
	"github.com/heimdex/heimdex-backend/pkg/queue"
	"github.com/heimdex/heimdex-backend/pkg/storage"
)

// Prober derives identity and probes a media source without persisting
// anything.
type Prober interface {
	Probe(ctx context.Context, sourceURI string) (*probe.Sidecar, *identity.AssetIdentity, error)
}

type guardRunner interface {
	Run(ctx context.Context, orgID, key, fingerprint string, op idempotency.Operation) (json.RawMessage, bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service orchestrates the ingest lifecycle: staging uploads, registering
// assets, submitting sidecar jobs, and serving read models. Every operation
// is scoped to the caller's organization.
type Service struct {
	repo       *Repository
	tx         txRunner
	store      storage.Store
	jobs       queue.Queue
	guard      guardRunner
	prober     Prober
	cfg        config.IngestConfig
	uploadTTL  time.Duration
	jobMetrics *metrics.JobMetrics
	logg       *logger.Logger
}

// NewService constructs the ingest service from its collaborators.
func NewService(
	repo *Repository,
	tx txRunner,
	store storage.Store,
	jobs queue.Queue,
	guard guardRunner,
	prober Prober,
	cfg config.IngestConfig,
	uploadTTL time.Duration,
	jobMetrics *metrics.JobMetrics,
	logg *logger.Logger,
) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ingest repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("job queue required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if prober == nil {
		return nil, fmt.Errorf("prober required")
	}
	if uploadTTL <= 0 {
		return nil, fmt.Errorf("upload ttl must be positive")
	}
	return &Service{
		repo:       repo,
		tx:         tx,
		store:      store,
		jobs:       jobs,
		guard:      guard,
		prober:     prober,
		cfg:        cfg,
		uploadTTL:  uploadTTL,
		jobMetrics: jobMetrics,
		logg:       logg,
	}, nil
}

// InitUpload stages a new upload and returns the presigned destination.
// No asset row exists yet; the asset ID is content derived and only known
// at commit time.
func (s *Service) InitUpload(ctx context.Context, orgID string, input InitUploadInput) (*InitUploadOutput, error) {
	if orgID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization identity missing")
	}
	name := strings.TrimSpace(input.SourceName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source_name is required")
	}
	if input.SizeBytes < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "size_bytes must not be negative")
	}
	if input.SizeBytes > s.cfg.MaxUploadBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("size_bytes exceeds the %d byte upload ceiling", s.cfg.MaxUploadBytes))
	}
	contentType := strings.TrimSpace(input.ContentType)
	if contentType != "" && !s.cfg.ContentTypeAllowed(contentType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content_type not recognized")
	}

	if err := s.repo.EnsureOrg(ctx, orgID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure organization")
	}

	uploadID := uuid.NewString()
	fileName := sanitizeFileName(name)
	if fileName == "" {
		fileName = uploadID
	}
	key := storage.UploadKey(orgID, path.Join(uploadID, fileName))

	presigned, err := s.store.PresignPut(key, contentType, s.uploadTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "presign upload destination")
	}

	return &InitUploadOutput{
		UploadID:       uploadID,
		StorageKey:     key,
		DestinationURI: presigned.URL,
		Method:         presigned.Method,
		Headers:        presigned.Headers,
	}, nil
}

// CommitUpload registers a staged file as an asset. The asset ID is
// derived from content, so committing the same bytes twice lands on the
// same row. New rows enter pending and move to queued once validation
// passes.
func (s *Service) CommitUpload(ctx context.Context, orgID string, input CommitUploadInput) (*AssetView, error) {
	if orgID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization identity missing")
	}
	sourceURI := strings.TrimSpace(input.SourceURI)
	if sourceURI == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source_uri is required")
	}
	contentType := strings.TrimSpace(input.ContentType)
	if contentType != "" && !s.cfg.ContentTypeAllowed(contentType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content_type not recognized")
	}

	localPath, err := probe.ResolveLocalPath(sourceURI)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "source file not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stat source file")
	}
	if info.Size() > s.cfg.MaxUploadBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("source exceeds the %d byte upload ceiling", s.cfg.MaxUploadBytes))
	}

	ident, err := identity.DeriveLocal(localPath, s.cfg.StrongHashCeiling)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "derive asset identity")
	}

	if err := s.repo.EnsureOrg(ctx, orgID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure organization")
	}

	sizeBytes := info.Size()
	modifiedTime := info.ModTime().UTC()
	var committed *models.Asset

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithDB(tx)
		asset, findErr := repo.FindAsset(ctx, ident.AssetID)
		switch {
		case findErr == nil:
			if asset.OrgID != orgID {
				return pkgerrors.New(pkgerrors.CodeTenantMismatch, "asset belongs to another organization")
			}
			if asset.Status == enums.AssetStatusProcessing {
				return pkgerrors.New(pkgerrors.CodeAssetBusy, "asset is being processed")
			}
			asset.SourceURI = sourceURI
			asset.SizeBytes = &sizeBytes
			asset.ModifiedTime = &modifiedTime
			applyIdentity(asset, ident)
			if contentType != "" {
				asset.ContentType = &contentType
			}
			if asset.Status == enums.AssetStatusPending || asset.Status == enums.AssetStatusFailed {
				asset.Status = enums.AssetStatusQueued
			}
			if saveErr := repo.SaveAsset(ctx, asset); saveErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, saveErr, "update asset")
			}
			committed = asset
			return nil
		case db.IsNotFound(findErr):
			asset = &models.Asset{
				AssetID:      ident.AssetID,
				OrgID:        orgID,
				SourceURI:    sourceURI,
				SizeBytes:    &sizeBytes,
				ModifiedTime: &modifiedTime,
				Status:       enums.AssetStatusPending,
			}
			applyIdentity(asset, ident)
			if contentType != "" {
				asset.ContentType = &contentType
			}
			if createErr := repo.CreateAsset(ctx, asset); createErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create asset")
			}
			moved, casErr := repo.TransitionAsset(ctx, asset.AssetID,
				[]enums.AssetStatus{enums.AssetStatusPending}, enums.AssetStatusQueued)
			if casErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, casErr, "queue asset")
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeAssetBusy, "asset changed state during commit")
			}
			asset.Status = enums.AssetStatusQueued
			committed = asset
			return nil
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "look up asset")
		}
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithAssetID(ctx, committed.AssetID)
	s.logg.Info(ctx, "asset committed")
	s.recordAudit(ctx, orgID, "asset.committed", map[string]any{
		"asset_id": committed.AssetID,
		"status":   committed.Status,
	})

	view := assetView(committed)
	return &view, nil
}

// recordAudit appends an audit row. Best effort: a failed write is logged
// but never fails the request that triggered it.
func (s *Service) recordAudit(ctx context.Context, orgID, action string, meta map[string]any) {
	raw, err := json.Marshal(meta)
	if err != nil {
		s.logg.Error(ctx, "marshaling audit metadata failed", err)
		return
	}
	event := &models.AuditEvent{OrgID: orgID, Action: action, Meta: raw}
	if err := s.repo.RecordAuditEvent(ctx, event); err != nil {
		s.logg.Error(ctx, "recording audit event failed", err)
	}
}

// Probe runs the probing tool against a source and returns the normalized
// document without touching asset state. Side channel only.
func (s *Service) Probe(ctx context.Context, orgID, sourceURI string) (*probe.Sidecar, error) {
	if orgID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization identity missing")
	}
	if strings.TrimSpace(sourceURI) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source_uri is required")
	}
	if err := s.repo.EnsureOrg(ctx, orgID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure organization")
	}
	doc, _, err := s.prober.Probe(ctx, sourceURI)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SubmitSidecarJob creates a sidecar-generation job for the asset and hands
// it to the queue. The idempotency key, when present, makes retries safe:
// a replayed request returns the original job without enqueueing again.
func (s *Service) SubmitSidecarJob(ctx context.Context, orgID, assetID, idempotencyKey string) (*JobView, error) {
	if orgID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization identity missing")
	}
	if assetID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "asset_id is required")
	}

	fingerprintPayload, err := json.Marshal(map[string]string{
		"org_id":   orgID,
		"asset_id": assetID,
		"job_type": string(enums.JobTypeGenerateSidecar),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fingerprint job request")
	}

	op := func(ctx context.Context) (json.RawMessage, error) {
		view, opErr := s.submitSidecarJob(ctx, orgID, assetID, idempotencyKey)
		if opErr != nil {
			return nil, opErr
		}
		return json.Marshal(view)
	}

	raw, replayed, err := s.guard.Run(ctx, orgID, idempotencyKey, idempotency.Fingerprint(fingerprintPayload), op)
	if err != nil {
		return nil, err
	}

	var view JobView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode job submission result")
	}
	if replayed {
		ctx = s.logg.WithJobID(ctx, view.JobID)
		s.logg.Info(ctx, "sidecar job replayed from idempotency record")
	}
	return &view, nil
}

func (s *Service) submitSidecarJob(ctx context.Context, orgID, assetID, idempotencyKey string) (*JobView, error) {
	var (
		job        *models.Job
		prevStatus enums.AssetStatus
		reused     bool
	)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithDB(tx)

		asset, findErr := repo.FindAsset(ctx, assetID)
		if findErr != nil {
			if db.IsNotFound(findErr) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "asset not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "look up asset")
		}
		if asset.OrgID != orgID {
			return pkgerrors.New(pkgerrors.CodeTenantMismatch, "asset belongs to another organization")
		}
		prevStatus = asset.Status

		if idempotencyKey != "" {
			existing, keyErr := repo.FindJobByIdempotencyKey(ctx, orgID, idempotencyKey)
			if keyErr == nil {
				if existing.AssetID == nil || *existing.AssetID != assetID {
					return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different asset")
				}
				job = existing
				reused = true
				return nil
			}
			if !db.IsNotFound(keyErr) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, keyErr, "look up idempotency key")
			}
		}

		switch asset.Status {
		case enums.AssetStatusProcessing:
			return pkgerrors.New(pkgerrors.CodeAssetBusy, "asset is being processed")
		case enums.AssetStatusReady:
			return pkgerrors.New(pkgerrors.CodeValidation, "asset already has a sidecar; only failed assets may be resubmitted")
		}

		active, countErr := repo.CountActiveJobs(ctx, assetID)
		if countErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, countErr, "check active jobs")
		}
		if active > 0 {
			return pkgerrors.New(pkgerrors.CodeAssetBusy, "a job is already queued for this asset")
		}

		if asset.Status != enums.AssetStatusQueued {
			moved, casErr := repo.TransitionAsset(ctx, assetID,
				[]enums.AssetStatus{enums.AssetStatusPending, enums.AssetStatusFailed}, enums.AssetStatusQueued)
			if casErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, casErr, "queue asset")
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeAssetBusy, "asset changed state during submission")
			}
		}

		payload, marshalErr := json.Marshal(SidecarJobPayload{
			OrgID:     orgID,
			AssetID:   assetID,
			SourceURI: asset.SourceURI,
		})
		if marshalErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, marshalErr, "encode job payload")
		}

		var keyPtr *string
		if idempotencyKey != "" {
			keyPtr = &idempotencyKey
		}
		job = &models.Job{
			JobID:          uuid.NewString(),
			JobType:        enums.JobTypeGenerateSidecar,
			OrgID:          orgID,
			AssetID:        &assetID,
			Status:         enums.JobStatusQueued,
			Payload:        payload,
			IdempotencyKey: keyPtr,
		}
		if createErr := repo.CreateJob(ctx, job); createErr != nil {
			if db.IsUniqueViolation(createErr) {
				return pkgerrors.New(pkgerrors.CodeAssetBusy, "a job is already queued for this asset")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create job")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithJobID(s.logg.WithAssetID(ctx, assetID), job.JobID)

	// A reused idempotency key returns the job already enqueued under it.
	if reused {
		view := jobView(job)
		return &view, nil
	}

	msg := queue.Message{
		JobID:      job.JobID,
		JobType:    job.JobType,
		OrgID:      orgID,
		AssetID:    assetID,
		Payload:    job.Payload,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.jobs.Enqueue(ctx, msg); err != nil {
		s.undoSubmission(ctx, job.JobID, assetID, prevStatus)
		return nil, err
	}

	s.jobMetrics.IncEnqueued(string(job.JobType), s.jobs.Backend())
	s.logg.Info(ctx, "sidecar job enqueued")
	s.recordAudit(ctx, orgID, "job.submitted", map[string]any{
		"job_id":   job.JobID,
		"asset_id": assetID,
		"job_type": job.JobType,
	})

	view := jobView(job)
	return &view, nil
}

// undoSubmission rolls back the job row and the asset transition after the
// queue rejected the enqueue, so no orphan rows are left behind.
func (s *Service) undoSubmission(ctx context.Context, jobID, assetID string, prevStatus enums.AssetStatus) {
	if err := s.repo.DeleteJob(ctx, jobID); err != nil {
		s.logg.Error(ctx, "rolling back job row failed", err)
	}
	if prevStatus != enums.AssetStatusQueued {
		if _, err := s.repo.TransitionAsset(ctx, assetID,
			[]enums.AssetStatus{enums.AssetStatusQueued}, prevStatus); err != nil {
			s.logg.Error(ctx, "rolling back asset status failed", err)
		}
	}
}

// GetJob returns the job's observable state within the caller's tenant.
func (s *Service) GetJob(ctx context.Context, orgID, jobID string) (*JobView, error) {
	job, err := s.repo.FindJob(ctx, jobID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up job")
	}
	if job.OrgID != orgID {
		return nil, pkgerrors.New(pkgerrors.CodeTenantMismatch, "job belongs to another organization")
	}
	view := jobView(job)
	return &view, nil
}

// GetAsset returns the asset snapshot including sidecar and thumbnails.
func (s *Service) GetAsset(ctx context.Context, orgID, assetID string) (*AssetSnapshot, error) {
	asset, err := s.findOrgAsset(ctx, orgID, assetID)
	if err != nil {
		return nil, err
	}

	snapshot := &AssetSnapshot{
		AssetView:  assetView(asset),
		Thumbnails: []ThumbnailView{},
	}

	sidecar, err := s.repo.GetSidecar(ctx, assetID)
	if err == nil {
		snapshot.Sidecar = &SidecarView{
			SchemaVersion: sidecar.SchemaVersion,
			StorageKey:    sidecar.StorageKey,
			ETag:          sidecar.ETag,
		}
	} else if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up sidecar")
	}

	thumbnails, err := s.repo.ListThumbnails(ctx, assetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list thumbnails")
	}
	for _, thumb := range thumbnails {
		snapshot.Thumbnails = append(snapshot.Thumbnails, ThumbnailView{
			Idx:        thumb.Idx,
			StorageKey: thumb.StorageKey,
			Width:      thumb.Width,
			Height:     thumb.Height,
			TsMs:       thumb.TsMs,
		})
	}
	return snapshot, nil
}

// GetSidecar returns the persisted sidecar row and document for an asset.
func (s *Service) GetSidecar(ctx context.Context, orgID, assetID string) (*SidecarDocument, error) {
	if _, err := s.findOrgAsset(ctx, orgID, assetID); err != nil {
		return nil, err
	}

	sidecar, err := s.repo.GetSidecar(ctx, assetID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sidecar not generated yet")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up sidecar")
	}

	document, err := s.store.Read(ctx, sidecar.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sidecar document missing from storage")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read sidecar document")
	}

	return &SidecarDocument{
		SidecarView: SidecarView{
			SchemaVersion: sidecar.SchemaVersion,
			StorageKey:    sidecar.StorageKey,
			ETag:          sidecar.ETag,
		},
		Document: document,
	}, nil
}

// ListAssets returns one cursor page of the org's assets, newest first.
func (s *Service) ListAssets(ctx context.Context, orgID string, page pagination.Params) (*AssetPage, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(page.Limit)

	rows, err := s.repo.ListAssets(ctx, orgID, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assets")
	}

	result := &AssetPage{Assets: make([]AssetView, 0, len(rows))}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.AssetID,
		})
	}
	for i := range rows {
		result.Assets = append(result.Assets, assetView(&rows[i]))
	}
	return result, nil
}

// ListJobs returns one cursor page of the org's jobs, newest first. An
// empty status lists every job.
func (s *Service) ListJobs(ctx context.Context, orgID, status string, page pagination.Params) (*JobPage, error) {
	var jobStatus enums.JobStatus
	if status != "" {
		jobStatus = enums.JobStatus(status)
		if !jobStatus.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown job status filter")
		}
	}
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(page.Limit)

	rows, err := s.repo.ListJobs(ctx, orgID, jobStatus, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list jobs")
	}

	result := &JobPage{Jobs: make([]JobView, 0, len(rows))}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.JobID,
		})
	}
	for i := range rows {
		result.Jobs = append(result.Jobs, jobView(&rows[i]))
	}
	return result, nil
}

func (s *Service) findOrgAsset(ctx context.Context, orgID, assetID string) (*models.Asset, error) {
	asset, err := s.repo.FindAsset(ctx, assetID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "asset not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up asset")
	}
	if asset.OrgID != orgID {
		return nil, pkgerrors.New(pkgerrors.CodeTenantMismatch, "asset belongs to another organization")
	}
	return asset, nil
}

func applyIdentity(asset *models.Asset, ident *identity.AssetIdentity) {
	if ident.Hash != nil {
		value := ident.Hash.Value
		asset.Hash = &value
	}
	quality := ident.Quality
	asset.HashQuality = &quality
}

func sanitizeFileName(name string) string {
	clean := path.Base(strings.TrimSpace(name))
	if clean == "." || clean == "/" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}
