package ingest

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/heimdex/heimdex-backend/pkg/db"
	"github.com/heimdex/heimdex-backend/pkg/db/models"
	"github.com/heimdex/heimdex-backend/pkg/enums"
	"github.com/heimdex/heimdex-backend/pkg/pagination"
)

// Repository exposes ingest persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an ingest repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithDB returns a repository bound to a different handle, typically a
// transaction started with db.Client.WithTx.
func (r *Repository) WithDB(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// EnsureOrg creates the tenant row if it does not exist yet.
func (r *Repository) EnsureOrg(ctx context.Context, orgID string) error {
	org := models.Organization{OrgID: orgID}
	return r.db.WithContext(ctx).FirstOrCreate(&org, models.Organization{OrgID: orgID}).Error
}

// FindAsset retrieves an asset by its content-derived ID regardless of
// tenant. Callers compare the row's org against the caller identity.
func (r *Repository) FindAsset(ctx context.Context, assetID string) (*models.Asset, error) {
	var asset models.Asset
	if err := r.db.WithContext(ctx).First(&asset, "asset_id = ?", assetID).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// CreateAsset persists a new asset row.
func (r *Repository) CreateAsset(ctx context.Context, asset *models.Asset) error {
	return r.db.WithContext(ctx).Create(asset).Error
}

// SaveAsset writes every column of an existing asset row.
func (r *Repository) SaveAsset(ctx context.Context, asset *models.Asset) error {
	return r.db.WithContext(ctx).Save(asset).Error
}

// TransitionAsset applies a compare-and-set status update. It reports
// whether the row actually moved, so callers can distinguish a lost race
// from success.
func (r *Repository) TransitionAsset(ctx context.Context, assetID string, from []enums.AssetStatus, to enums.AssetStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Asset{}).
		Where("asset_id = ? AND status IN ?", assetID, from).
		Updates(map[string]any{"status": to, "modified_at": time.Now().UTC()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CreateJob persists a new job row.
func (r *Repository) CreateJob(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// DeleteJob removes a job row. Used to undo job creation when the queue
// rejects the enqueue, so no orphan rows are left behind.
func (r *Repository) DeleteJob(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&models.Job{}).Error
}

// FindJob retrieves a job by ID.
func (r *Repository) FindJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CountActiveJobs reports how many queued or running jobs target the asset.
func (r *Repository) CountActiveJobs(ctx context.Context, assetID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("asset_id = ? AND status IN ?", assetID, []enums.JobStatus{enums.JobStatusQueued, enums.JobStatusRunning}).
		Count(&count).Error
	return count, err
}

// FindJobByIdempotencyKey retrieves the job previously created under the
// given key within the tenant, if any.
func (r *Repository) FindJobByIdempotencyKey(ctx context.Context, orgID, key string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		First(&job, "org_id = ? AND idempotency_key = ?", orgID, key).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// StartJob moves a queued job to running and stamps started_at. Reports
// false when the job was not in queued, which means another worker got
// there first or the job was already finished.
func (r *Repository) StartJob(ctx context.Context, jobID string) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("job_id = ? AND status = ?", jobID, enums.JobStatusQueued).
		Updates(map[string]any{"status": enums.JobStatusRunning, "started_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FinishJob records a terminal job status with its result or error payload.
func (r *Repository) FinishJob(ctx context.Context, jobID string, status enums.JobStatus, result, jobErr json.RawMessage) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"status":      status,
			"result":      result,
			"error":       jobErr,
			"finished_at": now,
		}).Error
}

// IncrementJobRetry bumps the retry counter after a transient failure.
func (r *Repository) IncrementJobRetry(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("job_id = ?", jobID).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error
}

// UpsertSidecar writes the sidecar row for an asset, replacing a prior
// generation if one exists.
func (r *Repository) UpsertSidecar(ctx context.Context, sidecar *models.Sidecar) error {
	var existing models.Sidecar
	err := r.db.WithContext(ctx).First(&existing, "asset_id = ?", sidecar.AssetID).Error
	if err == nil {
		return r.db.WithContext(ctx).
			Model(&models.Sidecar{}).
			Where("asset_id = ?", sidecar.AssetID).
			Updates(map[string]any{
				"schema_version": sidecar.SchemaVersion,
				"storage_key":    sidecar.StorageKey,
				"etag":           sidecar.ETag,
			}).Error
	}
	if !db.IsNotFound(err) {
		return err
	}
	return r.db.WithContext(ctx).Create(sidecar).Error
}

// GetSidecar retrieves the sidecar row for an asset.
func (r *Repository) GetSidecar(ctx context.Context, assetID string) (*models.Sidecar, error) {
	var sidecar models.Sidecar
	if err := r.db.WithContext(ctx).First(&sidecar, "asset_id = ?", assetID).Error; err != nil {
		return nil, err
	}
	return &sidecar, nil
}

// ReplaceThumbnails swaps the full thumbnail set for an asset.
func (r *Repository) ReplaceThumbnails(ctx context.Context, assetID string, thumbnails []models.Thumbnail) error {
	if err := r.db.WithContext(ctx).Where("asset_id = ?", assetID).Delete(&models.Thumbnail{}).Error; err != nil {
		return err
	}
	if len(thumbnails) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&thumbnails).Error
}

// ListThumbnails returns an asset's thumbnails ordered by index.
func (r *Repository) ListThumbnails(ctx context.Context, assetID string) ([]models.Thumbnail, error) {
	var thumbnails []models.Thumbnail
	err := r.db.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("idx ASC").
		Find(&thumbnails).Error
	if err != nil {
		return nil, err
	}
	return thumbnails, nil
}

// RecordAuditEvent appends a tenant-visible audit row.
func (r *Repository) RecordAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListAssets returns the org's assets newest first. The cursor pins the
// (created_at, asset_id) position of the previous page's last row.
func (r *Repository) ListAssets(ctx context.Context, orgID string, cursor *pagination.Cursor, limit int) ([]models.Asset, error) {
	query := r.db.WithContext(ctx).Where("org_id = ?", orgID)
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND asset_id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var assets []models.Asset
	err := query.
		Order("created_at DESC, asset_id DESC").
		Limit(limit).
		Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// ListJobs returns the org's jobs newest first, optionally filtered by
// status, with the same cursor convention as ListAssets.
func (r *Repository) ListJobs(ctx context.Context, orgID string, status enums.JobStatus, cursor *pagination.Cursor, limit int) ([]models.Job, error) {
	query := r.db.WithContext(ctx).Where("org_id = ?", orgID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND job_id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var jobs []models.Job
	err := query.
		Order("created_at DESC, job_id DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// StaleProcessingAssets lists assets stuck in processing since before the
// cutoff. The reaper resets them so they can be resubmitted.
func (r *Repository) StaleProcessingAssets(ctx context.Context, cutoff time.Time) ([]models.Asset, error) {
	var assets []models.Asset
	err := r.db.WithContext(ctx).
		Where("status = ? AND modified_at < ?", enums.AssetStatusProcessing, cutoff).
		Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// StaleRunningJobs lists jobs that entered running before the cutoff and
// never finished.
func (r *Repository) StaleRunningJobs(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.JobStatusRunning, cutoff).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
