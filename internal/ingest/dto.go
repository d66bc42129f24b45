package ingest

import (
	"encoding/json"
	"time"

	"github.com/heimdex/heimdex-backend/pkg/db/models"
	"github.com/heimdex/heimdex-backend/pkg/enums"
)

// InitUploadInput models the payload required to stage an upload.
type InitUploadInput struct {
	SourceName  string `json:"source_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// InitUploadOutput carries the presigned destination handed back to the client.
type InitUploadOutput struct {
	UploadID       string            `json:"upload_id"`
	StorageKey     string            `json:"storage_key"`
	DestinationURI string            `json:"destination_uri"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// CommitUploadInput registers a staged file as an asset.
type CommitUploadInput struct {
	SourceURI   string `json:"source_uri"`
	UploadID    string `json:"upload_id"`
	ContentType string `json:"content_type"`
}

// AssetView is the asset row shape returned to callers.
type AssetView struct {
	AssetID     string            `json:"asset_id"`
	OrgID       string            `json:"org_id"`
	SourceURI   string            `json:"source_uri"`
	SizeBytes   *int64            `json:"size_bytes"`
	Hash        *string           `json:"hash"`
	HashQuality *string           `json:"hash_quality"`
	ContentType *string           `json:"content_type"`
	Status      enums.AssetStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	ModifiedAt  time.Time         `json:"modified_at"`
}

// SidecarView summarizes the persisted sidecar row.
type SidecarView struct {
	SchemaVersion string  `json:"schema_version"`
	StorageKey    string  `json:"storage_key"`
	ETag          *string `json:"etag"`
}

// ThumbnailView is one rendered thumbnail in asset snapshots.
type ThumbnailView struct {
	Idx        int    `json:"idx"`
	StorageKey string `json:"storage_key"`
	Width      *int   `json:"width"`
	Height     *int   `json:"height"`
	TsMs       *int64 `json:"ts_ms"`
}

// AssetSnapshot is the full read model for one asset.
type AssetSnapshot struct {
	AssetView
	Sidecar    *SidecarView    `json:"sidecar"`
	Thumbnails []ThumbnailView `json:"thumbnails"`
}

// JobView is the job row shape returned to callers.
type JobView struct {
	JobID      string          `json:"job_id"`
	JobType    enums.JobType   `json:"job_type"`
	OrgID      string          `json:"org_id"`
	AssetID    *string         `json:"asset_id"`
	Status     enums.JobStatus `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
	RetryCount int             `json:"retry_count"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at"`
}

// AssetPage is one cursor page of assets.
type AssetPage struct {
	Assets     []AssetView `json:"assets"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// JobPage is one cursor page of jobs.
type JobPage struct {
	Jobs       []JobView `json:"jobs"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// SidecarDocument pairs the sidecar row with the stored JSON document.
type SidecarDocument struct {
	SidecarView
	Document json.RawMessage `json:"document"`
}

func assetView(asset *models.Asset) AssetView {
	return AssetView{
		AssetID:     asset.AssetID,
		OrgID:       asset.OrgID,
		SourceURI:   asset.SourceURI,
		SizeBytes:   asset.SizeBytes,
		Hash:        asset.Hash,
		HashQuality: asset.HashQuality,
		ContentType: asset.ContentType,
		Status:      asset.Status,
		CreatedAt:   asset.CreatedAt,
		ModifiedAt:  asset.ModifiedAt,
	}
}

func jobView(job *models.Job) JobView {
	return JobView{
		JobID:      job.JobID,
		JobType:    job.JobType,
		OrgID:      job.OrgID,
		AssetID:    job.AssetID,
		Status:     job.Status,
		Result:     job.Result,
		Error:      job.Error,
		RetryCount: job.RetryCount,
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
}

// SidecarJobPayload is what the queue envelope and job row carry. The
// runner re-reads everything else from the database.
type SidecarJobPayload struct {
	OrgID     string `json:"org_id"`
	AssetID   string `json:"asset_id"`
	SourceURI string `json:"source_uri"`
}
