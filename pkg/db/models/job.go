package models

import (
	"encoding/json"
	"time"

	"github.com/heimdex/heimdex-backend/pkg/enums"
)

// Job is the unit of async work submitted to the queue. Status is the
// observable contract: transitions look the same whether the backend
// executed inline or through the broker.
type Job struct {
	JobID          string          `gorm:"column:job_id;primaryKey"`
	JobType        enums.JobType   `gorm:"column:job_type;not null"`
	OrgID          string          `gorm:"column:org_id;not null;index:ix_jobs_org_id_asset_id,priority:1;uniqueIndex:uq_jobs_org_idempotency,priority:1"`
	AssetID        *string         `gorm:"column:asset_id;index:ix_jobs_org_id_asset_id,priority:2"`
	Status         enums.JobStatus `gorm:"column:status;not null;default:queued"`
	Payload        json.RawMessage `gorm:"column:payload;type:jsonb"`
	Result         json.RawMessage `gorm:"column:result;type:jsonb"`
	Error          json.RawMessage `gorm:"column:error;type:jsonb"`
	StartedAt      *time.Time      `gorm:"column:started_at"`
	FinishedAt     *time.Time      `gorm:"column:finished_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	RetryCount     int             `gorm:"column:retry_count;not null;default:0"`
	IdempotencyKey *string         `gorm:"column:idempotency_key;uniqueIndex:uq_jobs_org_idempotency,priority:2"`
}
