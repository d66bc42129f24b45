package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/heimdex/heimdex-backend/pkg/config"
	"github.com/heimdex/heimdex-backend/pkg/db"
	"github.com/heimdex/heimdex-backend/pkg/db/models"
	"github.com/heimdex/heimdex-backend/pkg/enums"
	"github.com/heimdex/heimdex-backend/pkg/metrics"
)

func newTestReaper(t *testing.T) (*Reaper, *Repository, *gorm.DB) {
	t.Helper()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	reaper, err := NewReaper(repo, db.NewWithConn(conn), config.JobsConfig{
		StaleAfter:     30 * time.Minute,
		ReaperInterval: time.Minute,
	}, metrics.NewJobMetrics(nil), testLogger())
	if err != nil {
		t.Fatalf("building reaper: %v", err)
	}
	return reaper, repo, conn
}

func seedRunningJob(t *testing.T, repo *Repository, orgID, assetID string) *models.Job {
	t.Helper()
	ctx := context.Background()
	started := time.Now().UTC()
	job := &models.Job{
		JobID:     "job-" + assetID,
		JobType:   enums.JobTypeGenerateSidecar,
		OrgID:     orgID,
		AssetID:   &assetID,
		Status:    enums.JobStatusRunning,
		StartedAt: &started,
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func ageJob(t *testing.T, conn *gorm.DB, jobID string, age time.Duration) {
	t.Helper()
	old := time.Now().UTC().Add(-age)
	if err := conn.Model(&models.Job{}).Where("job_id = ?", jobID).
		UpdateColumn("updated_at", old).Error; err != nil {
		t.Fatalf("age job: %v", err)
	}
}

func ageAsset(t *testing.T, conn *gorm.DB, assetID string, age time.Duration) {
	t.Helper()
	old := time.Now().UTC().Add(-age)
	if err := conn.Model(&models.Asset{}).Where("asset_id = ?", assetID).
		UpdateColumn("modified_at", old).Error; err != nil {
		t.Fatalf("age asset: %v", err)
	}
}

func TestSweepReapsStaleRunningJob(t *testing.T) {
	reaper, repo, conn := newTestReaper(t)
	ctx := context.Background()

	seedAsset(t, repo, "org-1", "sha256:stale", enums.AssetStatusProcessing)
	job := seedRunningJob(t, repo, "org-1", "sha256:stale")
	ageJob(t, conn, job.JobID, time.Hour)

	recovered, err := reaper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected one recovered row, got %d", recovered)
	}

	reaped, err := repo.FindJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	if reaped.Status != enums.JobStatusFailed || reaped.FinishedAt == nil {
		t.Fatalf("expected a failed finished job, got %+v", reaped)
	}
	if !strings.Contains(string(reaped.Error), `"retryable":true`) {
		t.Fatalf("reaped jobs must carry a retryable error, got %s", reaped.Error)
	}

	asset, err := repo.FindAsset(ctx, "sha256:stale")
	if err != nil {
		t.Fatalf("find asset: %v", err)
	}
	if asset.Status != enums.AssetStatusQueued {
		t.Fatalf("asset must requeue after reaping, got %s", asset.Status)
	}
}

func TestSweepIgnoresFreshRows(t *testing.T) {
	reaper, repo, _ := newTestReaper(t)
	ctx := context.Background()

	seedAsset(t, repo, "org-1", "sha256:fresh", enums.AssetStatusProcessing)
	job := seedRunningJob(t, repo, "org-1", "sha256:fresh")

	recovered, err := reaper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("expected no recovery, got %d", recovered)
	}

	current, err := repo.FindJob(ctx, job.JobID)
	if err != nil || current.Status != enums.JobStatusRunning {
		t.Fatalf("fresh job must stay running, got %+v err=%v", current, err)
	}
	asset, err := repo.FindAsset(ctx, "sha256:fresh")
	if err != nil || asset.Status != enums.AssetStatusProcessing {
		t.Fatalf("fresh asset must stay processing, got %+v err=%v", asset, err)
	}
}

func TestSweepRequeuesOrphanedProcessingAsset(t *testing.T) {
	reaper, repo, conn := newTestReaper(t)
	ctx := context.Background()

	seedAsset(t, repo, "org-1", "sha256:orphan", enums.AssetStatusProcessing)
	ageAsset(t, conn, "sha256:orphan", time.Hour)

	recovered, err := reaper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected one recovered row, got %d", recovered)
	}

	asset, err := repo.FindAsset(ctx, "sha256:orphan")
	if err != nil {
		t.Fatalf("find asset: %v", err)
	}
	if asset.Status != enums.AssetStatusQueued {
		t.Fatalf("orphaned asset must requeue, got %s", asset.Status)
	}
}

func TestSweepSkipsAssetWithLiveJob(t *testing.T) {
	reaper, repo, conn := newTestReaper(t)
	ctx := context.Background()

	seedAsset(t, repo, "org-1", "sha256:held", enums.AssetStatusProcessing)
	ageAsset(t, conn, "sha256:held", time.Hour)

	assetID := "sha256:held"
	if err := repo.CreateJob(ctx, &models.Job{
		JobID:   "job-held",
		JobType: enums.JobTypeGenerateSidecar,
		OrgID:   "org-1",
		AssetID: &assetID,
		Status:  enums.JobStatusQueued,
	}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	recovered, err := reaper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("assets with a live job must not be touched, got %d", recovered)
	}

	asset, err := repo.FindAsset(ctx, assetID)
	if err != nil || asset.Status != enums.AssetStatusProcessing {
		t.Fatalf("asset must stay processing, got %+v err=%v", asset, err)
	}
}
