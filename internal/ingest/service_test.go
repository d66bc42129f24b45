package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/heimdex-backend/internal/identity"
	"github.com/heimdex/heimdex-backend/internal/probe"
	"github.com/heimdex/heimdex-backend/pkg/config"
	"github.com/heimdex/heimdex-backend/pkg/db"
	"github.com/heimdex/heimdex-backend/pkg/db/models"
	"github.com/heimdex/heimdex-backend/pkg/enums"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/idempotency"
	"github.com/heimdex/heimdex-backend/pkg/metrics"
	"github.com/heimdex/heimdex-backend/pkg/pagination"
	"github.com/heimdex/heimdex-backend/pkg/queue"
	"github.com/heimdex/heimdex-backend/pkg/storage"
)

type memStore struct {
	objects  map[string][]byte
	writeErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) Stat(_ context.Context, key string) (*storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.ObjectInfo{Key: key, SizeBytes: int64(len(data)), ETag: "etag-1"}, nil
}

func (m *memStore) Read(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (m *memStore) Write(_ context.Context, key string, payload []byte, _ string) (*storage.ObjectInfo, error) {
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	m.objects[key] = payload
	return &storage.ObjectInfo{Key: key, SizeBytes: int64(len(payload)), ETag: "etag-1"}, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memStore) PresignPut(key, contentType string, _ time.Duration) (*storage.PresignedURL, error) {
	headers := map[string]string{}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return &storage.PresignedURL{URL: "https://signed.example/" + key, Method: "PUT", Headers: headers}, nil
}

func (m *memStore) PresignGet(key string, _ time.Duration) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{URL: "https://signed.example/" + key, Method: "GET"}, nil
}

type stubQueue struct {
	messages []queue.Message
	err      error
}

func (q *stubQueue) Enqueue(_ context.Context, msg queue.Message) error {
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *stubQueue) Backend() string { return config.QueueBackendInline }

type passGuard struct{}

func (passGuard) Run(ctx context.Context, _, _, _ string, op idempotency.Operation) (json.RawMessage, bool, error) {
	raw, err := op(ctx)
	return raw, false, err
}

type stubProber struct {
	doc *probe.Sidecar
	err error
}

func (p *stubProber) Probe(context.Context, string) (*probe.Sidecar, *identity.AssetIdentity, error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.doc, nil, nil
}

type serviceHarness struct {
	svc    *Service
	repo   *Repository
	store  *memStore
	queue  *stubQueue
	prober *stubProber
}

func defaultIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		MaxUploadBytes:      1 << 20,
		StrongHashCeiling:   1 << 30,
		ProbeTimeout:        5 * time.Second,
		AllowedContentTypes: []string{"video/mp4", "video/quicktime"},
	}
}

func newServiceHarness(t *testing.T, cfg config.IngestConfig) *serviceHarness {
	t.Helper()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	store := newMemStore()
	jobQueue := &stubQueue{}
	prb := &stubProber{doc: &probe.Sidecar{SchemaVersion: probe.SchemaVersion, AssetID: "sha256:stub"}}

	svc, err := NewService(repo, db.NewWithConn(conn), store, jobQueue, passGuard{}, prb,
		cfg, 15*time.Minute, metrics.NewJobMetrics(nil), testLogger())
	if err != nil {
		t.Fatalf("building service: %v", err)
	}
	return &serviceHarness{svc: svc, repo: repo, store: store, queue: jobQueue, prober: prb}
}

func writeTempMedia(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write media file: %v", err)
	}
	return path
}

func TestInitUploadValidatesAndPresigns(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()

	if _, err := h.svc.InitUpload(ctx, "org-1", InitUploadInput{}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}
	if _, err := h.svc.InitUpload(ctx, "org-1", InitUploadInput{
		SourceName: "clip.mp4", ContentType: "application/zip",
	}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for content type, got %v", err)
	}
	if _, err := h.svc.InitUpload(ctx, "org-1", InitUploadInput{
		SourceName: "clip.mp4", SizeBytes: 2 << 20,
	}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for oversize, got %v", err)
	}

	out, err := h.svc.InitUpload(ctx, "org-1", InitUploadInput{
		SourceName:  "my clip.mp4",
		ContentType: "video/mp4",
		SizeBytes:   1024,
	})
	if err != nil {
		t.Fatalf("init upload failed: %v", err)
	}
	if out.UploadID == "" {
		t.Fatal("expected an upload id")
	}
	if !strings.HasPrefix(out.StorageKey, "org-1/uploads/"+out.UploadID+"/") {
		t.Fatalf("unexpected storage key %s", out.StorageKey)
	}
	if !strings.HasSuffix(out.StorageKey, "my-clip.mp4") {
		t.Fatalf("file name should be sanitized, got %s", out.StorageKey)
	}
	if out.Method != "PUT" || !strings.Contains(out.DestinationURI, out.StorageKey) {
		t.Fatalf("unexpected presign %+v", out)
	}
}

func TestCommitUploadRegistersAsset(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()
	mediaPath := writeTempMedia(t, "clip.mp4", 2048)

	view, err := h.svc.CommitUpload(ctx, "org-1", CommitUploadInput{
		SourceURI:   mediaPath,
		UploadID:    "u-1",
		ContentType: "video/mp4",
	})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if !strings.HasPrefix(view.AssetID, "sha256:") {
		t.Fatalf("expected a strong content id, got %s", view.AssetID)
	}
	if view.Status != enums.AssetStatusQueued {
		t.Fatalf("committed assets must be queued, got %s", view.Status)
	}
	if view.SizeBytes == nil || *view.SizeBytes != 2048 {
		t.Fatalf("unexpected size %v", view.SizeBytes)
	}
	if view.HashQuality == nil || *view.HashQuality != identity.QualityStrong {
		t.Fatalf("unexpected hash quality %v", view.HashQuality)
	}

	// Committing the same bytes again lands on the same row.
	again, err := h.svc.CommitUpload(ctx, "org-1", CommitUploadInput{
		SourceURI: mediaPath,
		UploadID:  "u-2",
	})
	if err != nil {
		t.Fatalf("recommit failed: %v", err)
	}
	if again.AssetID != view.AssetID {
		t.Fatalf("recommit produced a different asset: %s vs %s", again.AssetID, view.AssetID)
	}
}

func TestCommitUploadTenantMismatch(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()
	mediaPath := writeTempMedia(t, "clip.mp4", 512)

	if _, err := h.svc.CommitUpload(ctx, "org-1", CommitUploadInput{SourceURI: mediaPath}); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	_, err := h.svc.CommitUpload(ctx, "org-2", CommitUploadInput{SourceURI: mediaPath})
	if !pkgerrors.Is(err, pkgerrors.CodeTenantMismatch) {
		t.Fatalf("expected tenant mismatch, got %v", err)
	}
}

func TestCommitUploadRejectsMissingAndOversize(t *testing.T) {
	cfg := defaultIngestConfig()
	cfg.MaxUploadBytes = 100
	h := newServiceHarness(t, cfg)
	ctx := context.Background()

	if _, err := h.svc.CommitUpload(ctx, "org-1", CommitUploadInput{
		SourceURI: filepath.Join(t.TempDir(), "missing.mp4"),
	}); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	big := writeTempMedia(t, "big.mp4", 200)
	if _, err := h.svc.CommitUpload(ctx, "org-1", CommitUploadInput{SourceURI: big}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation for oversize, got %v", err)
	}

	if _, err := h.svc.CommitUpload(ctx, "org-1", CommitUploadInput{
		SourceURI: "gs://bucket/key.mp4",
	}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation for gs scheme, got %v", err)
	}
}

func TestSubmitSidecarJobEnqueues(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()
	mediaPath := writeTempMedia(t, "clip.mp4", 512)

	view, err := h.svc.CommitUpload(ctx, "org-1", CommitUploadInput{SourceURI: mediaPath})
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	job, err := h.svc.SubmitSidecarJob(ctx, "org-1", view.AssetID, "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if job.Status != enums.JobStatusQueued || job.JobType != enums.JobTypeGenerateSidecar {
		t.Fatalf("unexpected job %+v", job)
	}

	if len(h.queue.messages) != 1 {
		t.Fatalf("expected one enqueued message, got %d", len(h.queue.messages))
	}
	msg := h.queue.messages[0]
	if msg.JobID != job.JobID || msg.OrgID != "org-1" || msg.AssetID != view.AssetID {
		t.Fatalf("unexpected envelope %+v", msg)
	}

	var payload SidecarJobPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SourceURI != mediaPath {
		t.Fatalf("payload should carry the source uri, got %s", payload.SourceURI)
	}
}

func TestSubmitSidecarJobStateConflicts(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()

	seedAsset(t, h.repo, "org-1", "sha256:busy", enums.AssetStatusProcessing)
	if _, err := h.svc.SubmitSidecarJob(ctx, "org-1", "sha256:busy", ""); !pkgerrors.Is(err, pkgerrors.CodeAssetBusy) {
		t.Fatalf("expected asset busy, got %v", err)
	}

	seedAsset(t, h.repo, "org-1", "sha256:done", enums.AssetStatusReady)
	if _, err := h.svc.SubmitSidecarJob(ctx, "org-1", "sha256:done", ""); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation for ready asset, got %v", err)
	}

	if _, err := h.svc.SubmitSidecarJob(ctx, "org-1", "sha256:unknown", ""); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	seedAsset(t, h.repo, "org-2", "sha256:other", enums.AssetStatusQueued)
	if _, err := h.svc.SubmitSidecarJob(ctx, "org-1", "sha256:other", ""); !pkgerrors.Is(err, pkgerrors.CodeTenantMismatch) {
		t.Fatalf("expected tenant mismatch, got %v", err)
	}
}

func TestSubmitSidecarJobResubmitsFailedAsset(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()
	seedAsset(t, h.repo, "org-1", "sha256:failed", enums.AssetStatusFailed)

	job, err := h.svc.SubmitSidecarJob(ctx, "org-1", "sha256:failed", "")
	if err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}
	if job.Status != enums.JobStatusQueued {
		t.Fatalf("unexpected job status %s", job.Status)
	}

	asset, err := h.repo.FindAsset(ctx, "sha256:failed")
	if err != nil {
		t.Fatalf("find asset: %v", err)
	}
	if asset.Status != enums.AssetStatusQueued {
		t.Fatalf("failed assets must requeue on resubmission, got %s", asset.Status)
	}
}

func TestSubmitSidecarJobQueueFailureLeavesNoOrphans(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()
	seedAsset(t, h.repo, "org-1", "sha256:failed", enums.AssetStatusFailed)

	h.queue.err = pkgerrors.New(pkgerrors.CodeQueueUnavail, "broker down")

	_, err := h.svc.SubmitSidecarJob(ctx, "org-1", "sha256:failed", "")
	if !pkgerrors.Is(err, pkgerrors.CodeQueueUnavail) {
		t.Fatalf("expected queue unavailable, got %v", err)
	}

	active, countErr := h.repo.CountActiveJobs(ctx, "sha256:failed")
	if countErr != nil || active != 0 {
		t.Fatalf("expected no job rows after rollback, got %d err=%v", active, countErr)
	}

	asset, findErr := h.repo.FindAsset(ctx, "sha256:failed")
	if findErr != nil {
		t.Fatalf("find asset: %v", findErr)
	}
	if asset.Status != enums.AssetStatusFailed {
		t.Fatalf("asset must return to its prior status, got %s", asset.Status)
	}
}

func TestSubmitSidecarJobReplaysByKey(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()
	seedAsset(t, h.repo, "org-1", "sha256:a", enums.AssetStatusQueued)

	first, err := h.svc.SubmitSidecarJob(ctx, "org-1", "sha256:a", "k1")
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	second, err := h.svc.SubmitSidecarJob(ctx, "org-1", "sha256:a", "k1")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if second.JobID != first.JobID {
		t.Fatalf("replay must return the original job, got %s vs %s", second.JobID, first.JobID)
	}
	if len(h.queue.messages) != 1 {
		t.Fatalf("replay must not enqueue again, got %d messages", len(h.queue.messages))
	}
}

func TestGetJobTenantScoped(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()
	seedAsset(t, h.repo, "org-1", "sha256:a", enums.AssetStatusQueued)

	job, err := h.svc.SubmitSidecarJob(ctx, "org-1", "sha256:a", "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	got, err := h.svc.GetJob(ctx, "org-1", job.JobID)
	if err != nil || got.JobID != job.JobID {
		t.Fatalf("get job failed: %+v err=%v", got, err)
	}

	if _, err := h.svc.GetJob(ctx, "org-2", job.JobID); !pkgerrors.Is(err, pkgerrors.CodeTenantMismatch) {
		t.Fatalf("expected tenant mismatch, got %v", err)
	}
	if _, err := h.svc.GetJob(ctx, "org-1", "job-unknown"); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetAssetSnapshot(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()
	seedAsset(t, h.repo, "org-1", "sha256:a", enums.AssetStatusReady)

	etag := "etag-1"
	if err := h.repo.UpsertSidecar(ctx, &models.Sidecar{
		AssetID:       "sha256:a",
		OrgID:         "org-1",
		SchemaVersion: probe.SchemaVersion,
		StorageKey:    storage.SidecarKey("org-1", "sha256:a"),
		ETag:          &etag,
	}); err != nil {
		t.Fatalf("seed sidecar: %v", err)
	}
	ts := int64(62740)
	if err := h.repo.ReplaceThumbnails(ctx, "sha256:a", []models.Thumbnail{
		{AssetID: "sha256:a", OrgID: "org-1", Idx: 0, TsMs: &ts, StorageKey: storage.ThumbKey("org-1", "sha256:a", "poster.jpg")},
	}); err != nil {
		t.Fatalf("seed thumbnails: %v", err)
	}

	snapshot, err := h.svc.GetAsset(ctx, "org-1", "sha256:a")
	if err != nil {
		t.Fatalf("get asset failed: %v", err)
	}
	if snapshot.Sidecar == nil || snapshot.Sidecar.StorageKey != "org-1/sidecars/sha256:a.vna.json" {
		t.Fatalf("unexpected sidecar %+v", snapshot.Sidecar)
	}
	if len(snapshot.Thumbnails) != 1 || snapshot.Thumbnails[0].StorageKey != "org-1/sha256:a/thumbs/poster.jpg" {
		t.Fatalf("unexpected thumbnails %+v", snapshot.Thumbnails)
	}
}

func TestGetSidecarReturnsDocument(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()
	seedAsset(t, h.repo, "org-1", "sha256:a", enums.AssetStatusReady)

	if _, err := h.svc.GetSidecar(ctx, "org-1", "sha256:a"); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found before generation, got %v", err)
	}

	key := storage.SidecarKey("org-1", "sha256:a")
	document := []byte(`{"schema_version":"0.1.0","asset_id":"sha256:a"}`)
	h.store.objects[key] = document
	if err := h.repo.UpsertSidecar(ctx, &models.Sidecar{
		AssetID:       "sha256:a",
		OrgID:         "org-1",
		SchemaVersion: probe.SchemaVersion,
		StorageKey:    key,
	}); err != nil {
		t.Fatalf("seed sidecar: %v", err)
	}

	doc, err := h.svc.GetSidecar(ctx, "org-1", "sha256:a")
	if err != nil {
		t.Fatalf("get sidecar failed: %v", err)
	}
	if string(doc.Document) != string(document) {
		t.Fatalf("unexpected document %s", doc.Document)
	}
	if doc.SchemaVersion != probe.SchemaVersion {
		t.Fatalf("unexpected schema version %s", doc.SchemaVersion)
	}
}

func TestProbeIsSideChannel(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()

	doc, err := h.svc.Probe(ctx, "org-1", "/media/clip.mp4")
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if doc.AssetID != "sha256:stub" {
		t.Fatalf("unexpected document %+v", doc)
	}

	var count int64
	if err := h.repo.db.Model(&models.Asset{}).Count(&count).Error; err != nil {
		t.Fatalf("count assets: %v", err)
	}
	if count != 0 {
		t.Fatal("probe must not persist asset rows")
	}
}

func seedListAsset(t *testing.T, h *serviceHarness, orgID, assetID string, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := h.repo.EnsureOrg(ctx, orgID); err != nil {
		t.Fatalf("ensure org: %v", err)
	}
	asset := &models.Asset{
		AssetID:   assetID,
		OrgID:     orgID,
		SourceURI: "/media/" + assetID + ".mp4",
		Status:    enums.AssetStatusReady,
		CreatedAt: createdAt,
	}
	if err := h.repo.CreateAsset(ctx, asset); err != nil {
		t.Fatalf("create asset: %v", err)
	}
}

func TestListAssetsPaginatesNewestFirst(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedListAsset(t, h, "org-1", "sha256:aaa", base)
	seedListAsset(t, h, "org-1", "sha256:bbb", base.Add(time.Minute))
	seedListAsset(t, h, "org-1", "sha256:ccc", base.Add(2*time.Minute))
	seedListAsset(t, h, "org-2", "sha256:zzz", base.Add(3*time.Minute))

	page, err := h.svc.ListAssets(ctx, "org-1", pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("list assets failed: %v", err)
	}
	if len(page.Assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(page.Assets))
	}
	if page.Assets[0].AssetID != "sha256:ccc" || page.Assets[1].AssetID != "sha256:bbb" {
		t.Fatalf("unexpected page order: %s, %s", page.Assets[0].AssetID, page.Assets[1].AssetID)
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next cursor")
	}

	rest, err := h.svc.ListAssets(ctx, "org-1", pagination.Params{Limit: 2, Cursor: page.NextCursor})
	if err != nil {
		t.Fatalf("list second page failed: %v", err)
	}
	if len(rest.Assets) != 1 || rest.Assets[0].AssetID != "sha256:aaa" {
		t.Fatalf("unexpected second page %+v", rest.Assets)
	}
	if rest.NextCursor != "" {
		t.Fatal("expected no cursor on the last page")
	}
}

func TestListAssetsRejectsBadCursor(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())

	if _, err := h.svc.ListAssets(context.Background(), "org-1", pagination.Params{Cursor: "!!"}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListJobsFiltersByStatus(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()

	if err := h.repo.EnsureOrg(ctx, "org-1"); err != nil {
		t.Fatalf("ensure org: %v", err)
	}
	assetID := "sha256:aaa"
	for i, status := range []enums.JobStatus{enums.JobStatusFailed, enums.JobStatusQueued} {
		job := &models.Job{
			JobID:   "job-" + string(rune('a'+i)),
			JobType: enums.JobTypeGenerateSidecar,
			OrgID:   "org-1",
			AssetID: &assetID,
			Status:  status,
		}
		if err := h.repo.CreateJob(ctx, job); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}

	page, err := h.svc.ListJobs(ctx, "org-1", "failed", pagination.Params{})
	if err != nil {
		t.Fatalf("list jobs failed: %v", err)
	}
	if len(page.Jobs) != 1 || page.Jobs[0].Status != enums.JobStatusFailed {
		t.Fatalf("unexpected jobs %+v", page.Jobs)
	}

	all, err := h.svc.ListJobs(ctx, "org-1", "", pagination.Params{})
	if err != nil {
		t.Fatalf("list all jobs failed: %v", err)
	}
	if len(all.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all.Jobs))
	}

	if _, err := h.svc.ListJobs(ctx, "org-1", "bogus", pagination.Params{}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for status filter, got %v", err)
	}
}

func TestCommitUploadRecordsAuditEvent(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()

	mediaPath := writeTempMedia(t, "clip.mp4", 2048)
	if _, err := h.svc.CommitUpload(ctx, "org-1", CommitUploadInput{SourceURI: mediaPath}); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	var events []models.AuditEvent
	if err := h.repo.db.Find(&events).Error; err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d", len(events))
	}
	if events[0].Action != "asset.committed" || events[0].OrgID != "org-1" {
		t.Fatalf("unexpected audit event %+v", events[0])
	}
	if !strings.Contains(string(events[0].Meta), "asset_id") {
		t.Fatalf("unexpected audit metadata %s", events[0].Meta)
	}
}

func TestSubmitSidecarJobRejectsKeyReuseAcrossAssets(t *testing.T) {
	h := newServiceHarness(t, defaultIngestConfig())
	ctx := context.Background()

	first := writeTempMedia(t, "first.mp4", 1024)
	second := writeTempMedia(t, "second.mp4", 4096)
	a, err := h.svc.CommitUpload(ctx, "org-1", CommitUploadInput{SourceURI: first})
	if err != nil {
		t.Fatalf("commit first: %v", err)
	}
	b, err := h.svc.CommitUpload(ctx, "org-1", CommitUploadInput{SourceURI: second})
	if err != nil {
		t.Fatalf("commit second: %v", err)
	}

	if _, err := h.svc.SubmitSidecarJob(ctx, "org-1", a.AssetID, "shared-key"); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if _, err := h.svc.SubmitSidecarJob(ctx, "org-1", b.AssetID, "shared-key"); !pkgerrors.Is(err, pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}
