package controllers

import (
	"context"

	"github.com/heimdex/heimdex-backend/internal/ingest"
	"github.com/heimdex/heimdex-backend/internal/probe"
	"github.com/heimdex/heimdex-backend/pkg/pagination"
)

// IngestService is the surface the HTTP layer needs from the ingest domain.
type IngestService interface {
	InitUpload(ctx context.Context, orgID string, input ingest.InitUploadInput) (*ingest.InitUploadOutput, error)
	CommitUpload(ctx context.Context, orgID string, input ingest.CommitUploadInput) (*ingest.AssetView, error)
	Probe(ctx context.Context, orgID, sourceURI string) (*probe.Sidecar, error)
	SubmitSidecarJob(ctx context.Context, orgID, assetID, idempotencyKey string) (*ingest.JobView, error)
	GetJob(ctx context.Context, orgID, jobID string) (*ingest.JobView, error)
	GetAsset(ctx context.Context, orgID, assetID string) (*ingest.AssetSnapshot, error)
	GetSidecar(ctx context.Context, orgID, assetID string) (*ingest.SidecarDocument, error)
	ListAssets(ctx context.Context, orgID string, page pagination.Params) (*ingest.AssetPage, error)
	ListJobs(ctx context.Context, orgID, status string, page pagination.Params) (*ingest.JobPage, error)
}
