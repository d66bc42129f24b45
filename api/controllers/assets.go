package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-backend/api/middleware"
	"github.com/heimdex/heimdex-backend/api/responses"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
	"github.com/heimdex/heimdex-backend/pkg/pagination"
)

const idempotencyKeyHeader = "Idempotency-Key"

type submitSidecarResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Location string `json:"location"`
}

// AssetSubmitSidecar creates a sidecar-generation job for the asset. The
// optional Idempotency-Key header makes retried submissions safe.
func AssetSubmitSidecar(svc IngestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgIDFromContext(r.Context())
		if orgID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization context missing"))
			return
		}

		assetID := chi.URLParam(r, "assetID")
		if assetID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "asset id is required"))
			return
		}

		job, err := svc.SubmitSidecarJob(r.Context(), orgID, assetID, r.Header.Get(idempotencyKeyHeader))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		location := "/api/v1/jobs/" + job.JobID
		w.Header().Set("Location", location)
		responses.WriteSuccessStatus(w, http.StatusAccepted, submitSidecarResponse{
			JobID:    job.JobID,
			Status:   string(job.Status),
			Location: location,
		})
	}
}

// AssetList returns one cursor page of the caller's assets.
func AssetList(svc IngestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgIDFromContext(r.Context())
		if orgID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization context missing"))
			return
		}

		page, err := svc.ListAssets(r.Context(), orgID, pageParams(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

func pageParams(r *http.Request) pagination.Params {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return pagination.Params{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}
}

// AssetGet returns the asset snapshot including sidecar and thumbnails.
func AssetGet(svc IngestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgIDFromContext(r.Context())
		if orgID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization context missing"))
			return
		}

		snapshot, err := svc.GetAsset(r.Context(), orgID, chi.URLParam(r, "assetID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, snapshot)
	}
}

// AssetSidecarGet returns the persisted sidecar document for an asset.
func AssetSidecarGet(svc IngestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgIDFromContext(r.Context())
		if orgID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization context missing"))
			return
		}

		doc, err := svc.GetSidecar(r.Context(), orgID, chi.URLParam(r, "assetID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, doc)
	}
}
