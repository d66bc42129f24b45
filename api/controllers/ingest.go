package controllers

import (
	"net/http"

	"github.com/heimdex/heimdex-backend/api/middleware"
	"github.com/heimdex/heimdex-backend/api/responses"
	"github.com/heimdex/heimdex-backend/api/validators"
	"github.com/heimdex/heimdex-backend/internal/ingest"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
)

type initUploadRequest struct {
	SourceName  string `json:"source_name" validate:"required"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes" validate:"min=0"`
}

type commitUploadRequest struct {
	SourceURI   string `json:"source_uri" validate:"required"`
	UploadID    string `json:"upload_id"`
	ContentType string `json:"content_type"`
}

type probeRequest struct {
	SourceURI string `json:"source_uri" validate:"required"`
}

// IngestInitUpload stages an upload and returns the presigned destination.
func IngestInitUpload(svc IngestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgIDFromContext(r.Context())
		if orgID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization context missing"))
			return
		}

		var payload initUploadRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.InitUpload(r.Context(), orgID, ingest.InitUploadInput{
			SourceName:  payload.SourceName,
			ContentType: payload.ContentType,
			SizeBytes:   payload.SizeBytes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}

// IngestCommitUpload registers a staged file as an asset.
func IngestCommitUpload(svc IngestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgIDFromContext(r.Context())
		if orgID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization context missing"))
			return
		}

		var payload commitUploadRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		asset, err := svc.CommitUpload(r.Context(), orgID, ingest.CommitUploadInput{
			SourceURI:   payload.SourceURI,
			UploadID:    payload.UploadID,
			ContentType: payload.ContentType,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, asset)
	}
}

// IngestProbe runs the probe without persisting anything.
func IngestProbe(svc IngestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgIDFromContext(r.Context())
		if orgID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization context missing"))
			return
		}

		var payload probeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		doc, err := svc.Probe(r.Context(), orgID, payload.SourceURI)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, doc)
	}
}
