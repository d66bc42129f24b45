package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-backend/api/middleware"
	"github.com/heimdex/heimdex-backend/api/responses"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
)

// JobList returns one cursor page of the caller's jobs, optionally
// filtered by status.
func JobList(svc IngestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgIDFromContext(r.Context())
		if orgID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization context missing"))
			return
		}

		page, err := svc.ListJobs(r.Context(), orgID, r.URL.Query().Get("status"), pageParams(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

// JobGet returns the current state of a job in the caller's organization.
func JobGet(svc IngestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := middleware.OrgIDFromContext(r.Context())
		if orgID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "organization context missing"))
			return
		}

		job, err := svc.GetJob(r.Context(), orgID, chi.URLParam(r, "jobID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, job)
	}
}
