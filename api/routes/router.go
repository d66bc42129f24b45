package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heimdex/heimdex-backend/api/controllers"
	"github.com/heimdex/heimdex-backend/api/middleware"
	"github.com/heimdex/heimdex-backend/pkg/auth/session"
	"github.com/heimdex/heimdex-backend/pkg/config"
	"github.com/heimdex/heimdex-backend/pkg/logger"
	redisclient "github.com/heimdex/heimdex-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs. Nil optional fields
// disable the corresponding feature rather than panicking at route time.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Service  controllers.IngestService
	Sessions session.AccessSessionChecker
	Redis    *redisclient.Client

	// Readiness dependencies, pinged by /health/ready.
	Pingers []controllers.NamedPinger

	// Gatherer backs /metrics. Nil hides the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter wires middleware and handlers for the ingest API.
func NewRouter(deps Deps) *chi.Mux {
	cfg := deps.Config
	logg := deps.Logger
	svc := deps.Service

	r := chi.NewRouter()

	r.Use(middleware.Recoverer(logg))
	r.Use(middleware.RequestID(logg))
	r.Use(middleware.Logging(logg))
	r.Use(middleware.CORS(cfg.App.CORSOrigins...))

	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(logg, deps.Pingers...))

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	var limiter middleware.Limiter
	if deps.Redis != nil {
		limiter = deps.Redis
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.RateLimit(cfg.RateLimit, limiter, logg))

		r.Post("/ingest/init", controllers.IngestInitUpload(svc, logg))
		r.Post("/ingest/commit", controllers.IngestCommitUpload(svc, logg))
		r.Post("/ingest/probe", controllers.IngestProbe(svc, logg))

		r.Get("/assets", controllers.AssetList(svc, logg))
		r.Route("/assets/{assetID}", func(r chi.Router) {
			r.Get("/", controllers.AssetGet(svc, logg))
			r.Post("/sidecar", controllers.AssetSubmitSidecar(svc, logg))
			r.Get("/sidecar", controllers.AssetSidecarGet(svc, logg))
		})

		r.Get("/jobs", controllers.JobList(svc, logg))
		r.Get("/jobs/{jobID}", controllers.JobGet(svc, logg))
	})

	return r
}
