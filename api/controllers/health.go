package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-backend/api/responses"
	"github.com/heimdex/heimdex-backend/pkg/config"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// DependencyPinger is a health-checkable backing service.
type DependencyPinger interface {
	Ping(ctx context.Context) error
}

// NamedPinger tags a pinger with the dependency name reported on failure.
type NamedPinger struct {
	Name   string
	Pinger DependencyPinger
}

// HealthLive reports process liveness. It never touches backing services.
func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Heimdex-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every registered dependency and fails the check when any
// is unreachable.
func HealthReady(logg *logger.Logger, deps ...NamedPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps))
		var failed string
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			if err := dep.Pinger.Ping(ctx); err != nil {
				logg.Error(ctx, "readiness check failed", err)
				checks[dep.Name] = "unreachable"
				if failed == "" {
					failed = dep.Name
				}
				continue
			}
			checks[dep.Name] = "ok"
		}

		if failed != "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, failed+" unreachable"))
			return
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
