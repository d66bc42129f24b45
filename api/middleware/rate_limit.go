package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/heimdex/heimdex-backend/api/responses"
	"github.com/heimdex/heimdex-backend/pkg/config"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
)

// Limiter is the fixed-window counter the throttle runs on.
type Limiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit throttles requests per organization using a fixed Redis window.
// Requests without an org in context (unauthenticated surfaces) fall back to
// the client IP.
func RateLimit(cfg config.RateLimitConfig, limiter Limiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || cfg.RequestsPerWindow <= 0 || cfg.Window <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			scope := "org:" + OrgIDFromContext(ctx)
			if scope == "org:" {
				scope = "ip:" + clientIP(r)
			}

			allowed, count, err := limiter.FixedWindowAllow(ctx, scope, cfg.RequestsPerWindow, cfg.Window)
			if err != nil {
				// Throttling must not take the API down with it.
				if logg != nil {
					logg.Error(ctx, "rate limiter unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"scope": scope,
						"count": count,
					})
					logg.Warn(ctx, "request throttled")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimited, "too many requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
