package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/heimdex/heimdex-backend/api/responses"
	pkgAuth "github.com/heimdex/heimdex-backend/pkg/auth"
	"github.com/heimdex/heimdex-backend/pkg/auth/session"
	"github.com/heimdex/heimdex-backend/pkg/config"
	pkgerrors "github.com/heimdex/heimdex-backend/pkg/errors"
	"github.com/heimdex/heimdex-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// caller's organization. Every tenant-scoped handler reads the org from
// this context, never from the request body.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if verifier != nil {
				if claims.ID == "" {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
					return
				}
				ok, err := verifier.HasSession(r.Context(), claims.ID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session revoked"))
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxOrgID, claims.OrgID)
			if claims.ClientName != "" {
				ctx = context.WithValue(ctx, ctxClientName, claims.ClientName)
			}

			if logg != nil {
				ctx = logg.WithOrgID(ctx, claims.OrgID)
				if claims.ClientName != "" {
					ctx = logg.WithField(ctx, "client_name", claims.ClientName)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
