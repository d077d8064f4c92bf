package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/userrelay/internal/http/errors"
	"github.com/dropDatabas3/userrelay/internal/jwt"
	"github.com/dropDatabas3/userrelay/internal/observability/logger"
)

// AdminConfig: con APIKey se acepta X-Admin-API-Key; con JWTSecret, Bearer HS256
// con el rol RequiredRole. Sin ninguno el guard deja pasar todo (solo dev).
type AdminConfig struct {
	APIKey       string
	JWTSecret    string
	JWTIssuer    string
	RequiredRole string
}

func (c AdminConfig) enabled() bool { return c.APIKey != "" || c.JWTSecret != "" }

// RequireAdmin protege las rutas de provisioning.
func RequireAdmin(cfg AdminConfig) Middleware {
	if cfg.RequiredRole == "" {
		cfg.RequiredRole = "admin"
	}
	secret := []byte(cfg.JWTSecret)

	return func(next http.Handler) http.Handler {
		if !cfg.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.From(r.Context()).With(logger.Layer("middleware"), logger.Op("RequireAdmin"))

			if key := r.Header.Get("X-Admin-API-Key"); key != "" && cfg.APIKey != "" {
				if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
				log.Warn("admin api key rejected")
				httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("invalid api key"))
				return
			}

			raw := r.Header.Get("Authorization")
			if cfg.JWTSecret == "" || !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			claims, err := jwt.ParseHS256(strings.TrimSpace(raw[len("bearer "):]), secret, cfg.JWTIssuer)
			if err != nil {
				log.Warn("admin token rejected", logger.Err(err))
				httperrors.WriteError(w, httperrors.ErrTokenInvalid)
				return
			}
			if !jwt.HasRole(claims, cfg.RequiredRole) {
				httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail(cfg.RequiredRole+" role required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}
