package middlewares

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/userrelay/internal/http/errors"
	"github.com/dropDatabas3/userrelay/internal/http/helpers"
	"github.com/dropDatabas3/userrelay/internal/observability/logger"
	"github.com/dropDatabas3/userrelay/internal/rate"
)

// RateKeyFunc arma la clave de rate limiting de un request.
type RateKeyFunc func(r *http.Request) string

// ProjectRateKey: IP del cliente + proyecto de la ruta.
func ProjectRateKey(r *http.Request) string {
	pid := chi.URLParam(r, "projectID")
	if pid == "" {
		pid = "-"
	}
	return helpers.ClientIP(r) + "|" + pid
}

type RateLimitConfig struct {
	Limiter rate.Limiter
	KeyFunc RateKeyFunc
	// OnLimited se invoca por cada rechazo (métricas).
	OnLimited func()
}

// WithRateLimit responde 429 con Retry-After. Si el limiter falla, deja pasar.
// Debe montarse en las rutas (r.With) para que projectID ya esté resuelto.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ProjectRateKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				if cfg.OnLimited != nil {
					cfg.OnLimited()
				}
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				httperrors.WriteError(w, httperrors.ErrRateLimitExceeded)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
