// Package router arma el árbol de rutas chi del relay.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/userrelay/internal/http/controllers/health"
	"github.com/dropDatabas3/userrelay/internal/http/controllers/users"
	httperrors "github.com/dropDatabas3/userrelay/internal/http/errors"
	mw "github.com/dropDatabas3/userrelay/internal/http/middlewares"
	"github.com/dropDatabas3/userrelay/internal/rate"
)

type Deps struct {
	Users  *users.Controller
	Health *health.Controller

	Admin   mw.AdminConfig
	Limiter rate.Limiter
	// OnRateLimited y Instrument son opcionales (métricas).
	OnRateLimited func()
	Instrument    mw.Middleware
	MetricsPath   string
	Metrics       http.Handler

	CORSAllowedOrigins []string
	MaxBodyBytes       int64
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.WithRequestID(), mw.WithLogging(), mw.WithRecover())
	if d.Instrument != nil {
		r.Use(d.Instrument)
	}
	r.Use(mw.WithCORS(d.CORSAllowedOrigins), mw.WithMaxBody(d.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	r.Get("/", d.Health.Root)
	r.Get("/readyz", d.Health.Readyz)
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAdmin(d.Admin))
		r.Use(mw.WithRateLimit(mw.RateLimitConfig{Limiter: d.Limiter, OnLimited: d.OnRateLimited}))

		r.Route("/v1/projects/{projectID}", func(r chi.Router) {
			r.Put("/users", d.Users.Upsert)
			r.Put("/schemas/{schema}/users", d.Users.UpsertWithSchema)
			r.Delete("/users/{userID}", d.Users.Delete)
		})

		// rutas legacy
		r.Put("/upsert-user/{projectID}", d.Users.UpsertNamed("default"))
		r.Put("/upsert-user-alt/{projectID}", d.Users.UpsertNamed("alt"))
		r.Delete("/delete-user/{projectID}/{userID}", d.Users.Delete)
		r.Delete("/delete-user-alt/{projectID}/{userID}", d.Users.Delete)
	})

	return r
}
