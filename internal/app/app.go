// Package app arma el grafo de dependencias a partir de la config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/userrelay/internal/backend"
	"github.com/dropDatabas3/userrelay/internal/config"
	"github.com/dropDatabas3/userrelay/internal/directory"
	"github.com/dropDatabas3/userrelay/internal/http/controllers/health"
	"github.com/dropDatabas3/userrelay/internal/http/controllers/users"
	mw "github.com/dropDatabas3/userrelay/internal/http/middlewares"
	"github.com/dropDatabas3/userrelay/internal/http/router"
	"github.com/dropDatabas3/userrelay/internal/metrics"
	"github.com/dropDatabas3/userrelay/internal/notify"
	"github.com/dropDatabas3/userrelay/internal/observability/logger"
	"github.com/dropDatabas3/userrelay/internal/rate"
	"github.com/dropDatabas3/userrelay/internal/reconcile"
	"github.com/dropDatabas3/userrelay/internal/security/secretbox"
	"github.com/dropDatabas3/userrelay/internal/validation"
)

// Core es lo mínimo para reconciliar: directorio, pool de conectores y reconciliador.
// relayctl lo usa sin levantar HTTP.
type Core struct {
	Config     *config.Config
	Directory  directory.Directory
	Pool       *backend.Pool
	Reconciler *reconcile.Reconciler

	closers []func() error
}

// App agrega la superficie HTTP sobre Core.
type App struct {
	*Core
	Metrics *metrics.Metrics
	Handler http.Handler
}

func NewCore(ctx context.Context, cfg *config.Config, rec reconcile.Recorder) (*Core, error) {
	log := logger.From(ctx).With(logger.Layer("app"), logger.Op("NewCore"))
	c := &Core{Config: cfg}

	dir, err := OpenDirectory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Directory = dir
	c.closers = append(c.closers, dir.Close)

	c.Pool = backend.NewPool(backend.Dialer{Options: backend.Options{
		HTTPTimeout:     cfg.Backend.HTTPTimeout,
		PGMaxConns:      cfg.Backend.PGMaxConns,
		PGIdentityTable: cfg.Backend.PGIdentityTable,
	}}, cfg.Backend.PoolIdleTTL)
	c.closers = append(c.closers, c.Pool.Close)

	opts := reconcile.Options{
		TempPassword:     cfg.Reconcile.TempPassword,
		EmailAliases:     cfg.Reconcile.EmailAliases,
		ScanPageSize:     cfg.Reconcile.ScanPageSize,
		ScanMaxPages:     cfg.Reconcile.ScanMaxPages,
		OnProfileFailure: reconcile.Policy(cfg.Reconcile.OnProfileFailure),
		DeleteTable:      cfg.Reconcile.DeleteTable,
		DeleteIDColumn:   cfg.Reconcile.DeleteIDColumn,
	}
	if rec != nil {
		opts.Recorder = rec
	}
	if cfg.SMTP.Enabled && cfg.Reconcile.NotifyOnCreate {
		n, err := notify.FromConfig(*cfg)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("notify: %w", err)
		}
		opts.Notifier = n
		log.Info("welcome notifications enabled", logger.String("smtp_host", cfg.SMTP.Host))
	}

	c.Reconciler, err = reconcile.New(c.Directory, c.Pool, opts)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	log.Info("core ready", logger.Driver(cfg.Directory.Driver))
	return c, nil
}

// OpenDirectory abre el driver configurado envuelto en Sealed.
func OpenDirectory(ctx context.Context, cfg *config.Config) (*directory.Sealed, error) {
	var box *secretbox.Box
	if cfg.Security.SecretBoxKey != "" {
		b, err := secretbox.New(cfg.Security.SecretBoxKey)
		if err != nil {
			return nil, fmt.Errorf("secretbox: %w", err)
		}
		box = b
	}
	inner, err := directory.Open(ctx, cfg.Directory)
	if err != nil {
		return nil, err
	}
	return &directory.Sealed{Inner: inner, Box: box}, nil
}

// Schemas adapta la config a la búsqueda por nombre que usan los controllers.
func Schemas(cfg *config.Config) users.SchemaLookup {
	return func(name string) (reconcile.Schema, bool) {
		s, ok := cfg.Schema(name)
		if !ok {
			return reconcile.Schema{}, false
		}
		return reconcile.Schema{
			Name:         name,
			Table:        s.Table,
			ConflictKey:  s.ConflictKey,
			Fields:       s.Fields,
			EmailAliases: s.EmailAliases,
		}, true
	}
}

// Close espera notificaciones pendientes y libera recursos en orden inverso.
func (c *Core) Close() error {
	if c.Reconciler != nil {
		c.Reconciler.Wait()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func New(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	a := &App{}
	var rec reconcile.Recorder
	if cfg.Metrics.Enabled {
		m, err := metrics.New()
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		a.Metrics = m
		rec = m
	}

	core, err := NewCore(ctx, cfg, rec)
	if err != nil {
		return nil, err
	}
	a.Core = core

	limiter, closeLimiter, err := rate.FromConfig(ctx, *cfg)
	if err != nil {
		_ = core.Close()
		return nil, err
	}
	core.closers = append(core.closers, closeLimiter)

	checks := map[string]health.Check{}
	if p, ok := core.Directory.(directory.Pinger); ok {
		checks["directory"] = p.Ping
	}

	deps := router.Deps{
		Users:  users.NewController(core.Reconciler, Schemas(cfg), validation.New()),
		Health: health.NewController(version, checks),
		Admin: mw.AdminConfig{
			APIKey:       cfg.Admin.APIKey,
			JWTSecret:    cfg.Admin.JWTSecret,
			JWTIssuer:    cfg.Admin.JWTIssuer,
			RequiredRole: cfg.Admin.RequiredRole,
		},
		Limiter:            limiter,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
	}
	if a.Metrics != nil {
		if err := a.Metrics.TrackConnectors(core.Pool.Len); err != nil {
			_ = core.Close()
			return nil, err
		}
		deps.Instrument = a.Metrics.Middleware
		deps.OnRateLimited = a.Metrics.RateLimited
		deps.Metrics = a.Metrics.Handler()
		deps.MetricsPath = cfg.Metrics.Path
	}
	a.Handler = router.New(deps)
	return a, nil
}
