// Package health contiene liveness y readiness.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/userrelay/internal/http/dto"
	"github.com/dropDatabas3/userrelay/internal/http/helpers"
	"github.com/dropDatabas3/userrelay/internal/observability/logger"
)

// Check es una dependencia a verificar en /readyz.
type Check func(ctx context.Context) error

type Controller struct {
	version string
	checks  map[string]Check
	timeout time.Duration
}

func NewController(version string, checks map[string]Check) *Controller {
	return &Controller{version: version, checks: checks, timeout: 3 * time.Second}
}

// Root maneja GET /.
func (c *Controller) Root(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok", Version: c.version})
}

// Readyz corre todos los checks en paralelo; cualquiera que falle da 503.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	sort.Strings(names)

	var (
		mu         sync.Mutex
		components = make(map[string]string, len(names))
	)
	// errgroup sin WithContext: un check caído no cancela a los demás
	var g errgroup.Group
	for _, name := range names {
		name := name
		check := c.checks[name]
		g.Go(func() error {
			err := check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				components[name] = "unavailable"
				log.Warn("readiness check failed", logger.Component(name), logger.Err(err))
				return err
			}
			components[name] = "ok"
			return nil
		})
	}

	resp := dto.HealthResponse{Status: "ready", Version: c.version, Components: components}
	status := http.StatusOK
	if err := g.Wait(); err != nil {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, resp)
}
