// Package metrics expone las métricas Prometheus del relay.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/userrelay/internal/reconcile"
)

type Metrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	reconcileTotal    *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        prometheus.Gauge
	rateLimited         prometheus.Counter
}

var _ reconcile.Recorder = (*Metrics)(nil)

// New crea un registry propio (más los collectors de proceso y Go runtime).
func New() (*Metrics, error) {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userrelay_reconcile_total",
			Help: "Operaciones de reconciliación por resultado y tipo de falla",
		}, []string{"op", "result", "kind"}),
		reconcileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userrelay_reconcile_duration_seconds",
			Help:    "Duración de upsert/delete contra el backend del tenant",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"op"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userrelay_http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userrelay_http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "userrelay_http_inflight_requests",
			Help: "Requests en vuelo",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userrelay_rate_limited_total",
			Help: "Requests rechazadas por rate limit",
		}),
	}
	for _, c := range []prometheus.Collector{
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
		m.reconcileTotal,
		m.reconcileDuration,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpInflight,
		m.rateLimited,
	} {
		if err := m.reg.Register(c); err != nil {
			return nil, err
		}
	}
	m.handler = promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
	return m, nil
}

// Handler sirve /metrics.
func (m *Metrics) Handler() http.Handler { return m.handler }

// Registry para tests y collectors extra.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObserveReconcile(op, result string, kind reconcile.Kind, seconds float64) {
	m.reconcileTotal.WithLabelValues(op, result, string(kind)).Inc()
	m.reconcileDuration.WithLabelValues(op).Observe(seconds)
}

// TrackConnectors publica userrelay_connectors_active leyendo n en cada scrape.
func (m *Metrics) TrackConnectors(n func() int) error {
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "userrelay_connectors_active",
		Help: "Conectores de backend abiertos en el pool",
	}, func() float64 { return float64(n()) }))
}

func (m *Metrics) RateLimited() { m.rateLimited.Inc() }

// Middleware instrumenta requests con el patrón de ruta de chi como label.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInflight.Inc()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			m.httpInflight.Dec()
			method := strings.ToUpper(r.Method)
			route := routeLabel(r)
			m.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		}()
		next.ServeHTTP(rec, r)
	})
}

// routeLabel se evalúa al final: chi completa el patrón mientras rutea.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return normalizePath(r.URL.Path)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

var (
	uuidSegmentRE = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
)

// normalizePath evita cardinalidad alta cuando no hay patrón (404).
func normalizePath(p string) string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		if len(seg) > 48 || uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) {
			seg = ":param"
		} else if _, err := strconv.Atoi(seg); err == nil {
			seg = ":param"
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}
