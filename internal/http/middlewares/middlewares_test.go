package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/userrelay/internal/jwt"
	"github.com/dropDatabas3/userrelay/internal/rate"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func TestChain_Order(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	serve(Chain(ok, mk("a"), mk("b"), mk("c")), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}), WithRequestID())

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rr.Header().Get("X-Request-ID"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "abc-123")
	rr = serve(h, r)
	require.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestWithRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), WithRecover())
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestWithLogging_KeepsStatus(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("x"))
	}), WithRequestID(), WithLogging())
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)
}

func TestWithMaxBody(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		_, err := r.Body.Read(buf)
		if err != nil && !strings.Contains(err.Error(), "EOF") {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		}
	}), WithMaxBody(4))
	rr := serve(h, httptest.NewRequest(http.MethodPut, "/", strings.NewReader("0123456789")))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestWithCORS(t *testing.T) {
	h := Chain(ok, WithCORS([]string{"https://app.acme.io/"}))

	r := httptest.NewRequest(http.MethodOptions, "/v1/projects/1/users", nil)
	r.Header.Set("Origin", "https://app.acme.io")
	r.Header.Set("Access-Control-Request-Method", "PUT")
	rr := serve(h, r)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "https://app.acme.io", rr.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.io")
	rr = serve(h, r)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestWithRateLimit(t *testing.T) {
	var limited int
	router := chi.NewRouter()
	router.With(WithRateLimit(RateLimitConfig{
		Limiter:   rate.NewMemoryLimiter(2, time.Hour),
		OnLimited: func() { limited++ },
	})).Put("/upsert-user/{projectID}", ok)

	do := func(project, ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPut, "/upsert-user/"+project, nil)
		r.RemoteAddr = ip + ":1234"
		return serve(router, r)
	}
	require.Equal(t, http.StatusOK, do("1", "10.0.0.1").Code)
	require.Equal(t, http.StatusOK, do("1", "10.0.0.1").Code)
	rr := do("1", "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	require.Equal(t, 1, limited)

	// otra clave (proyecto o ip) no comparte bucket
	require.Equal(t, http.StatusOK, do("2", "10.0.0.1").Code)
	require.Equal(t, http.StatusOK, do("1", "10.0.0.2").Code)
}

func TestRequireAdmin(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	var claims map[string]any
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = GetClaims(r.Context())
	}), RequireAdmin(AdminConfig{APIKey: "k-123", JWTSecret: secret, JWTIssuer: "userrelay"}))

	req := func(mod func(r *http.Request)) int {
		r := httptest.NewRequest(http.MethodPut, "/", nil)
		mod(r)
		return serve(h, r).Code
	}

	assert.Equal(t, http.StatusUnauthorized, req(func(*http.Request) {}))
	assert.Equal(t, http.StatusOK, req(func(r *http.Request) { r.Header.Set("X-Admin-API-Key", "k-123") }))
	assert.Equal(t, http.StatusUnauthorized, req(func(r *http.Request) { r.Header.Set("X-Admin-API-Key", "nope") }))

	admin, err := jwt.Issue([]byte(secret), "userrelay", "ops", []string{"admin"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, req(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+admin) }))
	assert.Equal(t, "ops", claims["sub"])

	viewer, err := jwt.Issue([]byte(secret), "userrelay", "ops", []string{"viewer"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, req(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+viewer) }))
	assert.Equal(t, http.StatusUnauthorized, req(func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") }))
}

func TestRequireAdmin_DisabledWithoutCredentials(t *testing.T) {
	h := Chain(ok, RequireAdmin(AdminConfig{}))
	require.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodPut, "/", nil)).Code)
}
