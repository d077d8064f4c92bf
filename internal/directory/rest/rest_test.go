package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/userrelay/internal/directory"
)

func newDir(t *testing.T, h http.HandlerFunc) *Directory {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	d, err := New(Options{
		BaseURL:   srv.URL,
		Key:       "central-key",
		Table:     "Tproyects",
		IDColumn:  "ProyectId",
		URLColumn: "ProyectURL",
		KeyColumn: "ProyectServiceRole",
	})
	require.NoError(t, err)
	return d
}

func TestResolve_Found(t *testing.T) {
	var hits atomic.Int32
	d := newDir(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/rest/v1/Tproyects", r.URL.Path)
		assert.Equal(t, "eq.42", r.URL.Query().Get("ProyectId"))
		assert.Equal(t, "ProyectId,ProyectURL,ProyectServiceRole", r.URL.Query().Get("select"))
		assert.Equal(t, "central-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer central-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"ProyectId":42,"ProyectURL":"https://p42.supabase.co","ProyectServiceRole":"srk-42"}]`))
	})

	rec, err := d.Resolve(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "42", rec.TenantID)
	require.Equal(t, "https://p42.supabase.co", rec.BackendURL)
	require.Equal(t, "srk-42", rec.BackendKey)

	_, err = d.Resolve(context.Background(), "42")
	require.NoError(t, err)
	require.EqualValues(t, 2, hits.Load(), "every resolve hits the directory")
}

func TestResolve_ZeroOrAmbiguous(t *testing.T) {
	body := `[]`
	d := newDir(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
	_, err := d.Resolve(context.Background(), "x")
	require.ErrorIs(t, err, directory.ErrTenantNotFound)

	body = `[{"ProyectId":"x","ProyectURL":"a","ProyectServiceRole":"k"},{"ProyectId":"x","ProyectURL":"b","ProyectServiceRole":"k"}]`
	_, err = d.Resolve(context.Background(), "x")
	require.ErrorIs(t, err, directory.ErrTenantNotFound)

	_, err = d.Resolve(context.Background(), " ")
	require.ErrorIs(t, err, directory.ErrTenantNotFound)
}

func TestResolve_Unavailable(t *testing.T) {
	d := newDir(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"JWT expired"}`, http.StatusUnauthorized)
	})
	_, err := d.Resolve(context.Background(), "1")
	require.ErrorIs(t, err, directory.ErrUnavailable)
	require.ErrorIs(t, d.Ping(context.Background()), directory.ErrUnavailable)

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	dead, err := New(Options{BaseURL: srv.URL, Key: "k", Table: "t", IDColumn: "a", URLColumn: "b", KeyColumn: "c"})
	require.NoError(t, err)
	_, err = dead.Resolve(context.Background(), "1")
	require.ErrorIs(t, err, directory.ErrUnavailable)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url", Key: "k"})
	require.Error(t, err)
	_, err = New(Options{BaseURL: "https://x.co"})
	require.Error(t, err)
}
