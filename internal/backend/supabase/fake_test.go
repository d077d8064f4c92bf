package supabase

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeProject emula lo mínimo de GoTrue admin y PostgREST.
type fakeProject struct {
	t   *testing.T
	key string

	mu       sync.Mutex
	users    []map[string]any
	pwds     map[string]string
	rows     map[string]map[string]map[string]any // tabla -> on_conflict value -> fila
	requests []string
	nextID   int
}

func newFakeProject(t *testing.T, key string) (*fakeProject, *httptest.Server) {
	f := &fakeProject{t: t, key: key, pwds: map[string]string{}, rows: map[string]map[string]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeProject) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	if r.Header.Get("apikey") != f.key || r.Header.Get("Authorization") != "Bearer "+f.key {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid API key"})
		return
	}

	switch {
	case r.URL.Path == "/auth/v1/health":
		writeJSON(w, http.StatusOK, map[string]any{"name": "GoTrue"})
	case r.URL.Path == "/auth/v1/admin/users" && r.Method == http.MethodGet:
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		per, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		start := (page - 1) * per
		end := start + per
		if start > len(f.users) {
			start = len(f.users)
		}
		if end > len(f.users) {
			end = len(f.users)
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(len(f.users)))
		writeJSON(w, http.StatusOK, map[string]any{"users": f.users[start:end], "aud": "authenticated"})
	case r.URL.Path == "/auth/v1/admin/users" && r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		email, _ := body["email"].(string)
		for _, u := range f.users {
			if u["email"] == email {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"code": 422, "error_code": "email_exists", "msg": "A user with this email address has already been registered"})
				return
			}
		}
		f.nextID++
		u := map[string]any{"id": fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID), "email": email, "created_at": time.Now().UTC().Format(time.RFC3339)}
		if c, _ := body["email_confirm"].(bool); c {
			u["email_confirmed_at"] = time.Now().UTC().Format(time.RFC3339)
		}
		f.users = append(f.users, u)
		f.pwds[u["id"].(string)], _ = body["password"].(string)
		writeJSON(w, http.StatusOK, u)
	case strings.HasPrefix(r.URL.Path, "/auth/v1/admin/users/"):
		id := strings.TrimPrefix(r.URL.Path, "/auth/v1/admin/users/")
		idx := -1
		for i, u := range f.users {
			if u["id"] == id {
				idx = i
			}
		}
		if idx < 0 {
			writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "error_code": "user_not_found", "msg": "User not found"})
			return
		}
		switch r.Method {
		case http.MethodPut:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.pwds[id], _ = body["password"].(string)
			writeJSON(w, http.StatusOK, f.users[idx])
		case http.MethodDelete:
			f.users = append(f.users[:idx], f.users[idx+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{})
		}
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
		if strings.Contains(table, ".") {
			writeJSON(w, http.StatusNotFound, map[string]any{"code": "PGRST205", "message": "Could not find the table '" + table + "' in the schema cache"})
			return
		}
		if p := r.Header.Get("Content-Profile"); p != "" {
			table = p + "." + table
		}
		switch r.Method {
		case http.MethodPost:
			key := r.URL.Query().Get("on_conflict")
			if !strings.Contains(r.Header.Get("Prefer"), "resolution=merge-duplicates") {
				writeJSON(w, http.StatusBadRequest, map[string]any{"message": "missing Prefer"})
				return
			}
			if table == "missing_table" {
				writeJSON(w, http.StatusNotFound, map[string]any{"code": "42P01", "message": `relation "public.missing_table" does not exist`})
				return
			}
			var rec map[string]any
			_ = json.NewDecoder(r.Body).Decode(&rec)
			if f.rows[table] == nil {
				f.rows[table] = map[string]map[string]any{}
			}
			k := fmt.Sprint(rec[key])
			if f.rows[table][k] == nil {
				f.rows[table][k] = map[string]any{}
			}
			for c, v := range rec {
				f.rows[table][k][c] = v
			}
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			for col, vals := range r.URL.Query() {
				want := strings.TrimPrefix(vals[0], "eq.")
				for k, row := range f.rows[table] {
					if fmt.Sprint(row[col]) == want {
						delete(f.rows[table], k)
					}
				}
			}
			w.WriteHeader(http.StatusNoContent)
		}
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeProject) password(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pwds[id]
}

func (f *fakeProject) table(name string) map[string]map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]map[string]any{}
	for k, row := range f.rows[name] {
		cp := map[string]any{}
		for c, v := range row {
			cp[c] = v
		}
		out[k] = cp
	}
	return out
}
