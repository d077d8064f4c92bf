// Package supabase habla con un proyecto Supabase: GoTrue admin para identidades
// y PostgREST para perfiles. La key es la service role del proyecto.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/userrelay/internal/backend"
)

func init() {
	backend.RegisterDriver(func(_ context.Context, p backend.Params) (backend.Connector, error) {
		return New(p.URL, p.Key, p.Options), nil
	}, "http", "https")
}

type Client struct {
	base *url.URL
	key  string
	http *http.Client
}

// New no hace I/O.
func New(base *url.URL, key string, opts backend.Options) *Client {
	u := *base
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout, Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	return &Client{base: &u, key: key, http: hc}
}

// APIError es una respuesta no-2xx de GoTrue o PostgREST.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound || e.Code == "user_not_found":
		return backend.ErrNotFound
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return backend.ErrInvalidCredentials
	case e.Code == "email_exists" || e.Status == http.StatusConflict:
		return backend.ErrConflict
	}
	return nil
}

func (c *Client) url(path string, q url.Values) string {
	u := *c.base
	u.Path += path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any, hdr http.Header, out any) (http.Header, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("supabase: encode body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path, q), rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("supabase: read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return resp.Header, decodeError(resp.StatusCode, raw)
	}
	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.Header, fmt.Errorf("supabase: decode %s: %w", path, err)
		}
	}
	return resp.Header, nil
}

func decodeError(status int, raw []byte) error {
	var body struct {
		Code      any    `json:"code"`
		ErrorCode string `json:"error_code"`
		Msg       string `json:"msg"`
		Message   string `json:"message"`
		ErrorDesc string `json:"error_description"`
		Error     string `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)
	e := &APIError{Status: status}
	e.Code = body.ErrorCode
	if s, ok := body.Code.(string); ok && e.Code == "" {
		e.Code = s
	}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDesc, body.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(raw))
		if len(e.Message) > 200 {
			e.Message = e.Message[:200]
		}
	}
	return e
}

type gotrueUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (u gotrueUser) identity() backend.Identity {
	return backend.Identity{
		ID:             u.ID,
		Email:          u.Email,
		EmailConfirmed: u.EmailConfirmedAt != nil,
		CreatedAt:      u.CreatedAt,
	}
}

func (c *Client) ListIdentities(ctx context.Context, page, perPage int) ([]backend.Identity, bool, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	var out struct {
		Users []gotrueUser `json:"users"`
	}
	hdr, err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users", q, nil, nil, &out)
	if err != nil {
		return nil, false, err
	}
	ids := make([]backend.Identity, 0, len(out.Users))
	for _, u := range out.Users {
		ids = append(ids, u.identity())
	}
	more := len(out.Users) == perPage && perPage > 0
	if total, err := strconv.Atoi(hdr.Get("X-Total-Count")); err == nil {
		more = page*perPage < total
	}
	return ids, more, nil
}

func (c *Client) CreateIdentity(ctx context.Context, email, password string, confirmed bool) (backend.Identity, error) {
	body := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": confirmed,
	}
	var u gotrueUser
	if _, err := c.do(ctx, http.MethodPost, "/auth/v1/admin/users", nil, body, nil, &u); err != nil {
		return backend.Identity{}, err
	}
	if u.ID == "" {
		return backend.Identity{}, errors.New("supabase: create user returned no id")
	}
	return u.identity(), nil
}

func (c *Client) UpdateIdentityPassword(ctx context.Context, id, password string) error {
	_, err := c.do(ctx, http.MethodPut, "/auth/v1/admin/users/"+url.PathEscape(id), nil,
		map[string]any{"password": password}, nil, nil)
	return err
}

func (c *Client) DeleteIdentity(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(id), nil, nil, nil, nil)
	return err
}

func (c *Client) UpsertProfile(ctx context.Context, table, conflictKey string, record map[string]any) error {
	q := url.Values{}
	q.Set("on_conflict", conflictKey)
	hdr := http.Header{}
	hdr.Set("Prefer", "resolution=merge-duplicates,return=minimal")
	_, err := c.do(ctx, http.MethodPost, tablePath(table, hdr), q, record, hdr, nil)
	return err
}

func (c *Client) DeleteProfile(ctx context.Context, table, idColumn, id string) error {
	q := url.Values{}
	q.Set(idColumn, "eq."+id)
	hdr := http.Header{}
	hdr.Set("Prefer", "return=minimal")
	_, err := c.do(ctx, http.MethodDelete, tablePath(table, hdr), q, nil, hdr, nil)
	return err
}

// tablePath arma la ruta PostgREST de table. Un nombre calificado "schema.tabla" no va en la
// ruta: el schema viaja en Content-Profile y debe estar expuesto en la API del proyecto.
func tablePath(table string, hdr http.Header) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		hdr.Set("Content-Profile", schema)
		table = name
	}
	return "/rest/v1/" + url.PathEscape(table)
}

// Ping usa el health de GoTrue (valida URL y key).
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/auth/v1/health", nil, nil, nil, nil)
	return err
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
