// Package rest implementa el directorio contra un registro expuesto por PostgREST
// (la tabla de proyectos del proyecto central de Supabase).
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/userrelay/internal/config"
	"github.com/dropDatabas3/userrelay/internal/directory"
)

func init() {
	directory.RegisterDriver("rest", func(_ context.Context, cfg config.DirectoryConfig) (directory.Directory, error) {
		r := cfg.REST
		return New(Options{
			BaseURL:   r.URL,
			Key:       r.Key,
			Table:     r.Table,
			IDColumn:  r.IDColumn,
			URLColumn: r.URLColumn,
			KeyColumn: r.KeyColumn,
			Timeout:   r.Timeout,
		})
	})
}

type Options struct {
	BaseURL   string
	Key       string
	Table     string
	IDColumn  string
	URLColumn string
	KeyColumn string
	Timeout   time.Duration
	// HTTPClient permite inyectar un cliente (tests); por defecto uno con Timeout.
	HTTPClient *http.Client
}

type Directory struct {
	opts   Options
	base   *url.URL
	client *http.Client
}

func New(opts Options) (*Directory, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("directory rest: invalid base url %q", opts.BaseURL)
	}
	if strings.TrimSpace(opts.Key) == "" {
		return nil, fmt.Errorf("directory rest: key is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	c := opts.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: opts.Timeout}
	}
	return &Directory{opts: opts, base: u, client: c}, nil
}

func (d *Directory) endpoint(q url.Values) string {
	u := *d.base
	u.Path = strings.TrimRight(u.Path, "/") + "/rest/v1/" + url.PathEscape(d.opts.Table)
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *Directory) selectCols() string {
	return strings.Join([]string{d.opts.IDColumn, d.opts.URLColumn, d.opts.KeyColumn}, ",")
}

func (d *Directory) fetch(ctx context.Context, q url.Values) ([]directory.TenantRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint(q), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", d.opts.Key)
	req.Header.Set("Authorization", "Bearer "+d.opts.Key)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", directory.ErrUnavailable, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %d: %s", directory.ErrUnavailable, resp.StatusCode, truncate(body, 200))
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", directory.ErrUnavailable, err)
	}
	out := make([]directory.TenantRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, directory.TenantRecord{
			TenantID:   str(row[d.opts.IDColumn]),
			BackendURL: str(row[d.opts.URLColumn]),
			BackendKey: str(row[d.opts.KeyColumn]),
		})
	}
	return out, nil
}

func (d *Directory) Resolve(ctx context.Context, tenantID string) (*directory.TenantRecord, error) {
	id, err := directory.NormalizeID(tenantID)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("select", d.selectCols())
	q.Set(d.opts.IDColumn, "eq."+id)
	q.Set("limit", "2")
	rows, err := d.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return directory.Pick(rows)
}

func (d *Directory) List(ctx context.Context) ([]directory.TenantRecord, error) {
	q := url.Values{}
	q.Set("select", d.selectCols())
	q.Set("order", d.opts.IDColumn+".asc")
	return d.fetch(ctx, q)
}

// Ping consulta una fila cualquiera: valida URL, key y tabla.
func (d *Directory) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", d.opts.IDColumn)
	q.Set("limit", "1")
	_, err := d.fetch(ctx, q)
	return err
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// ids numéricos llegan como float64 desde encoding/json
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "…"
	}
	return string(b)
}
