// Package pg implementa el directorio sobre la tabla tenant_directory en Postgres.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/userrelay/internal/config"
	"github.com/dropDatabas3/userrelay/internal/directory"
	"github.com/dropDatabas3/userrelay/internal/infra/pgsql"
)

func init() {
	directory.RegisterDriver("postgres", func(ctx context.Context, cfg config.DirectoryConfig) (directory.Directory, error) {
		pool, err := pgsql.Open(ctx, cfg.Postgres.DSN, pgsql.PoolOptions{MaxConns: cfg.Postgres.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("directory pg: %w", err)
		}
		d, err := New(pool, cfg.Postgres.Table)
		if err != nil {
			pool.Close()
			return nil, err
		}
		d.owned = true
		return d, nil
	})
}

type Directory struct {
	pool  *pgxpool.Pool
	table string
	owned bool
}

// New no toma ownership del pool salvo cuando lo abre el driver registrado.
func New(pool *pgxpool.Pool, table string) (*Directory, error) {
	if pool == nil {
		return nil, errors.New("directory pg: pool is required")
	}
	if table == "" {
		table = "tenant_directory"
	}
	t, err := pgsql.Ident(table)
	if err != nil {
		return nil, err
	}
	return &Directory{pool: pool, table: t}, nil
}

const columns = `tenant_id, COALESCE(name, ''), backend_url, COALESCE(backend_key, ''), COALESCE(backend_key_enc, ''), COALESCE(driver, ''), disabled`

func scan(row pgx.Row) (directory.TenantRecord, error) {
	var r directory.TenantRecord
	err := row.Scan(&r.TenantID, &r.Name, &r.BackendURL, &r.BackendKey, &r.BackendKeyEnc, &r.Driver, &r.Disabled)
	return r, err
}

// Resolve trae hasta 2 filas: con 2 el id es ambiguo y se trata como inexistente.
func (d *Directory) Resolve(ctx context.Context, tenantID string) (*directory.TenantRecord, error) {
	id, err := directory.NormalizeID(tenantID)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 LIMIT 2`, columns, d.table)
	rows, err := d.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (directory.TenantRecord, error) {
		return scan(row)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	return directory.Pick(recs)
}

func (d *Directory) List(ctx context.Context) ([]directory.TenantRecord, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY tenant_id`, columns, d.table)
	rows, err := d.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (directory.TenantRecord, error) {
		return scan(row)
	})
}

// Upsert registra o actualiza un tenant. Lo usa relayctl tenants put.
func (d *Directory) Upsert(ctx context.Context, r directory.TenantRecord) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, name, backend_url, backend_key, backend_key_enc, driver, disabled)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7)
		ON CONFLICT (tenant_id) DO UPDATE SET
			name = EXCLUDED.name,
			backend_url = EXCLUDED.backend_url,
			backend_key = EXCLUDED.backend_key,
			backend_key_enc = EXCLUDED.backend_key_enc,
			driver = EXCLUDED.driver,
			disabled = EXCLUDED.disabled,
			updated_at = now()`, d.table)
	_, err := d.pool.Exec(ctx, q, r.TenantID, r.Name, r.BackendURL, r.BackendKey, r.BackendKeyEnc, r.Driver, r.Disabled)
	return err
}

func (d *Directory) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", directory.ErrUnavailable, err)
	}
	return nil
}

func (d *Directory) Close() error {
	if d.owned {
		d.pool.Close()
	}
	return nil
}
