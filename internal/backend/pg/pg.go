// Package pg es el backend para tenants con su propio Postgres: identidades en
// auth_identity (hash argon2id) y perfiles en cualquier tabla del tenant.
//
// La URL del directorio es el DSN sin password; la key del tenant es la password.
package pg

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/userrelay/internal/backend"
	"github.com/dropDatabas3/userrelay/internal/infra/pgsql"
	"github.com/dropDatabas3/userrelay/internal/security/password"
)

func init() {
	backend.RegisterDriver(func(ctx context.Context, p backend.Params) (backend.Connector, error) {
		return Open(ctx, p.RawURL, p.Key, p.Options)
	}, "postgres", "postgresql")
}

type Connector struct {
	pool       *pgxpool.Pool
	identities string
	hash       password.Params
}

// Open arma el pool sin conectar; el primer query abre la conexión.
func Open(ctx context.Context, dsn, key string, opts backend.Options) (*Connector, error) {
	table := opts.PGIdentityTable
	if table == "" {
		table = "auth_identity"
	}
	ident, err := pgsql.Ident(table)
	if err != nil {
		return nil, err
	}
	maxConns := opts.PGMaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	pool, err := pgsql.Open(ctx, dsn, pgsql.PoolOptions{Password: key, MaxConns: maxConns, Lazy: true})
	if err != nil {
		return nil, err
	}
	return &Connector{pool: pool, identities: ident, hash: password.Default}, nil
}

// NewWithPool reutiliza un pool existente (tests, relayctl).
func NewWithPool(pool *pgxpool.Pool, identityTable string, hash password.Params) (*Connector, error) {
	if identityTable == "" {
		identityTable = "auth_identity"
	}
	ident, err := pgsql.Ident(identityTable)
	if err != nil {
		return nil, err
	}
	return &Connector{pool: pool, identities: ident, hash: hash}, nil
}

func scanIdentity(row pgx.Row) (backend.Identity, error) {
	var id backend.Identity
	err := row.Scan(&id.ID, &id.Email, &id.EmailConfirmed, &id.CreatedAt)
	return id, err
}

const identityCols = `id::text, email, email_confirmed_at IS NOT NULL, created_at`

func (c *Connector) ListIdentities(ctx context.Context, page, perPage int) ([]backend.Identity, bool, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	// se pide una fila extra para saber si hay otra página
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at, id LIMIT $1 OFFSET $2`, identityCols, c.identities)
	rows, err := c.pool.Query(ctx, q, perPage+1, (page-1)*perPage)
	if err != nil {
		return nil, false, fmt.Errorf("pg: list identities: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (backend.Identity, error) { return scanIdentity(r) })
	if err != nil {
		return nil, false, fmt.Errorf("pg: list identities: %w", err)
	}
	more := len(ids) > perPage
	if more {
		ids = ids[:perPage]
	}
	return ids, more, nil
}

func (c *Connector) FindIdentityByEmail(ctx context.Context, email string) (*backend.Identity, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE email = $1`, identityCols, c.identities)
	id, err := scanIdentity(c.pool.QueryRow(ctx, q, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: find identity: %w", err)
	}
	return &id, nil
}

func (c *Connector) CreateIdentity(ctx context.Context, email, plain string, confirmed bool) (backend.Identity, error) {
	hash, err := password.Hash(c.hash, plain)
	if err != nil {
		return backend.Identity{}, err
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (email, password_hash, email_confirmed_at)
		VALUES ($1, $2, CASE WHEN $3 THEN now() END)
		RETURNING %s`, c.identities, identityCols)
	id, err := scanIdentity(c.pool.QueryRow(ctx, q, email, hash, confirmed))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return backend.Identity{}, fmt.Errorf("%w: %s", backend.ErrConflict, pgErr.Detail)
		}
		return backend.Identity{}, fmt.Errorf("pg: create identity: %w", err)
	}
	return id, nil
}

func (c *Connector) UpdateIdentityPassword(ctx context.Context, id, plain string) error {
	hash, err := password.Hash(c.hash, plain)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET password_hash = $2, updated_at = now() WHERE id::text = $1`, c.identities)
	tag, err := c.pool.Exec(ctx, q, id, hash)
	if err != nil {
		return fmt.Errorf("pg: update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return backend.ErrNotFound
	}
	return nil
}

func (c *Connector) DeleteIdentity(ctx context.Context, id string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE id::text = $1`, c.identities)
	tag, err := c.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("pg: delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return backend.ErrNotFound
	}
	return nil
}

// buildUpsert arma INSERT ... ON CONFLICT con columnas ordenadas para que el SQL sea estable.
func buildUpsert(table, conflictKey string, record map[string]any) (string, []any, error) {
	tbl, err := pgsql.Ident(table)
	if err != nil {
		return "", nil, err
	}
	key, err := pgsql.Ident(conflictKey)
	if err != nil {
		return "", nil, err
	}
	if _, ok := record[conflictKey]; !ok {
		return "", nil, fmt.Errorf("pg: record has no %q", conflictKey)
	}

	cols := make([]string, 0, len(record))
	for k := range record {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	quoted := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for i, col := range cols {
		qc, err := pgsql.Ident(col)
		if err != nil || strings.Contains(col, ".") {
			return "", nil, fmt.Errorf("pg: invalid column %q", col)
		}
		quoted = append(quoted, qc)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, record[col])
		if col != conflictKey {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", qc, qc))
		}
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s`,
		tbl, strings.Join(quoted, ", "), strings.Join(placeholders, ", "), key, action)
	return q, args, nil
}

func (c *Connector) UpsertProfile(ctx context.Context, table, conflictKey string, record map[string]any) error {
	q, args, err := buildUpsert(table, conflictKey, record)
	if err != nil {
		return err
	}
	if _, err := c.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("pg: upsert %s: %w", table, err)
	}
	return nil
}

func (c *Connector) DeleteProfile(ctx context.Context, table, idColumn, id string) error {
	tbl, err := pgsql.Ident(table)
	if err != nil {
		return err
	}
	col, err := pgsql.Ident(idColumn)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s::text = $1`, tbl, col)
	if _, err := c.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("pg: delete from %s: %w", table, err)
	}
	return nil
}

func (c *Connector) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *Connector) Close() error {
	c.pool.Close()
	return nil
}

// Pool expone el pool para el migrador.
func (c *Connector) Pool() *pgxpool.Pool { return c.pool }
