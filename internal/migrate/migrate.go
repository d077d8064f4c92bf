// Package migrate aplica los SQL embebidos en migrations/postgres.
// Formato de archivo: {version}_{name}.sql (ej: 0001_tenant_directory.sql).
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dropDatabas3/userrelay/migrations/postgres"
)

// Set es un conjunto de migraciones dentro de un FS.
type Set struct {
	Name string
	FS   fs.FS
	Dir  string
}

var (
	Directory = Set{Name: "directory", FS: migrations.FS, Dir: migrations.DirectoryDir}
	Backend   = Set{Name: "backend", FS: migrations.FS, Dir: migrations.BackendDir}
)

// SetByName resuelve "directory" o "backend".
func SetByName(name string) (Set, bool) {
	switch name {
	case Directory.Name:
		return Directory, true
	case Backend.Name:
		return Backend, true
	}
	return Set{}, false
}

type Migration struct {
	Version int
	Name    string
	SQL     string
}

type Result struct {
	Applied  []int
	Skipped  []int
	Duration time.Duration
}

// DB es lo que necesita el migrador; *pgxpool.Pool lo cumple.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Migrator struct {
	db  DB
	set Set
}

func New(db DB, set Set) *Migrator {
	return &Migrator{db: db, set: set}
}

var migrationFilePattern = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

// Parse lee y ordena las migraciones del set. Versiones repetidas son error.
func Parse(set Set) ([]Migration, error) {
	entries, err := fs.ReadDir(set.FS, set.Dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", set.Dir, err)
	}
	var out []Migration
	seen := map[int]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, _ := strconv.Atoi(m[1])
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("migrate: version %d repeated (%s, %s)", v, prev, e.Name())
		}
		seen[v] = e.Name()
		b, err := fs.ReadFile(set.FS, path.Join(set.Dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: v, Name: m[2], SQL: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

const trackingTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		set_name   TEXT NOT NULL,
		version    INT  NOT NULL,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (set_name, version)
	)`

func (m *Migrator) applied(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.Query(ctx, `SELECT version FROM schema_migrations WHERE set_name = $1`, m.set.Name)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(versions))
	for _, v := range versions {
		out[v] = true
	}
	return out, nil
}

// Up aplica las pendientes, cada una en su transacción.
func (m *Migrator) Up(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}

	migs, err := Parse(m.set)
	if err != nil {
		return res, err
	}
	if _, err := m.db.Exec(ctx, trackingTable); err != nil {
		return res, fmt.Errorf("migrate: tracking table: %w", err)
	}
	done, err := m.applied(ctx)
	if err != nil {
		return res, fmt.Errorf("migrate: applied versions: %w", err)
	}

	for _, mig := range migs {
		if done[mig.Version] {
			res.Skipped = append(res.Skipped, mig.Version)
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("migrate: %s %04d_%s: %w", m.set.Name, mig.Version, mig.Name, err)
		}
		res.Applied = append(res.Applied, mig.Version)
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (set_name, version, name) VALUES ($1, $2, $3)`,
		m.set.Name, mig.Version, mig.Name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Pending lista las versiones sin aplicar.
func (m *Migrator) Pending(ctx context.Context) ([]int, error) {
	migs, err := Parse(m.set)
	if err != nil {
		return nil, err
	}
	if _, err := m.db.Exec(ctx, trackingTable); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, mig := range migs {
		if !done[mig.Version] {
			out = append(out, mig.Version)
		}
	}
	return out, nil
}
