// Package pgsql agrupa helpers de pgx compartidos por el directorio, el backend pg y el migrador.
package pgsql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/userrelay/internal/validation"
)

// Ident cita un identificador (opcionalmente schema.tabla) respetando mayúsculas.
// Nombres que no pasan validation.ValidIdentifier devuelven error.
func Ident(name string) (string, error) {
	if !validation.ValidIdentifier(name) {
		return "", fmt.Errorf("pgsql: invalid identifier %q", name)
	}
	return pgx.Identifier(strings.Split(name, ".")).Sanitize(), nil
}

// MustIdent es Ident para constantes del código.
func MustIdent(name string) string {
	s, err := Ident(name)
	if err != nil {
		panic(err)
	}
	return s
}

// PoolOptions ajusta el pool sobre lo que venga en el DSN.
type PoolOptions struct {
	// Password reemplaza la del DSN si no está vacía.
	Password        string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Lazy evita conectar (y el ping) hasta el primer uso.
	Lazy bool
}

// ParseConfig parsea el DSN y aplica opts.
func ParseConfig(dsn string, opts PoolOptions) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgsql: parse DSN: %w", err)
	}
	if opts.Password != "" {
		cfg.ConnConfig.Password = opts.Password
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	return cfg, nil
}

// Open crea el pool; salvo Lazy, verifica con Ping.
func Open(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := ParseConfig(dsn, opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgsql: create pool: %w", err)
	}
	if opts.Lazy {
		return pool, nil
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgsql: ping: %w", err)
	}
	return pool, nil
}
