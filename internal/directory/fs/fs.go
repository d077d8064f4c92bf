// Package fs implementa el directorio sobre un archivo YAML local.
//
//	tenants:
//	  - tenant_id: acme
//	    backend_url: https://acme.supabase.co
//	    backend_key_enc: "nonce|ciphertext"
//
// El archivo se relee en cada consulta; editarlo tiene efecto inmediato.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/userrelay/internal/config"
	"github.com/dropDatabas3/userrelay/internal/directory"
	"github.com/dropDatabas3/userrelay/internal/util/atomicwrite"
)

func init() {
	directory.RegisterDriver("fs", func(_ context.Context, cfg config.DirectoryConfig) (directory.Directory, error) {
		return New(cfg.FS.Path), nil
	})
}

type file struct {
	Tenants []directory.TenantRecord `yaml:"tenants"`
}

type Directory struct {
	path string
}

func New(path string) *Directory {
	return &Directory{path: filepath.Clean(path)}
}

func (d *Directory) load() ([]directory.TenantRecord, error) {
	b, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", directory.ErrUnavailable, d.path, err)
	}
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", directory.ErrUnavailable, d.path, err)
	}
	return f.Tenants, nil
}

func (d *Directory) Resolve(ctx context.Context, tenantID string) (*directory.TenantRecord, error) {
	id, err := directory.NormalizeID(tenantID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := d.load()
	if err != nil {
		return nil, err
	}
	var rows []directory.TenantRecord
	for _, r := range all {
		if strings.TrimSpace(r.TenantID) == id {
			rows = append(rows, r)
		}
	}
	return directory.Pick(rows)
}

func (d *Directory) List(ctx context.Context) ([]directory.TenantRecord, error) {
	all, err := d.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].TenantID < all[j].TenantID })
	return all, nil
}

// Ping verifica que el archivo exista y parsee.
func (d *Directory) Ping(ctx context.Context) error {
	_, err := d.load()
	return err
}

// Write reemplaza el archivo de forma atómica. Lo usa relayctl.
func (d *Directory) Write(recs []directory.TenantRecord) error {
	if len(recs) == 0 {
		return errors.New("fs directory: refusing to write an empty tenant list")
	}
	b, err := yaml.Marshal(file{Tenants: recs})
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(d.path, b, 0o600)
}
