package directory

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/userrelay/internal/security/secretbox"
)

// Sealed abre BackendKeyEnc con secretbox antes de devolver el registro.
// Sin Box, un registro que solo trae la key sellada es un error de configuración.
type Sealed struct {
	Inner Directory
	Box   *secretbox.Box
}

func (s *Sealed) Resolve(ctx context.Context, tenantID string) (*TenantRecord, error) {
	rec, err := s.Inner.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.open(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Sealed) open(rec *TenantRecord) error {
	if rec.BackendKeyEnc == "" {
		return nil
	}
	if s.Box == nil {
		return fmt.Errorf("%w: tenant %q, no secretbox key configured", ErrSealedKey, rec.TenantID)
	}
	plain, err := s.Box.Open(rec.BackendKeyEnc)
	if err != nil {
		return fmt.Errorf("%w: tenant %q: %v", ErrSealedKey, rec.TenantID, err)
	}
	rec.BackendKey = plain
	rec.BackendKeyEnc = ""
	return nil
}

// List delega si el directorio interno lista; las keys no se abren.
func (s *Sealed) List(ctx context.Context) ([]TenantRecord, error) {
	l, ok := s.Inner.(Lister)
	if !ok {
		return nil, fmt.Errorf("directory: driver does not support listing")
	}
	return l.List(ctx)
}

func (s *Sealed) Ping(ctx context.Context) error {
	if p, ok := s.Inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Sealed) Close() error {
	if c, ok := s.Inner.(Closer); ok {
		return c.Close()
	}
	return nil
}
