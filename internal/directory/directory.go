// Package directory resuelve un tenant (proyecto) a las credenciales de su backend.
//
// Cada Resolve es una lectura nueva: el directorio es la fuente de verdad y no se cachea.
package directory

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrTenantNotFound cubre id vacío, cero coincidencias, más de una, o tenant deshabilitado.
	ErrTenantNotFound = errors.New("directory: tenant not found")

	// ErrUnavailable indica que el directorio no pudo consultarse.
	ErrUnavailable = errors.New("directory: unavailable")

	// ErrSealedKey: la key sellada del tenant no se pudo abrir (falta la clave o no coincide).
	ErrSealedKey = errors.New("directory: sealed backend key cannot be opened")
)

// TenantRecord son las coordenadas del backend aislado de un tenant.
type TenantRecord struct {
	TenantID   string `json:"tenant_id" yaml:"tenant_id"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	BackendURL string `json:"backend_url" yaml:"backend_url"`
	// BackendKey es secreto: nunca se loguea ni se serializa hacia afuera.
	BackendKey string `json:"-" yaml:"backend_key,omitempty"`
	// BackendKeyEnc es BackendKey sellado con secretbox; Sealed lo abre.
	BackendKeyEnc string `json:"-" yaml:"backend_key_enc,omitempty"`
	Driver        string `json:"driver,omitempty" yaml:"driver,omitempty"`
	Disabled      bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Directory es la capacidad mínima que necesita el reconciliador.
type Directory interface {
	Resolve(ctx context.Context, tenantID string) (*TenantRecord, error)
}

// Lister es opcional; lo usa relayctl para listar tenants.
type Lister interface {
	List(ctx context.Context) ([]TenantRecord, error)
}

// Pinger es opcional; lo usa /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer libera recursos del driver (pools).
type Closer interface {
	Close() error
}

// NormalizeID recorta espacios; un id vacío nunca se consulta.
func NormalizeID(tenantID string) (string, error) {
	id := strings.TrimSpace(tenantID)
	if id == "" {
		return "", ErrTenantNotFound
	}
	return id, nil
}

// Pick aplica la regla de unicidad sobre las filas encontradas.
func Pick(rows []TenantRecord) (*TenantRecord, error) {
	if len(rows) != 1 {
		return nil, ErrTenantNotFound
	}
	rec := rows[0]
	if rec.Disabled {
		return nil, ErrTenantNotFound
	}
	return &rec, nil
}
