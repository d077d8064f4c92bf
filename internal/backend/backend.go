// Package backend define la superficie que el reconciliador usa sobre el backend aislado
// de cada tenant: identidades de autenticación y filas de perfil.
package backend

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials: URL o key vacías o malformadas, o esquema sin driver.
	ErrInvalidCredentials = errors.New("backend: invalid credentials")

	// ErrNotFound: la identidad pedida no existe.
	ErrNotFound = errors.New("backend: not found")

	// ErrConflict: ya existe una identidad con ese email (índice único en pg).
	ErrConflict = errors.New("backend: conflict")
)

// Identity es la identidad de autenticación tal como la expone el backend.
type Identity struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	EmailConfirmed bool      `json:"email_confirmed"`
	CreatedAt      time.Time `json:"created_at"`
}

// Connector está ligado a un único backend de tenant.
type Connector interface {
	// ListIdentities pagina desde page=1. hasMore indica si conviene pedir la siguiente.
	ListIdentities(ctx context.Context, page, perPage int) (ids []Identity, hasMore bool, err error)
	CreateIdentity(ctx context.Context, email, password string, confirmed bool) (Identity, error)
	UpdateIdentityPassword(ctx context.Context, id, password string) error
	// DeleteIdentity devuelve ErrNotFound si id no existe.
	DeleteIdentity(ctx context.Context, id string) error

	// UpsertProfile inserta o actualiza record en table usando conflictKey como clave.
	UpsertProfile(ctx context.Context, table, conflictKey string, record map[string]any) error
	// DeleteProfile borra por idColumn = id; sin filas no es error.
	DeleteProfile(ctx context.Context, table, idColumn, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// IdentityFinder es opcional: búsqueda puntual por email exacto.
// Devuelve (nil, nil) si no hay coincidencia.
type IdentityFinder interface {
	FindIdentityByEmail(ctx context.Context, email string) (*Identity, error)
}

// Factory produce conectores. Dialer crea uno nuevo por llamada; Pool los reutiliza.
// El llamador siempre invoca Close sobre el conector recibido.
type Factory interface {
	Connect(ctx context.Context, backendURL, backendKey string) (Connector, error)
}

// AsFinder detecta IdentityFinder atravesando wrappers con Unwrap.
func AsFinder(c Connector) (IdentityFinder, bool) {
	for c != nil {
		if f, ok := c.(IdentityFinder); ok {
			return f, true
		}
		u, ok := c.(interface{ Unwrap() Connector })
		if !ok {
			return nil, false
		}
		c = u.Unwrap()
	}
	return nil, false
}
