package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// Kind clasifica la falla. Cada Kind es también un error sentinel:
// errors.Is(err, reconcile.ErrTenantNotFound) funciona sobre *Error.
type Kind string

const (
	KindTenantNotFound       Kind = "TenantNotFound"
	KindDirectoryUnavailable Kind = "DirectoryUnavailable"
	KindInvalidCredentials   Kind = "InvalidCredentials"
	KindMissingEmail         Kind = "MissingEmail"
	KindInvalidRequest       Kind = "InvalidRequest"
	KindIdentityLookupFailed Kind = "IdentityLookupFailed"
	KindIdentityCreateFailed Kind = "IdentityCreateFailed"
	KindIdentityUpdateFailed Kind = "IdentityUpdateFailed"
	KindProfileUpsertFailed  Kind = "ProfileUpsertFailed"
	KindProfileDeleteFailed  Kind = "ProfileDeleteFailed"
	KindIdentityDeleteFailed Kind = "IdentityDeleteFailed"
)

func (k Kind) Error() string { return string(k) }

var (
	ErrTenantNotFound       error = KindTenantNotFound
	ErrDirectoryUnavailable error = KindDirectoryUnavailable
	ErrInvalidCredentials   error = KindInvalidCredentials
	ErrMissingEmail         error = KindMissingEmail
	ErrInvalidRequest       error = KindInvalidRequest
	ErrIdentityLookupFailed error = KindIdentityLookupFailed
	ErrIdentityCreateFailed error = KindIdentityCreateFailed
	ErrIdentityUpdateFailed error = KindIdentityUpdateFailed
	ErrProfileUpsertFailed  error = KindProfileUpsertFailed
	ErrProfileDeleteFailed  error = KindProfileDeleteFailed
	ErrIdentityDeleteFailed error = KindIdentityDeleteFailed
)

// Error es la falla terminal de una operación. Nunca se reintenta.
type Error struct {
	Kind     Kind
	Op       string
	TenantID string
	// IdentityID es la identidad involucrada si se llegó a conocer
	// (p.ej. identidad creada que quedó huérfana tras fallar el perfil).
	IdentityID string
	// RolledBack indica que la identidad creada en esta llamada fue eliminada.
	RolledBack bool
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("reconcile")
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.TenantID != "" {
		fmt.Fprintf(&b, " tenant=%s", e.TenantID)
	}
	b.WriteString(": " + string(e.Kind))
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf extrae el Kind; "" si err no viene de este paquete.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

func fail(kind Kind, op, tenantID string, cause error) *Error {
	return &Error{Kind: kind, Op: op, TenantID: tenantID, Err: cause}
}
