// Package errors define el catálogo de errores HTTP y su serialización.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/userrelay/internal/reconcile"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError serializa err como AppError; cualquier otro error sale como 500.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if k := reconcile.KindOf(err); k != "" {
		return FromReconcile(err)
	}
	return ErrInternalServerError.WithCause(err)
}

// FromReconcile traduce la taxonomía del reconciliador a respuestas HTTP.
// El detail lleva el Kind; la causa (que puede incluir respuestas del backend) queda solo para logs.
func FromReconcile(err error) *AppError {
	k := reconcile.KindOf(err)
	var base *AppError
	switch k {
	case reconcile.KindTenantNotFound:
		base = ErrTenantNotFound
	case reconcile.KindMissingEmail:
		base = ErrMissingEmail
	case reconcile.KindInvalidRequest:
		base = ErrInvalidParameter
	case reconcile.KindDirectoryUnavailable:
		base = ErrServiceUnavailable
	case reconcile.KindInvalidCredentials:
		base = ErrBackendCredentials
	case "":
		return ErrInternalServerError.WithCause(err)
	default:
		base = ErrBackendFailure
	}
	out := base.WithDetail(string(k)).WithCause(err)

	var re *reconcile.Error
	if stderrors.As(err, &re) && re.IdentityID != "" {
		switch {
		case re.RolledBack:
			out.Detail += "; identity rolled back"
		case k == reconcile.KindProfileUpsertFailed:
			out.Detail += "; identity " + re.IdentityID + " left without profile"
		}
	}
	return out
}
