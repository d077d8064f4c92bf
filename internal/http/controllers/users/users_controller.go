// Package users contiene el controller de provisioning de usuarios.
package users

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/userrelay/internal/http/dto"
	httperrors "github.com/dropDatabas3/userrelay/internal/http/errors"
	"github.com/dropDatabas3/userrelay/internal/http/helpers"
	"github.com/dropDatabas3/userrelay/internal/observability/logger"
	"github.com/dropDatabas3/userrelay/internal/reconcile"
	"github.com/dropDatabas3/userrelay/internal/validation"
)

// Service es lo que el controller necesita del reconciliador.
type Service interface {
	Upsert(ctx context.Context, req reconcile.Request) (reconcile.Result, error)
	Delete(ctx context.Context, tenantID, userID string) error
}

// SchemaLookup resuelve un esquema configurado por nombre.
type SchemaLookup func(name string) (reconcile.Schema, bool)

type Controller struct {
	svc      Service
	schemas  SchemaLookup
	validate *validation.Validator
}

func NewController(svc Service, schemas SchemaLookup, v *validation.Validator) *Controller {
	if v == nil {
		v = validation.New()
	}
	return &Controller{svc: svc, schemas: schemas, validate: v}
}

// Upsert maneja PUT /v1/projects/{projectID}/users.
func (c *Controller) Upsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("UsersController.Upsert"), logger.TenantID(projectID))

	var req dto.UpsertUserRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if err := c.validate.Struct(req); err != nil {
		log.Debug("invalid request body", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail(err.Error()))
		return
	}

	schema, appErr := c.resolveSchema(req)
	if appErr != nil {
		httperrors.WriteError(w, appErr)
		return
	}
	c.upsert(w, r, projectID, schema, req.User)
}

func (c *Controller) resolveSchema(req dto.UpsertUserRequest) (reconcile.Schema, *httperrors.AppError) {
	var s reconcile.Schema
	name := strings.TrimSpace(req.Schema)
	if name != "" || req.Table == "" {
		if name == "" {
			name = "default"
		}
		var ok bool
		if s, ok = c.schemas(name); !ok {
			return reconcile.Schema{}, httperrors.ErrSchemaNotFound.WithDetail(name)
		}
	}
	if req.Table != "" {
		s.Table = req.Table
		s.ConflictKey = req.ConflictKey
		if name == "" {
			s.Name = "custom"
		}
	}
	return s, nil
}

// UpsertWithSchema maneja PUT /v1/projects/{projectID}/schemas/{schema}/users.
// El body es el payload del usuario tal cual.
func (c *Controller) UpsertWithSchema(w http.ResponseWriter, r *http.Request) {
	c.UpsertNamed(chi.URLParam(r, "schema")).ServeHTTP(w, r)
}

// UpsertNamed devuelve el handler de upsert para un esquema fijo (rutas legacy).
func (c *Controller) UpsertNamed(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schema, ok := c.schemas(name)
		if !ok {
			httperrors.WriteError(w, httperrors.ErrSchemaNotFound.WithDetail(name))
			return
		}
		var payload map[string]any
		if err := helpers.ReadJSON(w, r, &payload); err != nil {
			httperrors.WriteError(w, err)
			return
		}
		c.upsert(w, r, chi.URLParam(r, "projectID"), schema, payload)
	}
}

func (c *Controller) upsert(w http.ResponseWriter, r *http.Request, projectID string, schema reconcile.Schema, payload map[string]any) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("UsersController.Upsert"),
		logger.TenantID(projectID), logger.Schema(schema.Name), logger.Table(schema.Table))

	res, err := c.svc.Upsert(ctx, reconcile.Request{TenantID: projectID, Payload: payload, Schema: schema})
	if err != nil {
		writeReconcileError(log, w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.UpsertUserResponse{
		UserID:  res.IdentityID,
		Created: res.Created,
		Message: "Usuario creado/actualizado (" + schema.Table + ").",
	})
}

// Delete maneja DELETE /v1/projects/{projectID}/users/{userID} y las rutas legacy. 204 si todo salió bien.
func (c *Controller) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	userID := chi.URLParam(r, "userID")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("UsersController.Delete"),
		logger.TenantID(projectID), logger.UserID(userID))

	if err := c.svc.Delete(ctx, projectID, userID); err != nil {
		writeReconcileError(log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeReconcileError(log *zap.Logger, w http.ResponseWriter, err error) {
	appErr := httperrors.FromReconcile(err)
	if appErr.HTTPStatus >= 500 {
		log.Error("reconcile failed", logger.String("kind", string(reconcile.KindOf(err))), logger.Err(err))
	} else {
		log.Warn("request rejected", logger.String("kind", string(reconcile.KindOf(err))), logger.Err(err))
	}
	httperrors.WriteError(w, appErr)
}
