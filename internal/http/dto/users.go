// Package dto define los cuerpos de request/response de la API.
package dto

// UpsertUserRequest es el body de PUT /v1/projects/{projectID}/users.
// Con Schema se toman tabla, clave y campos del esquema configurado;
// Table/ConflictKey explícitos lo reemplazan.
type UpsertUserRequest struct {
	Table       string         `json:"table" validate:"required_with=ConflictKey,sqlident"`
	ConflictKey string         `json:"conflict_key" validate:"required_with=Table,sqlident"`
	Schema      string         `json:"schema" validate:"omitempty,max=64"`
	User        map[string]any `json:"user" validate:"required"`
}

// UpsertUserResponse conserva la clave userId de las rutas legacy.
type UpsertUserResponse struct {
	UserID  string `json:"userId"`
	Created bool   `json:"created"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}
