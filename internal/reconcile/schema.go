package reconcile

import (
	"fmt"
	"slices"

	"github.com/dropDatabas3/userrelay/internal/validation"
)

// Schema indica dónde vive el perfil: tabla y columna de conflicto (que recibe el id de identidad).
// Fields, si no está vacío, limita qué campos del payload llegan a la fila.
// EmailAliases, si no está vacío, reemplaza los alias globales del reconciliador.
type Schema struct {
	Name         string
	Table        string
	ConflictKey  string
	Fields       []string
	EmailAliases []string
}

func (s Schema) Validate() error {
	if !validation.ValidIdentifier(s.Table) {
		return fmt.Errorf("invalid table %q", s.Table)
	}
	if !validation.ValidColumn(s.ConflictKey) {
		return fmt.Errorf("invalid conflict key %q", s.ConflictKey)
	}
	for _, a := range s.EmailAliases {
		if len(s.Fields) > 0 && !slices.Contains(s.Fields, a) {
			return fmt.Errorf("email alias %q outside fields", a)
		}
	}
	return nil
}

// aliases devuelve los alias del schema o, si no tiene, fallback.
func (s Schema) aliases(fallback []string) []string {
	if len(s.EmailAliases) > 0 {
		return s.EmailAliases
	}
	return fallback
}

// Record arma la fila: campos del payload (filtrados por Fields) y luego la clave de conflicto,
// que siempre termina siendo identityID aunque el payload traiga ese mismo campo.
func (s Schema) Record(payload map[string]any, identityID string) map[string]any {
	rec := make(map[string]any, len(payload)+1)
	if len(s.Fields) == 0 {
		for k, v := range payload {
			rec[k] = v
		}
	} else {
		for _, f := range s.Fields {
			if v, ok := payload[f]; ok {
				rec[f] = v
			}
		}
	}
	rec[s.ConflictKey] = identityID
	return rec
}
