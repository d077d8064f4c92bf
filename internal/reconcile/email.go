package reconcile

import "strings"

// DefaultEmailAliases en orden de prioridad; el primero con string no vacío gana.
var DefaultEmailAliases = []string{"correoElectronico", "Email", "correo", "email"}

// ExtractEmail devuelve el email tal cual viene (sin normalizar: el match es exacto).
func ExtractEmail(payload map[string]any, aliases []string) (string, bool) {
	for _, a := range aliases {
		v, ok := payload[a]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		return s, true
	}
	return "", false
}
