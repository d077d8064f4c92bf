package validation

import (
	"regexp"
	"strings"
)

// Identifier rules (tablas y columnas en el backend del tenant):
// - Empieza con letra o '_'.
// - Sigue con [A-Za-z0-9_], largo total 1..63 (límite de Postgres).
// - Opcionalmente calificado con un schema: "public.users".
// - Mayúsculas permitidas: las tablas heredadas se llaman "TUser", "UserId".
//
// Válidos: users, TUser, UserId, public.users, _tmp
// Inválidos: "", 1users, users;drop, "bad space", a.b.c, users-x
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reporta si name puede usarse como tabla o columna.
func ValidIdentifier(name string) bool {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if !identRe.MatchString(p) {
			return false
		}
	}
	return true
}

// ValidColumn es ValidIdentifier sin calificador de schema.
func ValidColumn(name string) bool {
	return identRe.MatchString(name)
}
