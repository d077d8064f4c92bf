package password

import (
	"fmt"
	"strings"
	"unicode"
)

// Policy acota la contraseña temporal que el relay asigna a cada identidad.
type Policy struct {
	MinLength int
	// MaxBytes: GoTrue hashea con bcrypt y descarta lo que pase de 72 bytes.
	MaxBytes int
	// MinClasses cuenta mayúsculas, minúsculas, dígitos y símbolos distintos presentes.
	MinClasses int
}

// TempPolicy es lo mínimo que aceptan los backends (GoTrue rechaza < 6).
var TempPolicy = Policy{MinLength: 6, MaxBytes: 72}

// Violations devuelve los códigos de regla incumplidos; vacío si s es aceptable.
func (p Policy) Violations(s string) []string {
	var out []string
	if strings.TrimSpace(s) != s {
		out = append(out, "surrounding_space")
	}
	if p.MinLength > 0 && len([]rune(s)) < p.MinLength {
		out = append(out, "too_short")
	}
	if p.MaxBytes > 0 && len(s) > p.MaxBytes {
		out = append(out, "too_long")
	}
	if p.MinClasses > 0 && classes(s) < p.MinClasses {
		out = append(out, "few_classes")
	}
	return out
}

// Check envuelve Violations como error.
func (p Policy) Check(s string) error {
	if v := p.Violations(s); len(v) > 0 {
		return fmt.Errorf("password: %s", strings.Join(v, ","))
	}
	return nil
}

func classes(s string) int {
	var seen [4]bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			seen[0] = true
		case unicode.IsLower(r):
			seen[1] = true
		case unicode.IsDigit(r):
			seen[2] = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			seen[3] = true
		}
	}
	n := 0
	for _, ok := range seen {
		if ok {
			n++
		}
	}
	return n
}
