package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator envuelve go-playground/validator con los tags propios:
//
//	sqlident    tabla o columna válida (ValidIdentifier)
//	backendurl  URL con esquema conocido por los drivers (http, https, postgres, postgresql, mem)
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || ValidIdentifier(s)
	})
	_ = v.RegisterValidation("backendurl", func(fl validator.FieldLevel) bool {
		return ValidBackendURL(fl.Field().String())
	})
	return &Validator{v: v}
}

func (val *Validator) Struct(s any) error { return humanize(val.v.Struct(s)) }

func (val *Validator) Var(field any, tag string) error { return val.v.Var(field, tag) }

func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}

// ValidBackendURL acepta esquemas soportados y exige host salvo en mem://.
func ValidBackendURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "postgres", "postgresql":
		return u.Host != ""
	case "mem":
		return u.Host != "" || u.Opaque != ""
	default:
		return false
	}
}

// humanize convierte ValidationErrors en "campo: regla" separados por "; ".
func humanize(err error) error {
	ves, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("validation: %s", strings.Join(msgs, "; "))
}
