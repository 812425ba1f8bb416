package address

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cedra_checkout/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError liste les champs refusés (champ JSON → règle).
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, f := range names {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "adresse invalide (" + strings.Join(parts, ", ") + ")"
}

// Validate vérifie un brouillon d'adresse : fullName, flat et pincode obligatoires,
// téléphone à 10 chiffres et code postal à 6 chiffres.
func Validate(a models.Address) error {
	a.FullName = strings.TrimSpace(a.FullName)
	a.Flat = strings.TrimSpace(a.Flat)
	a.Pincode = strings.TrimSpace(a.Pincode)
	a.Phone = strings.TrimSpace(a.Phone)

	err := validate.Struct(a)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation adresse: %w", err)
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[jsonName(fe.Field())] = rule(fe)
	}
	return out
}

func rule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "obligatoire"
	case "len":
		return fe.Param() + " chiffres attendus"
	case "numeric":
		return "chiffres uniquement"
	default:
		return fe.Tag()
	}
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
