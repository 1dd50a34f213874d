package registry

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var messages = map[string]string{
	"required": "%s is required",
	"oneof":    "%s must be one of: %s",
	"max":      "%s must be at most %s characters",
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// validateInput checks a request struct and folds every violation into a
// single ErrInvalidInput.
func (s *service) validateInput(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	parts := make([]string, 0, len(verrs))

	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			parts = append(parts, fmt.Sprintf("%s is invalid", fe.Field()))

			continue
		}

		if strings.Count(msg, "%s") == 2 {
			parts = append(parts, fmt.Sprintf(msg, fe.Field(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf(msg, fe.Field()))
		}
	}

	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(parts, "; "))
}
