// Package validation configures the struct validator shared by tool arguments
// and REST request bodies.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/ashureev/goalcoach/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Default returns the shared validator. Field names in errors are JSON names,
// "notblank" rejects whitespace-only strings and "isodate" accepts what
// domain.NormalizeDate accepts.
func Default() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("notblank", validators.NotBlank)
		_ = validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			_, err := domain.NormalizeDate(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Struct validates v and returns an error with a readable message.
func Struct(v any) error {
	err := Default().Struct(v)
	if err == nil {
		return nil
	}
	return errors.New(Message(err))
}

// Message renders validation errors as "field is required; ..." text.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "notblank":
			msgs = append(msgs, fe.Field()+" must not be blank")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "isodate":
			msgs = append(msgs, fe.Field()+" must be an ISO date (YYYY-MM-DD)")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
