// Package validation checks user input before it reaches the session manager,
// the dialog step machines or the checkout collaborators.
package validation

import (
	"errors"
	"fmt"

	"github.com/cardswap/cardswap/internal/models"
	"github.com/go-playground/validator/v10"
)

// FieldError is a validation failure on a single field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error lists every failing field. It unwraps to models.ErrValidation.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Fields[0].Field, e.Fields[0].Message)
}

func (e *Error) Unwrap() error {
	return models.ErrValidation
}

// Global validator instance (reused by every caller)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("country", func(fl validator.FieldLevel) bool {
		_, ok := models.LookupCountry(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return models.IsCategory(fl.Field().String())
	})
	_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		for _, m := range models.PaymentMethods {
			if m == fl.Field().String() {
				return true
			}
		}
		return false
	})
	return v
}

// Struct validates a struct by its validate tags.
func Struct(s any) error {
	return convert(validate.Struct(s))
}

// Var validates a single value against tag, reporting failures under field.
func Var(field string, value any, tag string) error {
	err := convert(validate.Var(value, tag))
	var ve *Error
	if errors.As(err, &ve) {
		for i := range ve.Fields {
			ve.Fields[i].Field = field
		}
	}
	return err
}

// Email checks that email is present and well formed.
func Email(email string) error {
	return Var("email", email, "required,email")
}

func convert(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	out := &Error{Fields: make([]FieldError, 0, len(ve))}
	for _, fe := range ve {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return out
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lt", "ltfield":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "country":
		return "must be a supported country"
	case "category":
		return "must be a known category"
	case "payment_method":
		return "must be card, netbanking or upi"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
