// Package validation provides local, pre-I/O validation of drafts and partial changes
// using the validator/v10 library.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/collectr/collectr/internal/errors"
)

// Validity is implemented by enum-like domain types; the "valid" tag calls it.
type Validity interface {
	Valid() bool
}

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v        *validator.Validate
	messages map[string]string
}

// New creates a validator configured for our domain.
func New() *Validator {
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if name == "" {
			return fld.Name
		}
		if i := strings.IndexByte(name, ','); i >= 0 {
			name = name[:i]
		}
		if name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("valid", func(fl validator.FieldLevel) bool {
		if val, ok := fl.Field().Interface().(Validity); ok {
			return val.Valid()
		}
		return false
	})
	_ = v.RegisterValidation("pastyear", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Int, reflect.Int16, reflect.Int32, reflect.Int64:
			return fl.Field().Int() <= int64(time.Now().Year())
		default:
			return false
		}
	})

	return &Validator{v: v, messages: make(map[string]string)}
}

// SetMessage overrides the message reported when field fails tag.
func (v *Validator) SetMessage(field, tag, message string) {
	v.messages[field+"."+tag] = message
}

// Validate validates a struct and returns a domain error.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err, "")
	}
	return nil
}

// ValidateChanges validates a partial update. Only keys present in changes are checked,
// each against its rule in rules; keys without a rule pass.
func (v *Validator) ValidateChanges(changes map[string]any, rules map[string]string) error {
	fieldErrors := make(map[string]string)
	for field, value := range changes {
		rule, ok := rules[field]
		if !ok {
			continue
		}
		if err := v.v.Var(value, rule); err != nil {
			var validationErrs validator.ValidationErrors
			if !errors.As(err, &validationErrs) {
				return err
			}
			fieldErrors[field] = v.message(field, validationErrs[0])
		}
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return newValidationError(fieldErrors)
}

// formatError converts validator errors to domain errors.
func (v *Validator) formatError(err error, field string) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string)
	for _, e := range validationErrs {
		name := e.Field()
		if name == "" {
			name = field
		}
		fieldErrors[name] = v.message(name, e)
	}

	return newValidationError(fieldErrors)
}

// newValidationError builds a validation error whose message names every failing field.
func newValidationError(fieldErrors map[string]string) error {
	fields := make([]string, 0, len(fieldErrors))
	for f := range fieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		msg := fieldErrors[f]
		if strings.HasPrefix(msg, "is ") || strings.HasPrefix(msg, "must ") {
			msg = f + " " + msg
		}
		parts = append(parts, msg)
	}

	return domainerrors.ValidationWithDetails("validation failed: "+strings.Join(parts, "; "), fieldErrors)
}

func (v *Validator) message(field string, e validator.FieldError) string {
	if msg, ok := v.messages[field+"."+e.Tag()]; ok {
		return msg
	}
	return friendlyMessage(e)
}

//nolint:gocyclo // Switch statement covering validation tags is intentionally exhaustive.
func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return "is required when " + e.Param() + " is set"
	case "min":
		if e.Kind() == reflect.Slice || e.Kind() == reflect.Map {
			return fmt.Sprintf("must contain at least %s items", e.Param())
		}
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "lt":
		return "must be less than " + e.Param()
	case "pastyear":
		return "must not be in the future"
	case "valid":
		return fmt.Sprintf("is not a valid value: %v", e.Value())
	default:
		return "is invalid"
	}
}
