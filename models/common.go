package models

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Common validation functions and utilities used across models

// validate is shared by all request models; validator.Validate caches struct metadata
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

// HasErrors returns true if there are validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// GetMessages returns all error messages as a slice of strings
func (ve ValidationErrors) GetMessages() []string {
	messages := make([]string, len(ve))
	for i, err := range ve {
		messages[i] = err.Message
	}
	return messages
}

// validateStruct runs the struct tags through the validator and turns failures into readable messages
func validateStruct(v interface{}) ValidationErrors {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Message: err.Error()}}
	}

	result := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := toSnakeCase(fe.Field())
		var msg string
		switch fe.Tag() {
		case "required":
			msg = field + " is required"
		case "min":
			msg = field + " must have at least " + fe.Param() + " item(s)"
		default:
			msg = field + " failed " + fe.Tag() + " validation"
		}
		result = append(result, ValidationError{Field: field, Message: msg})
	}
	return result
}

// toSnakeCase converts a Go field name such as RelativeDir into relative_dir
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
