package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationErrors maps a field name to its failure messages. It renders as
// the errors object of a 422 response.
type ValidationErrors map[string][]string

func (v ValidationErrors) Error() string {
	var parts []string
	for field, msgs := range v {
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	return strings.Join(parts, "; ")
}

// ValidateStruct validates a request struct and returns field-level errors.
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	result := ValidationErrors{}
	for _, fe := range err.(validator.ValidationErrors) {
		field := strings.ToLower(fe.Field())
		result[field] = append(result[field], validationMessage(field, fe))
	}
	return result
}

func validationMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "email":
		return field + " must be a valid email"
	case "len":
		return field + " must be exactly " + fe.Param() + " characters"
	case "url":
		return field + " must be a valid URL"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "eqfield":
		return field + " does not match " + strings.ToLower(fe.Param())
	case "gte":
		return field + " must be at least " + fe.Param()
	case "ip":
		return field + " must be a valid IP address"
	default:
		return field + " is invalid"
	}
}
