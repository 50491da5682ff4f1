package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// mgPhonePattern accepts Malagasy mobile numbers in local (034...) or
// international (+26134...) form. Spaces are stripped before matching.
var mgPhonePattern = regexp.MustCompile(`^(?:\+261|0)3[234789]\d{7}$`)

// IsValidPhone reports whether s is a Malagasy mobile number.
func IsValidPhone(s string) bool {
	return mgPhonePattern.MatchString(compactPhone(s))
}

// NormalizePhone returns the local 10-digit form expected by the wallet
// providers, e.g. "+261 34 12 345 67" becomes "0341234567".
func NormalizePhone(s string) string {
	s = compactPhone(s)
	if strings.HasPrefix(s, "+261") {
		return "0" + strings.TrimPrefix(s, "+261")
	}
	return s
}

func compactPhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", ".", "").Replace(strings.TrimSpace(s))
}

func validatePhone(fl validator.FieldLevel) bool {
	return IsValidPhone(fl.Field().String())
}

// RegisterValidators installs the custom binding tags on gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return RegisterValidatorsOn(v)
}

func RegisterValidatorsOn(v *validator.Validate) error {
	return v.RegisterValidation("mg_phone", validatePhone)
}

// SanitizeValidationError takes a validator error and returns a user-friendly message
// without leaking internal Go struct names.
func SanitizeValidationError(err error) string {
	if err == nil {
		return ""
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return "Invalid request body"
	}

	// Build user-friendly error messages from field-level errors
	var messages []string
	for _, fe := range validationErrors {
		field := toSnake(fe.Field())
		switch fe.Tag() {
		case "required", "required_if":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email address", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		case "mg_phone":
			messages = append(messages, fmt.Sprintf("%s must be a valid mobile number (e.g. 034 12 345 67)", field))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", field))
		}
	}

	if len(messages) == 0 {
		return "Invalid request body"
	}

	return strings.Join(messages, "; ")
}

func toSnake(s string) string {
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
