package application

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterConfigValidators registers the custom validation functions
// referenced by configuration and request struct tags.
// RegisterConfigValidators returns an error if any registration fails.
func RegisterConfigValidators(v *validator.Validate) error {
	// Register model string validator for provider/name format.
	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}
	return nil
}

// validateModelFormat validates that a model string has the upstream
// provider/name form, optionally followed by a ":variant" suffix, for
// example "openai/gpt-4o" or "mistralai/mistral-7b-instruct:free".
// Empty strings pass; combine with required to reject them.
func validateModelFormat(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" {
		return true
	}
	return IsModelSlug(model)
}

// IsModelSlug reports whether s has the provider/name form.
func IsModelSlug(s string) bool {
	provider, name, found := strings.Cut(s, "/")
	if !found || provider == "" || name == "" {
		return false
	}
	if strings.ContainsAny(s, " \t\n") || strings.Contains(name, "/") {
		return false
	}
	for _, ch := range provider {
		if !isSlugRune(ch) {
			return false
		}
	}
	return true
}

func isSlugRune(ch rune) bool {
	return ch >= 'a' && ch <= 'z' || ch >= '0' && ch <= '9' || ch == '-' || ch == '_' || ch == '.'
}
