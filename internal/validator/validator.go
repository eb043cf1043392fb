package validator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator is a wrapper around the validator library.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with the project's custom tags registered.
func New() *Validator {
	v := validator.New()
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("webhookurl", isWebhookURL)
	return &Validator{
		validate: v,
	}
}

// ValidateStruct validates a struct based on its tags. Field failures are
// summarised as "Field:tag" pairs.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fe.Field()+":"+fe.Tag())
		}
		return fmt.Errorf("validation failed (%s): %w", strings.Join(parts, ", "), err)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// isWebhookURL accepts absolute http(s) URLs with a host.
func isWebhookURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
