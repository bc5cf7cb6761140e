package transcribe

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/skillsenselab/whisper-server/internal/apierr"
)

var (
	paramsValidate *validator.Validate
	paramsOnce     sync.Once
)

func getValidate() *validator.Validate {
	paramsOnce.Do(func() {
		paramsValidate = validator.New(validator.WithRequiredStructEnabled())

		// Use json tag names for field names in error messages.
		paramsValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return strings.ToLower(fld.Name)
			}
			return name
		})
	})
	return paramsValidate
}

// validateParams checks the request parameters against their struct tags and
// returns an invalid_request_error describing every violation.
func validateParams(p *Params) *apierr.Error {
	err := getValidate().Struct(p)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return apierr.InvalidRequest("invalid request parameters")
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, e.Field()+" "+formatViolation(e))
	}
	return apierr.InvalidRequest(strings.Join(messages, "; "))
}

// formatViolation creates a human-readable message for one field error.
func formatViolation(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	case "max":
		return "must be at most " + e.Param() + " characters"
	default:
		return "is invalid"
	}
}
