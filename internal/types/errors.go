package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// AsValidationError converts the error returned by a Validate method into an
// *ErrValidation describing the first failing field. Other errors are
// returned unchanged.
func AsValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	field := jsonName(fe.Field())
	switch fe.Tag() {
	case "required", "notblank":
		return &ErrValidation{Field: field, Message: "is required"}
	case "len":
		return &ErrValidation{Field: field, Message: fmt.Sprintf("must be %s characters", fe.Param())}
	case "gt":
		return &ErrValidation{Field: field, Message: fmt.Sprintf("must be greater than %s", fe.Param())}
	case "alpha":
		return &ErrValidation{Field: field, Message: "must contain only letters"}
	default:
		return &ErrValidation{Field: field, Message: fmt.Sprintf("failed %q check", fe.Tag())}
	}
}

// jsonName turns a Go field name like MovieID into movie_id.
func jsonName(field string) string {
	var b strings.Builder
	runes := []rune(field)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
