package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonathan/pikflix/internal/pipeline"
	"github.com/jonathan/pikflix/internal/types"
)

// ErrInvalidBody indicates the request body could not be decoded
type ErrInvalidBody struct {
	Cause error
}

func (e *ErrInvalidBody) Error() string {
	return "invalid request body: " + e.Cause.Error()
}

func (e *ErrInvalidBody) Unwrap() error {
	return e.Cause
}

// StatusClientClosedRequest is the non-standard status logged when the client
// goes away before the response is complete.
const StatusClientClosedRequest = 499

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validationErr *types.ErrValidation
	var bodyErr *ErrInvalidBody
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr), errors.As(err, &bodyErr):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, pipeline.ErrNoRecommendations):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
