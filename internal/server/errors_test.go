package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/pikflix/internal/pipeline"
	"github.com/jonathan/pikflix/internal/types"
)

func TestErrInvalidBody(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := &ErrInvalidBody{Cause: cause}
	assert.Equal(t, "invalid request body: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "ErrValidation",
			err:      &types.ErrValidation{Field: "region", Message: "is required"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "wrapped ErrValidation",
			err:      fmt.Errorf("lookup: %w", &types.ErrValidation{Field: "region", Message: "is required"}),
			expected: http.StatusBadRequest,
		},
		{
			name:     "ErrInvalidBody",
			err:      &ErrInvalidBody{Cause: errors.New("bad json")},
			expected: http.StatusBadRequest,
		},
		{
			name:     "no recommendations",
			err:      pipeline.ErrNoRecommendations,
			expected: http.StatusInternalServerError,
		},
		{
			name:     "client went away",
			err:      context.Canceled,
			expected: StatusClientClosedRequest,
		},
		{
			name:     "Unknown error",
			err:      assert.AnError,
			expected: http.StatusInternalServerError,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}
