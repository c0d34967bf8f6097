package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/cozy-creator/summarize-server/internal/generation"
	"github.com/cozy-creator/summarize-server/internal/summarizer"

	"github.com/stretchr/testify/assert"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{summarizer.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w: %w", summarizer.ErrInferenceFailed, generation.ErrGeneration, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: %w", summarizer.ErrInferenceFailed, errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, detail := errorResponse(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.NotEmpty(t, detail)
	}

	_, detail := errorResponse(summarizer.ErrServiceUnavailable)
	assert.Equal(t, "Model not loaded", detail)
}
