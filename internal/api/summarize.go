package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cozy-creator/summarize-server/internal/api/middleware"
	"github.com/cozy-creator/summarize-server/internal/app"
	"github.com/cozy-creator/summarize-server/internal/summarizer"

	"github.com/gin-gonic/gin"
)

const TransportHTTP = "http"

type SummarizeRequest struct {
	Caption *string `json:"caption" binding:"required"`
}

type SummarizeResponse struct {
	Summary string `json:"summary"`
}

func Summarize(c *gin.Context) {
	var data SummarizeRequest
	if err := c.ShouldBindJSON(&data); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "caption is required"})
		return
	}

	app := c.MustGet("app").(*app.App)
	result, err := app.Summarizer.Summarize(c.Request.Context(), summarizer.SummarizationRequest{
		Caption:   *data.Caption,
		Transport: TransportHTTP,
		RequestID: c.GetString(middleware.RequestIDKey),
	})
	if err != nil {
		status, detail := errorResponse(err)
		c.JSON(status, gin.H{"detail": detail})
		return
	}

	c.JSON(http.StatusOK, SummarizeResponse{Summary: result.Summary})
}

func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, summarizer.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "Model not loaded"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Summarization timed out"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
