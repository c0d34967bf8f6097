package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodyLimit makes reads past limit bytes fail with *http.MaxBytesError.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Body != nil {
			ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
		}
		ctx.Next()
	}
}
