package server

import (
	"github.com/cozy-creator/summarize-server/internal/api"
	"github.com/cozy-creator/summarize-server/internal/app"

	"github.com/gin-gonic/gin"
)

func (s *Server) SetupRoutes(app *app.App) {
	// Liveness only; readiness is /health
	s.ginEngine.GET("/healthz", api.Liveness)

	s.ginEngine.GET("/health", handlerWrapper(app, api.Health))
	s.ginEngine.POST("/summarize", handlerWrapper(app, api.Summarize))

	v1 := s.ginEngine.Group("/v1")
	v1.GET("/model", handlerWrapper(app, api.ModelStatus))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
