package api

import (
	"net/http"

	"github.com/cozy-creator/summarize-server/internal/app"

	"github.com/gin-gonic/gin"
)

func Health(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	report := app.Gate.Report()

	if !report.Ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"detail":       "Model not loaded",
			"model_loaded": false,
			"state":        report.State,
			"last_error":   report.LastError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"model_loaded": true,
		"device":       report.Device,
	})
}

func Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ModelStatus(c *gin.Context) {
	app := c.MustGet("app").(*app.App)
	c.JSON(http.StatusOK, app.Store.Status())
}
