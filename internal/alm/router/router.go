// Package router provides triage service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/handler"
)

// Register registers the triage service routes.
func Register(engine *gin.Engine, h *handler.TriageHandler) {
	v1 := engine.Group("/v1")
	{
		logs := v1.Group("/logs")
		{
			logs.POST("/triage", h.Triage)
		}

		v1.POST("/alerts", h.Alert)

		templates := v1.Group("/templates")
		{
			templates.POST("/fit", h.Fit)
			templates.GET("/model", h.Model)
		}

		knowledge := v1.Group("/knowledge")
		{
			knowledge.POST("", h.IndexKnowledge)
		}

		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
}
