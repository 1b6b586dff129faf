package api

import (
	"github.com/gin-gonic/gin"

	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/decision"
	"github.com/stdhuman/stdhuman/internal/mission"
)

// SetupRoutes configures the bridge API routes on the given engine.
func SetupRoutes(router *gin.Engine, missions *mission.Manager, decisions *decision.Service, announcer Announcer, inbound InboundRouter, log *logger.Logger) {
	handler := NewHandler(missions, decisions, announcer, inbound, log)

	v1 := router.Group("/v1")
	{
		v1.GET("/health", handler.Health)
		v1.POST("/plan", handler.Plan)
		v1.POST("/log", handler.Log)
		v1.POST("/ask", handler.Ask)
		v1.GET("/ask/:requestId", handler.AskResult)
	}

	router.POST("/telegram/webhook", handler.Webhook)
}
