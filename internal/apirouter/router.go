// Package apirouter exposes the ingestion HTTP surface: application and
// endpoint management plus event publishing.
package apirouter

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/hookline/hookline/internal/logging"
)

func NewRouter(logger *logging.Logger, store apiStore, publisher eventPublisher) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("hookline-api"))
	router.Use(ErrorHandlerMiddleware(logger))

	handlers := NewHandlers(logger, store, publisher)

	v1 := router.Group("/v1")
	{
		v1.GET("/health_check", handlers.HealthCheck)
		v1.POST("/application", handlers.CreateApplication)
		v1.POST("/application/:appID/endpoint", handlers.CreateEndpoint)
		v1.POST("/application/:appID/endpoint/:endpointID/disable", handlers.DisableEndpoint)
		v1.POST("/application/:appID/endpoint/:endpointID/enable", handlers.EnableEndpoint)
		v1.POST("/application/:appID/event", handlers.PublishEvent)
	}

	return router
}
