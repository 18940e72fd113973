package api

import (
	"github.com/gin-gonic/gin"

	"github.com/smefinder/smefinder/pkg/logging"
	"github.com/smefinder/smefinder/pkg/metrics"
)

// RouterConfig carries everything the router needs
type RouterConfig struct {
	Environment    string
	AllowedOrigins []string
	Webhook        *WebhookHandler
	Match          *MatchHandler
	Health         *HealthHandler
	Metrics        *metrics.Metrics
}

// NewRouter builds the HTTP router with the standard middleware chain
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.GetLogger().WithComponent("http")

	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(SecurityHeadersMiddleware())
	router.Use(CORSMiddleware(cfg.AllowedOrigins))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.GinMiddleware())
	}

	router.GET("/health", cfg.Health.Live)
	router.GET("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		router.GET("/metrics", cfg.Metrics.Handler())
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/webhooks/zendesk", cfg.Webhook.Handle)
		v1.POST("/match", cfg.Match.Handle)
	}

	return router
}
