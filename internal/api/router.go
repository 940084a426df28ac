package api

import (
	"github.com/example/wc-matomo-tracking/internal/api/middleware"
	"github.com/example/wc-matomo-tracking/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig holds all dependencies for the router
type RouterConfig struct {
	Handlers      *Handlers
	JWTService    *auth.JWTService
	WebhookSecret string
	Logger        *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	h := cfg.Handlers

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(middleware.LoggingMiddleware(cfg.Logger))

	engine.GET("/health", h.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Shop webhooks, published to the order event stream
	hooks := engine.Group("/hooks", middleware.WebhookSignature(cfg.WebhookSecret))
	{
		hooks.POST("/orders/new", h.NewOrderHook)
		hooks.POST("/orders/status", h.StatusChangeHook)
	}

	// Audit log administration
	admin := engine.Group("/admin", middleware.AuthMiddleware(cfg.JWTService), middleware.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/logs", h.ListLogs)
		admin.POST("/logs/prune", h.PruneLogs)
		admin.GET("/orders/:id/logs", h.OrderLogs)
	}

	return engine
}
