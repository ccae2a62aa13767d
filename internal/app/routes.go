package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/braingame/waitlist-core/internal/middleware"
	"github.com/braingame/waitlist-core/internal/modules/subscription"
	"github.com/braingame/waitlist-core/internal/pkg/response"
)

func (a *App) registerRoutes() {
	r := a.router
	authMW := middleware.Auth(a.cfg.AdminSecret)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	api := r.Group("/api/v1")

	api.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": "pong"})
	})
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	subscription.NewHandler(a.svc, a.limiter, a.tracker, a.logger).RegisterRoutes(api, authMW)

	admin := api.Group("/admin", authMW)
	admin.DELETE("/ratelimit", a.resetRateLimit) // ?key= clears one bucket, none clears all
}

func (a *App) resetRateLimit(c *gin.Context) {
	key := c.Query("key")
	if err := a.limiter.Reset(c.Request.Context(), key); err != nil {
		a.logger.Error("rate limit reset failed", zap.String("key", key), zap.Error(err))
		response.InternalError(c)
		return
	}
	response.OK(c, gin.H{"success": true, "message": "Rate limit buckets cleared"})
}
