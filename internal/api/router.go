package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/noise/internal/api/middleware"
	"github.com/liliang-cn/noise/internal/api/ollama"
	"github.com/liliang-cn/noise/internal/gateway"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	AllowOrigins []string
	MaxBodyBytes int64
}

// SetupRouter sets up the Gin router
func SetupRouter(proxy *gateway.Proxy, logger *zap.Logger, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Inference backend proxy
	ollamaHandler := ollama.NewHandler(proxy, logger)
	ollamaGroup := r.Group("/api/ollama")
	ollamaGroup.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	ollamaHandler.RegisterRoutes(ollamaGroup)

	return r
}
