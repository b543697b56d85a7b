package router

import (
	"net/http"
	"os"
	"strings"

	"zap-backend/internal/app"
	"zap-backend/internal/config"
	"zap-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// corsMiddleware CORS middleware
// Priority: Environment Variable > Default (*)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowedOrigins := []string{"*"}
		if envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); envOrigins != "" {
			allowedOrigins = allowedOrigins[:0]
			for _, o := range strings.Split(envOrigins, ",") {
				if trimmed := strings.TrimSpace(o); trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range allowedOrigins {
				if allowed == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SetupRouter builds the gin engine with all routes registered.
func SetupRouter(container *app.ServiceContainer) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())

	logger := logrus.New()
	var allowedIPs []string
	if config.AppConfig != nil {
		allowedIPs = config.AppConfig.Server.AllowedIPs
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, allowedIPs)

	// ============ Check ============
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ API Routes ============
	SetupZapRoutes(r, container, localhostOnly)

	// ============ NoRoute handler for 404 ============
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "Endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check /api endpoints for available APIs",
		})
	})

	return r
}
