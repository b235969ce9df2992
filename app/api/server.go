package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey, version)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey, version string) {
	// Loved books of a user as RSS
	r.GET("/feeds/:user", handler.GetLovedFeed)

	r.GET("/health", handler.GetHealth)

	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.POST("/users/:user/sources", handler.APICreateSource)
			api.GET("/users/:user/sources", handler.APIListUserSources)
			api.GET("/users/:user/items", handler.APIListUserItems)
			api.PUT("/users/:user/items/:id/action", handler.APIUpdateItemAction)

			api.GET("/sources/:id", handler.APIGetSource)
			api.DELETE("/sources/:id", handler.APIDeleteSource)
			api.POST("/sources/:id/retry", handler.APIRetrySource)

			api.POST("/runs", handler.APITriggerRun)
			api.GET("/runs", handler.APIListRuns)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Warn("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"feed":   "/feeds/<user>",
			"health": "/health",
		}

		if apiAccessKey != "" {
			endpoints["sources"] = "/api/users/<user>/sources (GET, POST)"
			endpoints["source"] = "/api/sources/<id> (GET, DELETE)"
			endpoints["retry"] = "/api/sources/<id>/retry (POST)"
			endpoints["items"] = "/api/users/<user>/items?state=unseen"
			endpoints["runs"] = "/api/runs (GET, POST)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Shelfwatch",
			"version":     version,
			"description": "Reading activity feed poller with source health tracking",
			"endpoints":   endpoints,
			"api_status": gin.H{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware accepts the key in X-API-Key or as a Bearer token
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
