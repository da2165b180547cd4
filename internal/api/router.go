package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// HealthChecker reports a component's health snapshot
type HealthChecker interface {
	Health(ctx context.Context) map[string]interface{}
}

// RouterConfig wires the handlers into the HTTP surface
type RouterConfig struct {
	Analysis  *AnalysisHandler
	Workshop  *WorkshopHandler
	Libraries *LibraryHandler
	Files     *FilesHandler

	Database HealthChecker
	Cache    HealthChecker

	AllowedOrigins []string
	Debug          bool
}

// NewRouter builds the gin engine with every route mounted under /api/v1
func NewRouter(cfg RouterConfig) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", healthHandler(cfg.Database, cfg.Cache))

	v1 := router.Group("/api/v1")
	{
		tasks := v1.Group("/analysis/tasks")
		{
			tasks.POST("", cfg.Analysis.CreateTask)
			tasks.GET("", cfg.Analysis.ListTasks)
			tasks.GET("/:id", cfg.Analysis.GetTask)
			tasks.DELETE("/:id", cfg.Analysis.DeleteTask)
			tasks.POST("/:id/start", cfg.Analysis.StartTask)
			tasks.POST("/:id/rerun", cfg.Analysis.RerunTask)
		}

		workshop := v1.Group("/workshop")
		{
			workshop.POST("/cluster-test", cfg.Workshop.RunClusterTest)
			workshop.POST("/cluster-test/batch", cfg.Workshop.RunClusterTestBatch)
			workshop.GET("/cluster-test/history", cfg.Workshop.History)
			workshop.GET("/cluster-test/:id", cfg.Workshop.GetClusterTest)
			workshop.DELETE("/cluster-test/:id", cfg.Workshop.DeleteClusterTest)

			workshop.POST("/classified-data/cache", cfg.Workshop.CacheClassifiedData)
			workshop.GET("/classified-data/cache/:id", cfg.Workshop.GetCachedClassifiedData)

			workshop.POST("/code-libraries", cfg.Libraries.Create)
			workshop.GET("/code-libraries", cfg.Libraries.List)
			workshop.GET("/code-libraries/:id", cfg.Libraries.Get)
			workshop.PUT("/code-libraries/:id", cfg.Libraries.Update)
			workshop.DELETE("/code-libraries/:id", cfg.Libraries.Delete)
		}

		files := v1.Group("/files")
		{
			files.POST("", cfg.Files.Upload)
			files.GET("/:id/columns", cfg.Files.Columns)
			files.DELETE("/:id", cfg.Files.Delete)
		}
	}

	return router
}

func healthHandler(db, cache HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		components := gin.H{}
		healthy := true

		for name, checker := range map[string]HealthChecker{
			"database": db,
			"cache":    cache,
		} {
			if checker == nil {
				continue
			}
			health := checker.Health(c.Request.Context())
			components[name] = health
			if status, ok := health["status"].(string); ok && status != "up" {
				healthy = false
			}
		}

		status := http.StatusOK
		overall := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		c.JSON(status, gin.H{
			"status":     overall,
			"components": components,
		})
	}
}
