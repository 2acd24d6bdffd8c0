package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(gin.Logger())

	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.GET("", handler.ListJobs)
			jobs.GET("/counts", handler.GetJobCounts)
			jobs.POST("/retry-all", handler.RetryAllJobs)
			jobs.GET("/:id", handler.GetJob)
			jobs.DELETE("/:id", handler.DeleteJob)
			jobs.POST("/:id/retry", handler.RetryJob)
		}

		v1.POST("/collections/:login", handler.TriggerCollection)

		users := v1.Group("/users/:login")
		{
			users.GET("/statistics", handler.GetUserStatistics)
			users.POST("/statistics/recalculate", handler.RecalculateUser)
		}

		v1.GET("/statistics/platform", handler.GetPlatformStatistics)
	}

	return router
}
