package routes

import (
	"manuscript-review-api/controllers"
	"manuscript-review-api/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, api *controllers.API) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"message": "Manuscript Review API is running",
			})
		})

		// Key-protected routes
		keyed := v1.Group("")
		keyed.Use(middleware.RequireAPIKey(api.Access))
		{
			// Metered: each successful call counts against the daily quota
			metered := keyed.Group("")
			metered.Use(middleware.MeterQuota(api.Access))
			{
				metered.POST("/submissions", api.CreateSubmission)
				metered.GET("/submissions/:id", api.GetSubmission)
				metered.POST("/submissions/:id/revision", api.SubmitRevision)
			}

			keyed.GET("/usage", api.GetUsage)
			keyed.GET("/workflows", api.ListWorkflows)
			keyed.GET("/jobs/:id", api.GetJob)
		}

		// Admin
		admin := v1.Group("/admin")
		{
			admin.POST("/login", api.AdminLogin)

			protected := admin.Group("")
			protected.Use(middleware.AdminAuthMiddleware(api.JWTSecret))
			{
				protected.POST("/keys", api.IssueKey)
				protected.POST("/keys/revoke", api.RevokeKeys)
				protected.POST("/keys/quota", api.SetQuota)

				protected.POST("/submissions/:id/status", api.AdvanceSubmission)
				protected.POST("/submissions/:id/rounds", api.SubmitRoundResult)

				protected.GET("/jobs/pending", api.PendingJobs)
				protected.POST("/sweep", api.RunExpirySweep)
			}
		}
	}
}
