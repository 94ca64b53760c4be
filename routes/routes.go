package routes

import (
	"github.com/gin-gonic/gin"

	"go-cropwatch/epidemic"
	"go-cropwatch/handlers"
)

func SetupRouter(svc *epidemic.Service) *gin.Engine {
	r := gin.Default()

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Hello, welcome to Go Cropwatch!",
		})
	})
	r.GET("/health", handlers.Health)

	// api routes
	api := r.Group("/api/cropwatch")
	{
		api.POST("/observations", func(c *gin.Context) {
			handlers.SubmitObservation(c, svc)
		})
		api.GET("/epidemic/alerts", func(c *gin.Context) {
			handlers.GetAlerts(c, svc)
		})
		api.GET("/epidemic/map", func(c *gin.Context) {
			handlers.GetHeatmap(c, svc)
		})
		api.GET("/epidemic/stats", func(c *gin.Context) {
			handlers.GetStats(c, svc)
		})
	}

	return r
}
