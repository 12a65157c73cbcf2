package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRouter configures the operator API routes.
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", h.Health)

		sync := v1.Group("/sync")
		{
			sync.POST("/process", h.ProcessPending)
			sync.GET("/operations", h.ListOperations)
			sync.POST("/operations/:id/retry", h.RetryOperation)
			sync.GET("/errors", h.ListSyncErrors)
			sync.POST("/errors/:id/resolve", h.ResolveSyncError)
			sync.POST("/:entityType", h.RequestBatchSync)
		}

		configs := v1.Group("/entity-configs")
		{
			configs.GET("", h.ListEntityConfigs)
			configs.PATCH("/:entityType", h.PatchEntityConfig)
		}

		v1.GET("/reconciliation/:entityType", h.Reconciliation)
	}

	return r
}
