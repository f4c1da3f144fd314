package transaction

import "github.com/gin-gonic/gin"

func RegisterRoutes(r *gin.RouterGroup) {
	h := NewHandler()

	txGroup := r.Group("/transactions")
	{
		txGroup.GET("", h.ListTransactions)
		txGroup.GET("/export", h.ExportTransactions)
	}
}
