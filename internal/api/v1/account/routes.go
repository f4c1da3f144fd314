package account

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/account")
	group.POST("/sync", Sync)
	group.GET("", Get)
	group.DELETE("", Delete)
	group.POST("/reactivate", Reactivate)
}
