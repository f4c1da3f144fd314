package generate

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the generation endpoints.
func RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/generate", Generate)
	router.GET("/generations", List)
}
