package billing

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the billing webhook endpoint. The route is
// unauthenticated; the request is trusted via its signature instead.
func RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/billing/webhook", Webhook)
}
