package middleware

import (
	"net/http"

	"rackgen-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer identity token and puts the
// resolved Identity on the context. No account row is required to
// exist yet: the first authenticated call is what creates it.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := utils.ExtractToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, err.Error()))
			c.Abort()
			return
		}

		identity, err := utils.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse(http.StatusUnauthorized, "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("identity", identity)
		c.Next()
	}
}

// CurrentIdentity returns the identity set by AuthMiddleware.
func CurrentIdentity(c *gin.Context) (*utils.Identity, bool) {
	value, exists := c.Get("identity")
	if !exists {
		return nil, false
	}
	identity, ok := value.(*utils.Identity)
	return identity, ok
}
