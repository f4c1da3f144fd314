package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"rackgen-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupAuthTestConfig() {
	os.Setenv("JWT_SECRET", "test_secret")
}

func authTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	authorized := router.Group("/")
	authorized.Use(AuthMiddleware())
	authorized.GET("/whoami", func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"account_id": identity.AccountID, "email": identity.Email})
	})

	admin := router.Group("/admin")
	admin.Use(AdminAuthMiddleware())
	admin.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})

	return router
}

func TestAuthMiddleware(t *testing.T) {
	setupAuthTestConfig()
	router := authTestRouter()

	// No token.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/whoami", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Garbage token.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid token resolves the identity.
	token, err := utils.GenerateToken("user-42", "u42@example.com", "user")
	assert.NoError(t, err)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-42")
}

func TestAdminAuthMiddleware(t *testing.T) {
	setupAuthTestConfig()
	router := authTestRouter()

	// Regular users cannot reach admin routes.
	userToken, _ := utils.GenerateToken("user-42", "u42@example.com", "user")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken, _ := utils.GenerateToken("admin-1", "ops@example.com", "admin")
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
