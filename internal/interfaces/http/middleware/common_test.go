package middleware

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/logger"
)

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		assert.Equal(t, GetRequestID(c), logger.GetRequestID(c.Request.Context()))
		okHandler(c)
	})

	t.Run("propagates incoming header", func(t *testing.T) {
		rec := perform(router, http.MethodGet, "/test", map[string]string{RequestIDHeader: "req-42"})
		assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	})

	t.Run("generates when absent", func(t *testing.T) {
		rec := perform(router, http.MethodGet, "/test", nil)
		assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
	})

	t.Run("replaces oversized header", func(t *testing.T) {
		rec := perform(router, http.MethodGet, "/test", map[string]string{RequestIDHeader: strings.Repeat("x", 500)})
		assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
	})
}

func TestCORSWithConfig(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://ops.example.com"}

	router := gin.New()
	router.Use(CORSWithConfig(cfg))
	router.GET("/test", okHandler)

	rec := perform(router, http.MethodGet, "/test", map[string]string{"Origin": "https://ops.example.com"})
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = perform(router, http.MethodGet, "/test", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = perform(router, http.MethodOptions, "/test", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecure(t *testing.T) {
	router := gin.New()
	router.Use(SecureWithConfig(SecurityConfig{HSTSEnabled: true, HSTSMaxAge: 60}))
	router.GET("/test", okHandler)

	rec := perform(router, http.MethodGet, "/test", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "max-age=60", rec.Header().Get("Strict-Transport-Security"))
}
