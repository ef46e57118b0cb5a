package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/auth"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		Issuer:                "paycore-test",
		AccessTokenExpiration: 15 * time.Minute,
	})
}

func issueToken(t *testing.T, svc *auth.JWTService, permissions ...string) *auth.IssuedToken {
	t.Helper()
	tok, err := svc.GenerateToken(auth.GenerateTokenInput{
		OperatorID:  "op-1",
		Username:    "alice",
		Permissions: permissions,
	})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func okHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
