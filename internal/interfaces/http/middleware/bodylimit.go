package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Kylin-001/HKYG-sub002/internal/interfaces/http/dto"
)

// BodyLimit returns a middleware that limits request body size.
// Webhook bodies are read whole for signature checks, so the limit also
// bounds the memory one callback can take.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodePayloadTooLarge,
				"Request body exceeds maximum allowed size",
				GetRequestID(c),
			))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
