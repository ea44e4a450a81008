package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"coinflip-relay/internal/services"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// RequestID tags each request for log correlation, keeping a caller supplied
// id when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(services.ContextWithRequestID(c.Request.Context(), id))

		c.Next()
	}
}
