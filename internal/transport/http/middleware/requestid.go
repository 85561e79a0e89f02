package middleware

import (
	"github.com/ErlanBelekov/backend-skeleton/internal/requestid"
	"github.com/gin-gonic/gin"
)

const (
	requestIDHeader   = "X-Request-ID"
	maxRequestIDBytes = 128
)

// RequestID injects a request ID into the context and response header.
// A client-supplied X-Request-ID is kept when it is non-empty and at most
// 128 bytes; otherwise a new UUID is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > maxRequestIDBytes {
			id = requestid.New()
		}

		c.Request = c.Request.WithContext(requestid.WithRequestID(c.Request.Context(), id))
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
