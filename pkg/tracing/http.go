package tracing

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"incidentdb/pkg/logging"
)

// GinMiddleware starts a server span per request and exposes its trace id to
// the request logger.
func GinMiddleware(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		otelgin.Middleware(serviceName),
		func(c *gin.Context) {
			if id := TraceID(c.Request.Context()); id != "" {
				c.Request = c.Request.WithContext(logging.WithTraceID(c.Request.Context(), id))
			}
			c.Next()
		},
	}
}
