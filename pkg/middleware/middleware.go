package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"incidentdb/internal/constants"
	"incidentdb/internal/logger"
	apperrors "incidentdb/pkg/errors"
	"incidentdb/pkg/logging"
	"incidentdb/pkg/metrics"
)

// LoggerMiddleware logs one line per request with the request context fields.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTPRequest(route, strconv.Itoa(statusCode))

		if raw != "" {
			path = path + "?" + raw
		}

		logFields := []interface{}{
			"status", statusCode,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		}
		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			logFields = append(logFields, "error", errorMessage)
		}

		if statusCode >= 500 {
			log.ErrorwCtx(c.Request.Context(), "HTTP Request", logFields...)
		} else {
			log.InfowCtx(c.Request.Context(), "HTTP Request", logFields...)
		}
	}
}

func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		err := apperrors.RecoverPanic(recovered)
		log.ErrorwCtx(c.Request.Context(), "Panic recovered",
			"error", err,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, apperrors.ToErrorResponse(err))
	})
}

// RequestIDMiddleware propagates X-Request-ID, generating one when absent.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(constants.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(logging.RequestIDKey, requestID)
		c.Header(constants.RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// PrincipalMiddleware takes the authenticated principal from a header set by
// the fronting proxy. With required set, requests without one are rejected.
func PrincipalMiddleware(header string, required bool) gin.HandlerFunc {
	if header == "" {
		header = constants.DefaultPrincipalHeader
	}
	return func(c *gin.Context) {
		principal := strings.TrimSpace(c.GetHeader(header))
		if principal == "" && required {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "authentication required",
				"error_code": "UNAUTHENTICATED",
			})
			return
		}
		if principal != "" {
			c.Set(logging.PrincipalKey, principal)
			c.Request = c.Request.WithContext(logging.WithPrincipal(c.Request.Context(), principal))
		}
		c.Next()
	}
}
