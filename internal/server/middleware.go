package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillsenselab/whisper-server/internal/apierr"
	"github.com/skillsenselab/whisper-server/internal/logger"
	"github.com/skillsenselab/whisper-server/internal/util"
)

// Context keys set by the middleware chain.
const (
	CtxRequestID     = "request_id"
	CtxCorrelationID = "correlation_id"
)

// RequestID injects a request id (reused from X-Request-Id when the caller
// supplies one) and a fresh correlation id into every request and response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		correlationID := uuid.New().String()

		c.Set(CtxRequestID, id)
		c.Set(CtxCorrelationID, correlationID)
		c.Header("X-Request-Id", id)
		c.Header("X-Correlation-Id", correlationID)
		c.Next()
	}
}

// Recovery recovers from handler panics, logs the stack, and answers with
// the uniform error shape.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic recovered", map[string]interface{}{
					logger.FieldError:     fmt.Sprintf("%v", r),
					"stack":               string(debug.Stack()),
					"path":                c.Request.URL.Path,
					"method":              c.Request.Method,
					logger.FieldRequestID: c.GetString(CtxRequestID),
				})
				apiErr := apierr.ServerError(fmt.Errorf("%v", r)).WithRequestID(c.GetString(CtxRequestID))
				c.AbortWithStatusJSON(apiErr.HTTPStatus, apiErr.ToResponse())
			}
		}()
		c.Next()
	}
}

// BodySizeLimit restricts the request body to the given size string
// (e.g. "26MB"). Oversized bodies fail on read inside the handler.
func BodySizeLimit(maxSize string) gin.HandlerFunc {
	size := util.ParseSize(maxSize, 26*1024*1024)
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, size)
		c.Next()
	}
}

// CORS answers preflight requests and sets the allow headers.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogger logs every request with method, path, status, and latency,
// at a level matching the status class. Health probes are silently skipped.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isHealthEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path = path + "?" + q
		}

		fields := map[string]interface{}{
			"method":              c.Request.Method,
			"path":                path,
			logger.FieldStatus:    status,
			logger.FieldDuration:  latency.Milliseconds(),
			"client":              c.ClientIP(),
			logger.FieldRequestID: c.GetString(CtxRequestID),
		}
		if latency > 500*time.Millisecond {
			fields["slow"] = true
		}

		switch {
		case status >= 500:
			log.Error("Request completed", fields)
		case status >= 400:
			log.Warn("Request completed", fields)
		default:
			log.Info("Request completed", fields)
		}
	}
}

func isHealthEndpoint(path string) bool {
	for _, hp := range []string{"/health", "/alive", "/ready"} {
		if path == hp || strings.HasSuffix(path, hp) {
			return true
		}
	}
	return false
}
