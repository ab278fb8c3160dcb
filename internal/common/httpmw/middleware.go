// Package httpmw provides shared gin middleware for the router and
// agent-runtime HTTP servers.
package httpmw

import (
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/OutfinityResearch/ploinky-sub006/internal/common/errors"
	"github.com/OutfinityResearch/ploinky-sub006/internal/common/logger"
)

// RequestLogger logs all incoming requests with a generated request ID.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		duration := time.Since(start)
		log.Info("request completed",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("request_id", requestID),
		)
	}
}

// ErrorHandler turns *errors.AppError values attached via c.Error into
// JSON responses. It does not touch JSON-RPC bodies written directly by
// MCP handlers — those bypass gin's error chain entirely.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			log.Error("request error",
				zap.String("code", appErr.Code),
				zap.String("message", appErr.Message),
				zap.Int("status", appErr.HTTPStatus),
			)
			c.JSON(appErr.HTTPStatus, gin.H{
				"error": gin.H{"code": appErr.Code, "message": appErr.Message},
			})
			return
		}

		log.Error("internal server error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": errors.ErrCodeInternalError, "message": "an internal server error occurred"},
		})
	}
}

// Recovery recovers from panics in handlers and logs them.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"code": errors.ErrCodeInternalError, "message": "an internal server error occurred"},
				})
			}
		}()
		c.Next()
	}
}

// CORS adds permissive CORS headers for cross-origin MCP clients.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, Mcp-Session-Id, Mcp-Protocol-Version, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "Mcp-Session-Id, Mcp-Protocol-Version, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// BodyLimit caps request bodies at limitBytes: reading past the limit
// fails, so a handler that binds the body rejects it with its own error
// (400 invalid_json on the MCP endpoints). No 413 is written. The source this system is modeled on documented a 10 MB limit but
// never enforced it; this middleware is the fix (spec Open Question 2).
func BodyLimit(limitBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limitBytes <= 0 {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limitBytes)
		c.Next()
	}
}

// RateLimit provides a single global token-bucket rate limiter. Adequate
// for a single-process router; a distributed limiter would be needed
// for multi-instance deployments, which are out of scope.
func RateLimit(requestsPerSecond int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		tokens   = float64(requestsPerSecond)
		lastTime = time.Now()
	)

	return func(c *gin.Context) {
		mu.Lock()

		now := time.Now()
		elapsed := now.Sub(lastTime).Seconds()
		lastTime = now

		tokens += elapsed * float64(requestsPerSecond)
		if tokens > float64(requestsPerSecond) {
			tokens = float64(requestsPerSecond)
		}

		if tokens < 1 {
			mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"code": "RATE_LIMIT_EXCEEDED", "message": "too many requests, please try again later"},
			})
			return
		}

		tokens--
		mu.Unlock()

		c.Next()
	}
}
