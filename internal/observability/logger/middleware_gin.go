package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/opspulse/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ExportJobIDKey is the gin context key handlers set so the request log
// names the export job it created or read.
const ExportJobIDKey = "export_job_id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns a request id, attributes the request to an actor and
// writes one http_request entry when the handler returns.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		if actor := strings.TrimSpace(c.GetHeader("X-Actor")); actor != "" {
			ctx = obscontext.WithActor(ctx, "user", actor)
		} else {
			ctx = obscontext.WithActor(ctx, "api", c.ClientIP())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
			fields = append(fields, zap.String("idempotency_key", key))
		}
		if jobID := c.GetString(ExportJobIDKey); jobID != "" {
			fields = append(fields, zap.String(ExportJobIDKey, jobID))
		}

		var errorType string
		if lastErr := c.Errors.Last(); lastErr != nil {
			var errorCode string
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		if ce := FromContext(c.Request.Context()).Check(requestLevel(route, status, errorType), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestIDFor(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header("X-Request-Id", requestID)
	return requestID
}

// requestLevel keeps probes and the alert stream out of info logs.
func requestLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest && errorType == "validation_error":
		return zapcore.WarnLevel
	case status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	case route == "/api/alerts/stream":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
