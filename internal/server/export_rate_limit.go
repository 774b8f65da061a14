package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/smallbiznis/opspulse/internal/observability/logger"
	"go.uber.org/zap"
)

// ExportSubmitRateLimit throttles export submissions per requester. The body
// is bound with ShouldBindBodyWith so SubmitExport can bind it again. Limiter
// failures let the request through.
func (s *Server) ExportSubmitRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.exportLimiter.Enabled() {
			c.Next()
			return
		}

		var peek submitExportRequest
		// A malformed body is rejected by the handler; here it only costs the requester name.
		_ = c.ShouldBindBodyWith(&peek, binding.JSON)
		requester := requesterFromRequest(c, peek.RequestedBy)

		log := logger.FromContext(c.Request.Context()).With(zap.String("requester", requester))
		res, err := s.exportLimiter.Allow(c.Request.Context(), requester)
		switch {
		case err != nil:
			log.Warn("export rate limit check failed", zap.Error(err))
		case res != nil && !res.Allowed:
			log.Warn("export submit rate limited", zap.Duration("retry_after", res.RetryAfter))
			c.Header("Retry-After", retryAfterSeconds(res.RetryAfter))
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

// retryAfterSeconds rounds up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	return strconv.FormatInt(max(secs, 1), 10)
}
