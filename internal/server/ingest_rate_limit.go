package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IngestRateLimit throttles by the authenticated credential's tier. Runs
// after HMACRequired; a request that fails authentication never consumes a
// token.
func (s *Server) IngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		cred, ok := credentialFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		dec, err := s.limiter.Allow(c.Request.Context(), cred.ID, cred.Tier)
		if err != nil {
			s.log.Warn("ingest rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		if dec.Limit > 0 {
			resetAt := s.clk.Now().Add(dec.RetryAfter).Unix()
			c.Header("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
		}

		if !dec.Allowed {
			retryAfter := int(math.Ceil(dec.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			s.denyRequest(c, "rate_limited", ErrRateLimited)
			return
		}

		c.Next()
	}
}
