package server

import (
	"net/http"

	"auction-house/internal/metrics"
	"auction-house/internal/ratelimit"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

// RateLimits holds the limiter for every request and the stricter one for
// credential endpoints. A nil limiter disables that tier.
type RateLimits struct {
	General   ratelimit.Limiter
	Sensitive ratelimit.Limiter
}

// RateLimitMiddleware rejects clients that are over l's budget with 429. Limiter
// failures let the request through.
func RateLimitMiddleware(tier string, l ratelimit.Limiter) gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		ok, err := l.Allow(c.Request.Context(), ip)
		if err != nil {
			utils.Warn("rate limiter unavailable", map[string]any{"tier": tier, "error": err.Error()})
			c.Next()
			return
		}
		if !ok {
			metrics.RateLimitedTotal.WithLabelValues(tier).Inc()
			utils.Warn("rate limit exceeded", map[string]any{"tier": tier, "ip": ip, "path": c.Request.URL.Path})
			utils.AbortWithError(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		c.Next()
	}
}
