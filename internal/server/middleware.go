package server

import (
	"strconv"
	"time"

	"auction-house/internal/metrics"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if userID, ok := utils.UserID(c); ok {
		fields["user_id"] = userID
	}
	utils.Info("HTTP Request", fields)
}

// MetricsMiddleware records request counts and latency by route template, so
// /auctions/:id is one series however many auctions exist.
func MetricsMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	status := strconv.Itoa(c.Writer.Status())
	metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
}
