package middleware

import (
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aimd54/calculus-api/internal/clock"
	prommetrics "github.com/aimd54/calculus-api/internal/metrics"
	"github.com/aimd54/calculus-api/pkg/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	offsetKey       = "tz_offset"

	// OffsetHeader carries the client's timezone offset in minutes east of UTC.
	OffsetHeader = "X-User-Tz-Offset"
)

// CORS allows credentialed requests from the configured origins.
func CORS(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader, OffsetHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// RequestID propagates the incoming request id or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Timezone parses the client offset once per request from the header or the tz_offset
// query parameter. A malformed value falls back to the server's local date.
func Timezone() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(OffsetHeader)
		if raw == "" {
			raw = c.Query("tz_offset")
		}
		c.Set(offsetKey, clock.ParseOffset(raw))
		c.Next()
	}
}

// Offset returns the request's timezone offset.
func Offset(c *gin.Context) clock.Offset {
	if v, ok := c.Get(offsetKey); ok {
		if offset, ok := v.(clock.Offset); ok {
			return offset
		}
	}
	return clock.Offset{}
}

// RequestLogger writes one access log line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()

		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetString(requestIDKey)).
			Uint("user_id", UserID(c)).
			Msg("HTTP request")
	}
}

// Metrics observes request latency by route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		prommetrics.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
