package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/legit-games/eveauth/logging"
	"github.com/legit-games/eveauth/metrics"
)

const headerRequestID = "X-Request-ID"

// requestIDMiddleware stores the caller's X-Request-ID, or a fresh one, in the
// request context and logs one line per request.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = logging.NewRequestID()
		}
		ctx := logging.ContextWithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(headerRequestID, id)

		start := time.Now()
		c.Next()

		logging.Ctx(ctx).Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// metricsMiddleware records the duration of routed requests.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
