package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AccessLog records every admin request in the HTTP metrics and logs it
// on logger. Requests to quiet paths (probes, scrapes) are counted but
// only logged when they fail.
func AccessLog(logger zerolog.Logger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, route, status, elapsed)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			if _, ok := skip[c.Request.URL.Path]; ok {
				return
			}
			event = logger.Debug()
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("admin request")
	}
}
