package logs

import (
	"time"

	"github.com/gin-gonic/gin"
)

const contextKeyHijacked = "connection_hijacked"

// MarkHijacked tells GinLogger that the handler took over the connection,
// as websocket upgrades do. The response writer must not be touched after.
func MarkHijacked(c *gin.Context) {
	c.Set(contextKeyHijacked, true)
}

func isHijacked(c *gin.Context) bool {
	v, ok := c.Get(contextKeyHijacked)
	return ok && v.(bool)
}

// GinLogger returns a gin middleware that logs requests.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if isHijacked(c) {
			Info().Str("path", path).Str("ip", c.ClientIP()).Msg("upgraded")
			return
		}

		status := c.Writer.Status()
		event := Info()
		if status >= 500 {
			event = Error()
		} else if status >= 400 {
			event = Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}
