package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// NewRouter builds the bridge's HTTP surface: the host websocket at "/",
// health, metrics and debug routes. history may be nil.
func NewRouter(connector Connector, status BridgeStatus, history WebviewHistory) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	NewWebSocketHandler(connector).RegisterRoutes(r)
	NewDebugHandler(status, history).RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// requestLogger logs requests through zerolog; stdout carries only the
// startup handshake.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
