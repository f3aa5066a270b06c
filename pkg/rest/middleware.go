package rest

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "watt_server",
	Name:      "http_requests_total",
	Help:      "Requests served by route and status.",
}, []string{"method", "route", "status"})

func instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// requestLogger logs one line per request, keyed by the caller's
// X-Request-ID when it sent one.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		started := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(started),
			"request_id": requestID,
		})
		if c.Writer.Status() >= 500 {
			entry.Error("request served")
			return
		}
		entry.Debug("request served")
	}
}
