package remote

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watt_client",
		Subsystem: "remote",
		Name:      "requests_total",
		Help:      "Remote repository calls by operation and outcome.",
	}, []string{"op", "outcome"})

	requestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watt_client",
		Subsystem: "remote",
		Name:      "request_seconds",
		Help:      "Latency of remote repository calls that reached the transport.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)

func observe(op string, kind Kind, started time.Time) {
	requestsTotal.WithLabelValues(op, kind.String()).Inc()
	if !started.IsZero() {
		requestSeconds.WithLabelValues(op).Observe(time.Since(started).Seconds())
	}
}
