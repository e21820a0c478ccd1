package subscription

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sjtudigest"

const (
	resultOK            = "ok"
	resultError         = "error"
	resultNotConfigured = "not_configured"
)

var (
	rpcCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total remote procedure calls by result",
		},
		[]string{"procedure", "result"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "Remote procedure call latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"procedure"},
	)
)

// recordRPC records a call outcome. Calls that never reached a backend
// are counted but not timed.
func recordRPC(procedure, result string, d time.Duration) {
	rpcCalls.WithLabelValues(procedure, result).Inc()
	if result != resultNotConfigured {
		rpcDuration.WithLabelValues(procedure).Observe(d.Seconds())
	}
}
