package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "exchange",
			Name:      "completed_total",
			Help:      "Exchanges resolved, by kind and outcome.",
		},
		[]string{"channel", "kind", "outcome"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgelink",
			Subsystem: "exchange",
			Name:      "duration_seconds",
			Help:      "Time from enqueue to resolution in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel", "kind", "outcome"},
	)
	resends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "exchange",
			Name:      "resends_total",
			Help:      "Protocol-level retransmissions requested by an inbound.",
		},
		[]string{"channel"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgelink",
			Subsystem: "channel",
			Name:      "queue_depth",
			Help:      "Pending exchanges queued on a channel.",
		},
		[]string{"channel"},
	)
	transportBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgelink",
			Subsystem: "transport",
			Name:      "bytes_total",
			Help:      "Bytes moved through a transport pump.",
		},
		[]string{"channel", "direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(exchanges, exchangeDuration, resends, queueDepth, transportBytes)
	})
}

// Handler serves the default registry for the CLI harness.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordExchange(channel, kind, outcome string, duration time.Duration) {
	RegisterMetrics()
	exchanges.WithLabelValues(channel, kind, outcome).Inc()
	exchangeDuration.WithLabelValues(channel, kind, outcome).Observe(duration.Seconds())
}

func RecordResend(channel string) {
	RegisterMetrics()
	resends.WithLabelValues(channel).Inc()
}

func SetQueueDepth(channel string, depth int) {
	RegisterMetrics()
	queueDepth.WithLabelValues(channel).Set(float64(depth))
}

func RecordTransportBytes(channel, direction string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	transportBytes.WithLabelValues(channel, direction).Add(float64(n))
}
