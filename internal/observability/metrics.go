package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offersctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "offersctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	decodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offersctl",
			Subsystem: "onionmsg",
			Name:      "decodes_total",
			Help:      "Offers payload decodes by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	decodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "offersctl",
			Subsystem: "onionmsg",
			Name:      "decode_duration_seconds",
			Help:      "Offers payload decode duration in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"kind"},
	)
	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offersctl",
			Subsystem: "onionmsg",
			Name:      "replies_total",
			Help:      "Replies produced by the offers handler.",
		},
		[]string{"kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, decodeTotal, decodeDuration, repliesTotal)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordDecode(kind, outcome string, duration time.Duration) {
	RegisterMetrics()
	decodeTotal.WithLabelValues(kind, outcome).Inc()
	if duration > 0 {
		decodeDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

func RecordReply(kind string) {
	RegisterMetrics()
	repliesTotal.WithLabelValues(kind).Inc()
}

// DecodeObserver feeds dispatcher events into the process metrics.
type DecodeObserver struct{}

func (DecodeObserver) ObserveDecode(kind, outcome string, elapsed time.Duration) {
	RecordDecode(kind, outcome, elapsed)
}

func (DecodeObserver) ObserveReply(kind string) {
	RecordReply(kind)
}
