package tastytrade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var metrics = struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}{
	Requests: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tastytrade", Subsystem: "rest", Name: "requests_total",
		Help: "REST requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"}),
	Latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tastytrade", Subsystem: "rest", Name: "request_duration_seconds",
		Help:    "REST request latency including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"}),
}

var tracer = otel.Tracer("tastytrade")
