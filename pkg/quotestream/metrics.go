package quotestream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metrics = struct {
	EventsDelivered *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	Subscriptions   prometheus.Gauge
	LeakedHandles   prometheus.Counter
	NativeErrors    *prometheus.CounterVec
}{
	EventsDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotestream", Name: "events_delivered_total",
		Help: "Market events queued for consumers",
	}, []string{"type"}),
	EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotestream", Name: "events_dropped_total",
		Help: "Market events dropped by the callback bridge",
	}, []string{"reason"}),
	Subscriptions: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quotestream", Name: "subscriptions_active",
		Help: "Open subscriptions",
	}),
	LeakedHandles: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quotestream", Name: "leaked_handles_total",
		Help: "Context handles kept alive after a failed native close",
	}),
	NativeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotestream", Name: "native_errors_total",
		Help: "Native SDK calls that did not succeed",
	}, []string{"call"}),
}

const (
	dropDecode   = "decode"
	dropNoHandle = "unknown_handle"
	dropClosed   = "closed"
	dropPanic    = "panic"
)
