package accountstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metrics = struct {
	FramesReceived *prometheus.CounterVec
	FramesSent     *prometheus.CounterVec
	DecodeErrors   prometheus.Counter
	Connected      prometheus.Gauge
}{
	FramesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "accountstream", Name: "frames_received_total",
		Help: "Decoded inbound frames by kind",
	}, []string{"kind"}),
	FramesSent: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "accountstream", Name: "frames_sent_total",
		Help: "Outbound frames written by action",
	}, []string{"action"}),
	DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "accountstream", Name: "decode_errors_total",
		Help: "Inbound frames that terminated the reader",
	}),
	Connected: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "accountstream", Name: "connected",
		Help: "Open account streams",
	}),
}
