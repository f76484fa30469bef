// internal/sink/sink.go
package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/common/kafka"
	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/common/telemetry"
	"github.com/YaganovValera/tasty-streamer/pkg/accountstream"
	"github.com/YaganovValera/tasty-streamer/pkg/event"
)

var (
	metrics = struct {
		Events          *prometheus.CounterVec
		SerializeErrors prometheus.Counter
		PublishErrors   prometheus.Counter
		PublishLatency  prometheus.Histogram
	}{
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay", Name: "events_total",
			Help: "Events handed to the sink",
		}, []string{"kind"}),
		SerializeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Name: "serialize_errors_total",
			Help: "Events that could not be encoded",
		}),
		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Name: "publish_errors_total",
			Help: "Events Kafka did not accept",
		}),
		PublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay", Name: "publish_latency_seconds",
			Help:    "Kafka publish latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
	tracer = telemetry.Tracer("relay/sink")
)

// Sink consumes merged events.
type Sink interface {
	Process(ctx context.Context, ev event.TastyEvent) error
}

// Kafka publishes each event as JSON, quotes and account messages to
// separate topics.
type Kafka struct {
	producer     kafka.Producer
	quoteTopic   string
	accountTopic string
	log          *logger.Logger
}

// NewKafka returns a Kafka sink over p.
func NewKafka(p kafka.Producer, quoteTopic, accountTopic string, log *logger.Logger) *Kafka {
	return &Kafka{
		producer:     p,
		quoteTopic:   quoteTopic,
		accountTopic: accountTopic,
		log:          log.Named("kafka-sink"),
	}
}

func (k *Kafka) Process(ctx context.Context, ev event.TastyEvent) error {
	topic := k.quoteTopic
	if ev.Kind == event.KindAccount {
		topic = k.accountTopic
	}
	ctx, span := tracer.Start(ctx, "Process", trace.WithAttributes(
		attribute.String("kind", ev.Kind.String()),
		attribute.String("topic", topic),
	))
	defer span.End()
	metrics.Events.WithLabelValues(ev.Kind.String()).Inc()

	value, err := json.Marshal(ev)
	if err != nil {
		metrics.SerializeErrors.Inc()
		k.log.WithContext(ctx).Error("encode event failed", zap.String("type", ev.Type()), zap.Error(err))
		span.RecordError(err)
		return nil
	}

	start := time.Now()
	if err := k.producer.Publish(ctx, topic, Key(ev), value); err != nil {
		metrics.PublishErrors.Inc()
		span.RecordError(err)
		return err
	}
	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	return nil
}

// Key partitions quotes by symbol and account messages by account number,
// so each stays ordered within its partition.
func Key(ev event.TastyEvent) []byte {
	switch ev.Kind {
	case event.KindQuote:
		if ev.Quote != nil {
			return []byte(ev.Quote.Symbol)
		}
	case event.KindAccount:
		if m, ok := ev.Account.(*accountstream.AccountMessage); ok {
			switch {
			case m.Order != nil:
				return []byte(m.Order.AccountNumber)
			case m.AccountBalance != nil:
				return []byte(m.AccountBalance.AccountNumber)
			case m.CurrentPosition != nil:
				return []byte(m.CurrentPosition.AccountNumber)
			}
		}
	}
	return nil
}

// Log writes events to the logger; used when Kafka is not configured.
type Log struct {
	log *logger.Logger
}

// NewLog returns a logging sink.
func NewLog(log *logger.Logger) *Log { return &Log{log: log.Named("log-sink")} }

func (l *Log) Process(_ context.Context, ev event.TastyEvent) error {
	metrics.Events.WithLabelValues(ev.Kind.String()).Inc()
	l.log.Info("event", zap.String("kind", ev.Kind.String()), zap.String("type", ev.Type()), zap.Any("event", ev))
	return nil
}
