// common/kafka/producer/producer.go
package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/dnwe/otelsarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/common/backoff"
	commonkafka "github.com/YaganovValera/tasty-streamer/common/kafka"
	"github.com/YaganovValera/tasty-streamer/common/logger"
)

var serviceLabel = "unknown"

// SetServiceLabel is called once from common.InitServiceName(..).
func SetServiceLabel(name string) { serviceLabel = name }

// Connect and ping metrics carry the service label; publish metrics carry
// the topic so quote and account traffic can be told apart.
var producerMetrics = struct {
	ConnectAttempts *prometheus.CounterVec
	ConnectErrors   *prometheus.CounterVec
	Published       *prometheus.CounterVec
	PublishErrors   *prometheus.CounterVec
	PublishLatency  *prometheus.HistogramVec
	Pings           *prometheus.CounterVec
}{
	ConnectAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka_producer", Name: "connect_attempts_total",
		Help: "Producer connect attempts",
	}, []string{"service"}),
	ConnectErrors: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka_producer", Name: "connect_errors_total",
		Help: "Producer connect attempts that failed",
	}, []string{"service"}),
	Published: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka_producer", Name: "published_total",
		Help: "Records acknowledged by the brokers",
	}, []string{"service", "topic"}),
	PublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka_producer", Name: "publish_errors_total",
		Help: "Records given up on after retries",
	}, []string{"service", "topic"}),
	PublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafka_producer", Name: "publish_latency_seconds",
		Help:    "Publish latency including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "topic"}),
	Pings: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka_producer", Name: "pings_total",
		Help: "Metadata refreshes by result",
	}, []string{"service", "result"}),
}

var tracer = otel.Tracer("kafka-producer")

// Config groups the tunables of a Kafka sync producer.
// Zero values are replaced by applyDefaults().
type Config struct {
	Brokers []string `mapstructure:"brokers"`

	// RequiredAcks: "all" (default) | "leader" | "none".
	RequiredAcks string `mapstructure:"required_acks"`

	// Timeout bounds the wait for broker acks.
	Timeout time.Duration `mapstructure:"timeout"`

	// Compression: "none" (default), "gzip", "snappy", "lz4", "zstd".
	Compression string `mapstructure:"compression"`

	// Zero disables periodic / size-triggered flushing.
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
	FlushMessages  int           `mapstructure:"flush_messages"`

	// ClientID is reported to brokers; defaults to "tasty-streamer".
	ClientID string `mapstructure:"client_id"`

	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "all"
	}
	if c.Compression == "" {
		c.Compression = "none"
	}
	if c.ClientID == "" {
		c.ClientID = "tasty-streamer"
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka producer: brokers required")
	}
	return nil
}

func buildSaramaConfig(c Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	if c.ClientID != "" {
		sc.ClientID = c.ClientID
	}

	switch strings.ToLower(c.RequiredAcks) {
	case "all":
		sc.Producer.RequiredAcks = sarama.WaitForAll
	case "leader":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "none":
		sc.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("kafka producer: invalid RequiredAcks %q", c.RequiredAcks)
	}

	// Idempotence requires a single in-flight request per broker.
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Timeout = c.Timeout
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1

	if c.FlushFrequency > 0 {
		sc.Producer.Flush.Frequency = c.FlushFrequency
	}
	if c.FlushMessages > 0 {
		sc.Producer.Flush.Messages = c.FlushMessages
	}

	switch strings.ToLower(c.Compression) {
	case "none":
		sc.Producer.Compression = sarama.CompressionNone
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("kafka producer: invalid Compression %q", c.Compression)
	}

	return sc, nil
}

type kafkaProducer struct {
	prod       sarama.SyncProducer
	client     sarama.Client
	logger     *logger.Logger
	backoffCfg backoff.Config
}

// New builds a SyncProducer, retrying the initial connect with back-off.
func New(ctx context.Context, cfg Config, log *logger.Logger) (commonkafka.Producer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("kafka-producer")

	sc, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: new client: %w", err)
	}

	var syncProd sarama.SyncProducer
	connect := func(ctx context.Context) error {
		producerMetrics.ConnectAttempts.WithLabelValues(serviceLabel).Inc()
		p, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			producerMetrics.ConnectErrors.WithLabelValues(serviceLabel).Inc()
			return err
		}
		syncProd = p
		return nil
	}

	ctxConn, span := tracer.Start(ctx, "Connect",
		trace.WithAttributes(attribute.StringSlice("brokers", cfg.Brokers)))
	if err := backoff.Execute(ctxConn, "kafka.connect", cfg.Backoff, log, connect); err != nil {
		span.RecordError(err)
		span.End()
		_ = client.Close()
		log.Error("kafka producer connect failed", zap.Error(err))
		return nil, fmt.Errorf("kafka producer: connect: %w", err)
	}
	span.End()

	wrapped := otelsarama.WrapSyncProducer(sc, syncProd)

	log.Info("kafka producer ready", zap.Strings("brokers", cfg.Brokers))
	return &kafkaProducer{
		prod:       wrapped,
		client:     client,
		logger:     log,
		backoffCfg: cfg.Backoff,
	}, nil
}

// Publish sends one record, retrying transient failures.
func (k *kafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	ctxPub, span := tracer.Start(ctx, "Publish", trace.WithAttributes(attribute.String("topic", topic)))
	start := time.Now()

	send := func(ctx context.Context) error {
		msg := &sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.ByteEncoder(key),
			Value: sarama.ByteEncoder(value),
		}
		_, _, err := k.prod.SendMessage(msg)
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Execute(ctxPub, "kafka.publish", k.backoffCfg, k.logger, send)
	latency := time.Since(start)
	producerMetrics.PublishLatency.WithLabelValues(serviceLabel, topic).Observe(latency.Seconds())

	if err != nil {
		producerMetrics.PublishErrors.WithLabelValues(serviceLabel, topic).Inc()
		span.RecordError(err)
		k.logger.Error("publish failed", zap.String("topic", topic), zap.Error(err))
		span.End()
		return err
	}

	producerMetrics.Published.WithLabelValues(serviceLabel, topic).Inc()
	k.logger.Debug("publish succeeded",
		zap.String("topic", topic),
		zap.Float64("latency_s", latency.Seconds()),
	)
	span.End()
	return nil
}

// Ping refreshes client metadata to check cluster reachability.
func (k *kafkaProducer) Ping(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Ping")
	var err error
	if k.client == nil {
		err = fmt.Errorf("kafka producer: no client")
	} else {
		err = k.client.RefreshMetadata()
	}
	if err != nil {
		producerMetrics.Pings.WithLabelValues(serviceLabel, "error").Inc()
		span.RecordError(err)
	} else {
		producerMetrics.Pings.WithLabelValues(serviceLabel, "ok").Inc()
	}
	span.End()
	return err
}

// Close shuts down the producer, then the client.
func (k *kafkaProducer) Close() error {
	if err := k.prod.Close(); err != nil {
		k.logger.Error("producer close failed", zap.Error(err))
		return err
	}
	if k.client == nil {
		return nil
	}
	if err := k.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
		k.logger.Error("client close failed", zap.Error(err))
		return err
	}
	k.logger.Info("kafka producer closed")
	return nil
}

// isPermanent reports errors that retrying cannot fix.
func isPermanent(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, sarama.ErrMessageSizeTooLarge),
		errors.Is(err, sarama.ErrInvalidMessage),
		errors.Is(err, sarama.ErrClosedClient):
		return true
	}
	var pe *sarama.ProducerError
	if errors.As(err, &pe) {
		return isPermanent(pe.Err)
	}
	return false
}
