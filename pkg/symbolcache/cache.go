// Package symbolcache caches brokerage → vendor symbol translations in Redis.
package symbolcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/common/backoff"
	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/common/telemetry"
	"github.com/YaganovValera/tasty-streamer/pkg/tastytrade"
)

var (
	metrics = struct {
		Lookups *prometheus.CounterVec
		Errors  *prometheus.CounterVec
		Latency prometheus.Histogram
	}{
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symbolcache", Name: "lookups_total",
			Help: "Symbol lookups by result",
		}, []string{"result"}),
		Errors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "symbolcache", Name: "redis_errors_total",
			Help: "Failed Redis operations",
		}, []string{"op"}),
		Latency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "symbolcache", Name: "redis_latency_seconds",
			Help:    "Latency of Redis operations",
			Buckets: prometheus.DefBuckets,
		}),
	}
	tracer = telemetry.Tracer("symbolcache")
)

// ErrNotFound is returned by Lookup when the key is absent.
var ErrNotFound = errors.New("symbolcache: key not found")

// Upstream performs the uncached translation. *tastytrade.Client
// implements it.
type Upstream interface {
	StreamerSymbol(ctx context.Context, typ tastytrade.InstrumentType, symbol tastytrade.Symbol) (string, error)
}

// Config holds the Redis connection settings.
type Config struct {
	Addr      string         `mapstructure:"addr"`
	Password  string         `mapstructure:"password" json:"-"`
	DB        int            `mapstructure:"db"`
	KeyPrefix string         `mapstructure:"key_prefix"`
	TTL       time.Duration  `mapstructure:"ttl"`
	Backoff   backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "tasty-streamer:symbol:"
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.Backoff.MaxRetries == 0 {
		c.Backoff.MaxRetries = 5
	}
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("symbolcache: addr required")
	}
	return nil
}

// Resolver answers StreamerSymbol from Redis and falls back to the
// upstream on a miss. A failing Redis degrades to upstream-only lookups.
type Resolver struct {
	client   *redis.Client
	upstream Upstream
	prefix   string
	ttl      time.Duration
	log      *logger.Logger
}

// New connects to Redis, retrying the initial ping with back-off.
func New(ctx context.Context, cfg Config, upstream Upstream, log *logger.Logger) (*Resolver, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("symbolcache")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctxConn, span := tracer.Start(ctx, "Connect", trace.WithAttributes(attribute.String("addr", cfg.Addr)))
	err := backoff.Execute(ctxConn, "redis.ping", cfg.Backoff, log, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		span.End()
		_ = client.Close()
		return nil, fmt.Errorf("symbolcache: connect: %w", err)
	}
	span.End()
	log.Info("redis connected", zap.String("addr", cfg.Addr))

	return &Resolver{
		client:   client,
		upstream: upstream,
		prefix:   cfg.KeyPrefix,
		ttl:      cfg.TTL,
		log:      log,
	}, nil
}

func (r *Resolver) key(typ tastytrade.InstrumentType, symbol tastytrade.Symbol) string {
	return r.prefix + string(typ) + ":" + string(symbol)
}

// StreamerSymbol returns the cached translation or asks the upstream and
// stores its answer. Upstream errors are never cached.
func (r *Resolver) StreamerSymbol(ctx context.Context, typ tastytrade.InstrumentType, symbol tastytrade.Symbol) (string, error) {
	ctx, span := tracer.Start(ctx, "StreamerSymbol", trace.WithAttributes(
		attribute.String("instrument_type", string(typ)),
		attribute.String("symbol", string(symbol)),
	))
	defer span.End()

	if !typ.Streamable() {
		return "", fmt.Errorf("%w: %q", tastytrade.ErrUnsupportedInstrument, typ)
	}

	cached, err := r.Lookup(ctx, typ, symbol)
	switch {
	case err == nil:
		metrics.Lookups.WithLabelValues("hit").Inc()
		return cached, nil
	case errors.Is(err, ErrNotFound):
		metrics.Lookups.WithLabelValues("miss").Inc()
	default:
		metrics.Lookups.WithLabelValues("error").Inc()
		r.log.WithContext(ctx).Warn("cache lookup failed, using upstream",
			zap.String("symbol", string(symbol)), zap.Error(err))
	}

	resolved, err := r.upstream.StreamerSymbol(ctx, typ, symbol)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream failed")
		return "", err
	}

	if err := r.Store(ctx, typ, symbol, resolved); err != nil {
		r.log.WithContext(ctx).Warn("cache store failed",
			zap.String("symbol", string(symbol)), zap.Error(err))
	}
	return resolved, nil
}

// Lookup reads one cached translation. It returns ErrNotFound on a miss.
func (r *Resolver) Lookup(ctx context.Context, typ tastytrade.InstrumentType, symbol tastytrade.Symbol) (string, error) {
	start := time.Now()
	val, err := r.client.Get(ctx, r.key(typ, symbol)).Result()
	metrics.Latency.Observe(time.Since(start).Seconds())
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		metrics.Errors.WithLabelValues("get").Inc()
		return "", fmt.Errorf("symbolcache: get: %w", err)
	}
	return val, nil
}

// Store writes one translation with the configured TTL.
func (r *Resolver) Store(ctx context.Context, typ tastytrade.InstrumentType, symbol tastytrade.Symbol, streamerSymbol string) error {
	start := time.Now()
	err := r.client.Set(ctx, r.key(typ, symbol), streamerSymbol, r.ttl).Err()
	metrics.Latency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Errors.WithLabelValues("set").Inc()
		return fmt.Errorf("symbolcache: set: %w", err)
	}
	return nil
}

// Invalidate drops one cached translation.
func (r *Resolver) Invalidate(ctx context.Context, typ tastytrade.InstrumentType, symbol tastytrade.Symbol) error {
	if err := r.client.Del(ctx, r.key(typ, symbol)).Err(); err != nil {
		metrics.Errors.WithLabelValues("del").Inc()
		return fmt.Errorf("symbolcache: del: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *Resolver) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (r *Resolver) Close() error {
	return r.client.Close()
}
