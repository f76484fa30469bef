// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YaganovValera/tasty-streamer/common"
	"github.com/YaganovValera/tasty-streamer/common/httpserver"
	producer "github.com/YaganovValera/tasty-streamer/common/kafka/producer"
	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/common/shutdown"
	"github.com/YaganovValera/tasty-streamer/common/telemetry"
	"github.com/YaganovValera/tasty-streamer/internal/config"
	"github.com/YaganovValera/tasty-streamer/internal/sink"
	"github.com/YaganovValera/tasty-streamer/pkg/accountstream"
	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
	"github.com/YaganovValera/tasty-streamer/pkg/event"
	"github.com/YaganovValera/tasty-streamer/pkg/quotestream"
	"github.com/YaganovValera/tasty-streamer/pkg/symbolcache"
	"github.com/YaganovValera/tasty-streamer/pkg/tastytrade"
)

// ErrSourcesEnded is returned by Run when every feed ended without a
// shutdown request. Feeds are not reconnected.
var ErrSourcesEnded = errors.New("app: event sources ended")

const closeTimeout = 10 * time.Second

// Option customises Run, mostly for tests.
type Option func(*options)

type options struct {
	newSDK func() (dxfeed.SDK, error)
	sink   sink.Sink
}

// WithSDK replaces the native market-data SDK.
func WithSDK(sdk dxfeed.SDK) Option {
	return func(o *options) { o.newSDK = func() (dxfeed.SDK, error) { return sdk, nil } }
}

// WithSink replaces the Kafka or log sink.
func WithSink(s sink.Sink) Option {
	return func(o *options) { o.sink = s }
}

// Run relays account and market events until ctx is cancelled or every
// feed ended.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) error {
	o := options{newSDK: nativeSDK}
	for _, opt := range opts {
		opt(&o)
	}

	common.InitServiceName(cfg.ServiceName)
	var closers closeStack
	defer closers.closeAll(log)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	closers.push("telemetry", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		return shutdownTracer(ctx)
	})

	out := o.sink
	if out == nil {
		out = sink.NewLog(log)
		if cfg.Kafka.Enabled() {
			prod, err := producer.New(ctx, cfg.Kafka.Config, log)
			if err != nil {
				return fmt.Errorf("kafka producer init: %w", err)
			}
			closers.push("kafka-producer", prod.Close)
			out = sink.NewKafka(prod, cfg.Kafka.QuoteTopic, cfg.Kafka.AccountTopic, log)
		}
	}

	client, err := session(ctx, cfg, log)
	if err != nil {
		return err
	}
	accounts, err := accountNumbers(ctx, client, cfg.Accounts)
	if err != nil {
		return err
	}

	stream, err := accountstream.ConnectSession(ctx, cfg.AccountStream, client, log)
	if err != nil {
		return fmt.Errorf("account stream: %w", err)
	}
	closers.push("account-stream", stream.Close)
	if err := stream.SubscribeAccounts(accounts...); err != nil {
		return fmt.Errorf("account stream subscribe: %w", err)
	}
	log.Info("account stream subscribed", zap.Strings("accounts", accounts))

	sources := []event.Source{event.FromAccountStream(stream)}
	if cfg.Quotes.Enabled {
		src, err := startQuotes(ctx, cfg, client, o, &closers, log)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}

	ready := func() error {
		select {
		case <-stream.Done():
			if err := stream.Err(); err != nil {
				return fmt.Errorf("account stream reader stopped: %w", err)
			}
			return errors.New("account stream reader stopped")
		default:
			return nil
		}
	}
	srv, err := httpserver.New(cfg.HTTP, ready, log)
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return relay(gctx, out, sources, log) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("relay stopped")
	return nil
}

func session(ctx context.Context, cfg *config.Config, log *logger.Logger) (*tastytrade.Client, error) {
	cr := cfg.Credentials
	if cr.SessionToken != "" {
		c := tastytrade.New(cfg.Tastytrade, log)
		c.SetSessionToken(cr.SessionToken)
		return c, nil
	}
	c, err := tastytrade.Login(ctx, cfg.Tastytrade, cr.Login, cr.Password, cr.RememberMe, log)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return c, nil
}

func accountNumbers(ctx context.Context, client *tastytrade.Client, configured []string) ([]string, error) {
	if len(configured) > 0 {
		return configured, nil
	}
	accounts, err := client.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, string(a.Number()))
	}
	return out, nil
}

func startQuotes(ctx context.Context, cfg *config.Config, client *tastytrade.Client, o options, closers *closeStack, log *logger.Logger) (event.Source, error) {
	sdk, err := o.newSDK()
	if err != nil {
		return nil, err
	}

	var resolver quotestream.SymbolResolver = client
	if cfg.RedisEnabled() {
		cache, err := symbolcache.New(ctx, cfg.Redis, client, log)
		if err != nil {
			return nil, err
		}
		closers.push("symbol-cache", cache.Close)
		resolver = cache
	}

	streamer, err := quotestream.ConnectWithTokens(ctx, sdk, client, log, quotestream.WithSymbolResolver(resolver))
	if err != nil {
		return nil, fmt.Errorf("quote feed: %w", err)
	}
	closers.push("quote-streamer", streamer.Close)

	sub, err := streamer.CreateSub(cfg.Quotes.Events)
	if err != nil {
		return nil, fmt.Errorf("quote subscription: %w", err)
	}
	if len(cfg.Quotes.Symbols) > 0 {
		if err := sub.AddSymbols(cfg.Quotes.Symbols...); err != nil {
			return nil, fmt.Errorf("quote symbols: %w", err)
		}
	}
	chained, err := chainInstruments(ctx, client, cfg.Quotes.OptionChains, cfg.Quotes.ChainExpirations)
	if err != nil {
		return nil, err
	}
	instruments := append(append([]quotestream.Instrument{}, cfg.Quotes.Instruments...), chained...)
	if len(instruments) > 0 {
		if err := sub.AddInstruments(ctx, instruments...); err != nil {
			return nil, fmt.Errorf("quote instruments: %w", err)
		}
	}
	log.Info("quote feed subscribed",
		zap.String("events", cfg.Quotes.Events.String()),
		zap.Int("symbols", len(cfg.Quotes.Symbols)+len(instruments)),
		zap.Strings("option_chains", cfg.Quotes.OptionChains),
	)
	return event.FromSubscription(sub), nil
}

func relay(ctx context.Context, out sink.Sink, sources []event.Source, log *logger.Logger) error {
	events, wait := event.Merge(ctx, sources...)
	for ev := range events {
		if err := out.Process(ctx, ev); err != nil {
			log.WithContext(ctx).Error("sink failed", zap.String("type", ev.Type()), zap.Error(err))
		}
	}
	if err := wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return ErrSourcesEnded
}

type closer struct {
	name string
	fn   func() error
}

// chainInstruments expands underlyings into equity option instruments of
// their nearest expirations.
func chainInstruments(ctx context.Context, client *tastytrade.Client, underlyings []string, expirations int) ([]quotestream.Instrument, error) {
	var out []quotestream.Instrument
	for _, u := range underlyings {
		chain, err := client.NestedOptionChain(ctx, tastytrade.Symbol(u))
		if err != nil {
			return nil, fmt.Errorf("quote option chain: %w", err)
		}
		for _, sym := range chain.OptionSymbols(expirations) {
			out = append(out, quotestream.Instrument{Type: tastytrade.InstrumentEquityOption, Symbol: sym})
		}
	}
	return out, nil
}

// closeStack closes resources in reverse order of creation.
type closeStack []closer

func (s *closeStack) push(name string, fn func() error) {
	*s = append(*s, closer{name: name, fn: fn})
}

// closeAll takes a pointer so a deferred call sees closers pushed later.
func (s *closeStack) closeAll(log *logger.Logger) {
	cs := *s
	for i := len(cs) - 1; i >= 0; i-- {
		shutdown.Graceful(cs[i].name, closeTimeout, shutdown.Close(cs[i].fn), log)
	}
	*s = nil
}
