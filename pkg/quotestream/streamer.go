// Package quotestream manages one native market-data connection and its
// subscriptions, bridging SDK callbacks into per-subscription queues.
package quotestream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
	"github.com/YaganovValera/tasty-streamer/pkg/tastytrade"
	"github.com/YaganovValera/tasty-streamer/pkg/unbounded"
)

var tracer = otel.Tracer("quotestream")

// SubscriptionID identifies a Subscription within one Streamer. Ids start at
// 0 and strictly increase.
type SubscriptionID uint64

// TokenSource supplies the feed bootstrap; *tastytrade.Client implements it.
type TokenSource interface {
	QuoteStreamerTokens(ctx context.Context) (tastytrade.QuoteStreamerTokens, error)
}

// SymbolResolver translates brokerage symbols; *tastytrade.Client and
// *symbolcache.Resolver implement it.
type SymbolResolver interface {
	StreamerSymbol(ctx context.Context, typ tastytrade.InstrumentType, symbol tastytrade.Symbol) (string, error)
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithSymbolResolver enables Subscription.AddInstruments.
func WithSymbolResolver(r SymbolResolver) Option {
	return func(s *Streamer) { s.resolver = r }
}

// Streamer owns a native connection and the registry of its subscriptions.
type Streamer struct {
	sdk      dxfeed.SDK
	host     string
	log      *logger.Logger
	resolver SymbolResolver
	handles  handleTable

	closeMu sync.Mutex // serializes Close

	mu     sync.RWMutex
	conn   dxfeed.ConnectionHandle
	subs   map[SubscriptionID]*Subscription
	nextID SubscriptionID
	closed bool
	leaked []uintptr
}

// Connect opens an authenticated native connection to host.
func Connect(ctx context.Context, sdk dxfeed.SDK, host, token string, log *logger.Logger, opts ...Option) (*Streamer, error) {
	_, span := tracer.Start(ctx, "Connect", trace.WithAttributes(attribute.String("host", host)))
	defer span.End()

	s := &Streamer{
		sdk:  sdk,
		host: host,
		log:  log.Named("quote-streamer").With(zap.String("host", host)),
		subs: make(map[SubscriptionID]*Subscription),
	}
	for _, o := range opts {
		o(s)
	}

	var conn dxfeed.ConnectionHandle
	err := guard("dxf_create_connection_auth_bearer", func() (err error) {
		conn, err = sdk.CreateConnection(host, token, s.onTermination, s.onStatus)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("quotestream: connect %s: %w", host, err)
	}
	s.conn = conn
	s.log.Info("connected")
	return s, nil
}

// ConnectWithTokens fetches host and token from src, then connects.
func ConnectWithTokens(ctx context.Context, sdk dxfeed.SDK, src TokenSource, log *logger.Logger, opts ...Option) (*Streamer, error) {
	tokens, err := src.QuoteStreamerTokens(ctx)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, sdk, tokens.StreamerURL, tokens.Token, log, opts...)
}

// Host returns the feed address.
func (s *Streamer) Host() string { return s.host }

// CreateSub opens a subscription for the given event kinds. On failure every
// partial step is undone in reverse order.
func (s *Streamer) CreateSub(flags dxfeed.EventType) (*Subscription, error) {
	if flags == 0 {
		return nil, fmt.Errorf("quotestream: create subscription: no event types")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStreamerClosed
	}

	events := unbounded.New[*dxfeed.Event]()
	ctxHandle := s.handles.register(events)

	var native dxfeed.SubscriptionHandle
	err := guard("dxf_create_subscription", func() (err error) {
		native, err = s.sdk.CreateSubscription(s.conn, flags)
		return err
	})
	if err != nil {
		s.handles.release(ctxHandle)
		events.Close()
		return nil, fmt.Errorf("quotestream: create subscription %s: %w", flags, err)
	}

	err = guard("dxf_attach_event_listener", func() error {
		return s.sdk.AttachEventListener(native, s.onEvent, ctxHandle)
	})
	if err != nil {
		if cerr := guard("dxf_close_subscription", func() error { return s.sdk.CloseSubscription(native) }); cerr != nil {
			s.leakLocked(ctxHandle)
			err = errors.Join(err, cerr)
		} else {
			s.handles.release(ctxHandle)
		}
		events.Close()
		return nil, fmt.Errorf("quotestream: attach listener %s: %w", flags, err)
	}

	id := s.nextID
	s.nextID++
	sub := &Subscription{
		id:        id,
		flags:     flags,
		streamer:  s,
		native:    native,
		ctxHandle: ctxHandle,
		events:    events,
	}
	s.subs[id] = sub
	metrics.Subscriptions.Inc()
	s.log.Debug("subscription created", zap.Uint64("id", uint64(id)), zap.Stringer("flags", flags))
	return sub, nil
}

// GetSub returns the open subscription with id.
func (s *Streamer) GetSub(id SubscriptionID) (*Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	return sub, ok
}

// Subscriptions returns the ids of open subscriptions in ascending order.
func (s *Streamer) Subscriptions() []SubscriptionID {
	s.mu.RLock()
	ids := make([]SubscriptionID, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CloseSub removes and tears down one subscription. Outstanding references
// to it become invalid.
func (s *Streamer) CloseSub(id SubscriptionID) error {
	s.mu.Lock()
	sub, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if !ok {
		return ErrSubscriptionNotFound
	}
	return sub.teardown()
}

// Close tears down every subscription, then the native connection, then
// releases context handles kept alive by failed subscription closes.
// After a failed connection close, a later Close retries it.
func (s *Streamer) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		conn := s.conn
		s.mu.Unlock()
		if conn == 0 {
			return nil
		}
		_, err := s.closeConnection(conn)
		return err
	}
	s.closed = true
	conn := s.conn
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[SubscriptionID]*Subscription)
	s.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.teardown(); err != nil {
			errs = append(errs, err)
		}
	}

	released, err := s.closeConnection(conn)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	s.log.Info("disconnected", zap.Int("subscriptions", len(subs)), zap.Int("released_leaked", released))
	return errors.Join(errs...)
}

// closeConnection closes conn and, on success, releases leaked handles.
// On failure conn stays recorded so Close can retry.
func (s *Streamer) closeConnection(conn dxfeed.ConnectionHandle) (int, error) {
	err := guard("dxf_close_connection", func() error { return s.sdk.CloseConnection(conn) })
	if err != nil {
		s.log.Error("close connection failed, keeping leaked handles", zap.Error(err))
		return 0, fmt.Errorf("quotestream: close connection: %w", err)
	}

	// Native subscriptions die with the connection, so no callback can
	// reach a leaked handle any more.
	s.mu.Lock()
	s.conn = 0
	leaked := s.leaked
	s.leaked = nil
	s.mu.Unlock()
	for _, h := range leaked {
		s.handles.release(h)
	}
	return len(leaked), nil
}

// detach drops sub from the registry if it is still registered under id.
func (s *Streamer) detach(id SubscriptionID, sub *Subscription) {
	s.mu.Lock()
	if cur, ok := s.subs[id]; ok && cur == sub {
		delete(s.subs, id)
	}
	s.mu.Unlock()
}

func (s *Streamer) leak(h uintptr) {
	s.mu.Lock()
	s.leakLocked(h)
	s.mu.Unlock()
}

func (s *Streamer) leakLocked(h uintptr) {
	s.leaked = append(s.leaked, h)
	metrics.LeakedHandles.Inc()
}
