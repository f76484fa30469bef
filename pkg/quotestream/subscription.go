package quotestream

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
	"github.com/YaganovValera/tasty-streamer/pkg/tastytrade"
	"github.com/YaganovValera/tasty-streamer/pkg/unbounded"
)

type subState int

const (
	stateOpen subState = iota
	stateClosing
	stateFreed
)

func (s subState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	default:
		return "freed"
	}
}

// Instrument is a brokerage instrument to be translated into a feed symbol.
type Instrument struct {
	Type   tastytrade.InstrumentType `mapstructure:"type"`
	Symbol tastytrade.Symbol         `mapstructure:"symbol"`
}

// UnmarshalText parses "<instrument type>:<symbol>", e.g.
// "Equity Option:AAPL  241220C00150000". Spaces inside the symbol are kept.
func (i *Instrument) UnmarshalText(text []byte) error {
	typ, sym, ok := strings.Cut(string(text), ":")
	typ = strings.TrimSpace(typ)
	if !ok || typ == "" || sym == "" {
		return fmt.Errorf("quotestream: instrument %q is not <type>:<symbol>", text)
	}
	*i = Instrument{Type: tastytrade.InstrumentType(typ), Symbol: tastytrade.Symbol(sym)}
	return nil
}

func (i Instrument) String() string { return string(i.Type) + ":" + string(i.Symbol) }

// Subscription is one event-type filter plus symbol set and its queue.
//
// Teardown runs Open → Closing → Freed. The context handle is released only
// after the native close succeeded; if the close fails or panics the state
// stays Closing and the handle is kept until the Streamer closes.
type Subscription struct {
	id       SubscriptionID
	flags    dxfeed.EventType
	streamer *Streamer
	events   *unbounded.Chan[*dxfeed.Event]

	mu        sync.Mutex
	state     subState
	native    dxfeed.SubscriptionHandle
	ctxHandle uintptr
	closeErr  error
}

func (s *Subscription) ID() SubscriptionID      { return s.id }
func (s *Subscription) Flags() dxfeed.EventType { return s.flags }

// AddSymbols subscribes feed symbols such as "SPX" or ".SPY241220C500".
func (s *Subscription) AddSymbols(symbols ...string) error {
	if len(symbols) == 0 {
		return nil
	}
	wide, err := dxfeed.ToWideStrings(symbols)
	if err != nil {
		return fmt.Errorf("quotestream: add symbols: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return ErrSubscriptionClosed
	}
	if err := guard("dxf_add_symbols", func() error { return s.streamer.sdk.AddSymbols(s.native, wide) }); err != nil {
		return fmt.Errorf("quotestream: add symbols to %d: %w", s.id, err)
	}
	s.streamer.log.Debug("symbols added", zap.Uint64("id", uint64(s.id)), zap.Strings("symbols", symbols))
	return nil
}

// AddInstruments resolves brokerage symbols through the Streamer's
// SymbolResolver and subscribes the results. Nothing is added if any
// instrument fails to resolve.
func (s *Subscription) AddInstruments(ctx context.Context, instruments ...Instrument) error {
	r := s.streamer.resolver
	if r == nil {
		return ErrNoResolver
	}
	symbols := make([]string, 0, len(instruments))
	for _, in := range instruments {
		sym, err := r.StreamerSymbol(ctx, in.Type, in.Symbol)
		if err != nil {
			return fmt.Errorf("quotestream: resolve %s %q: %w", in.Type, in.Symbol, err)
		}
		symbols = append(symbols, sym)
	}
	return s.AddSymbols(symbols...)
}

// Event blocks until the next event arrives, the subscription is closed
// (ErrClosed), or ctx is done.
func (s *Subscription) Event(ctx context.Context) (*dxfeed.Event, error) {
	return s.events.Recv(ctx)
}

// Pending reports queued, unconsumed events.
func (s *Subscription) Pending() int { return s.events.Len() }

// Close removes the subscription from its Streamer and tears it down.
func (s *Subscription) Close() error {
	s.streamer.detach(s.id, s)
	return s.teardown()
}

func (s *Subscription) teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateFreed:
		return nil
	case stateClosing:
		return s.closeErr
	}
	s.state = stateClosing

	err := guard("dxf_close_subscription", func() error { return s.streamer.sdk.CloseSubscription(s.native) })
	if err != nil {
		s.closeErr = fmt.Errorf("quotestream: close subscription %d: %w", s.id, err)
		s.streamer.leak(s.ctxHandle)
		s.events.CloseWithError(s.closeErr)
		s.events.Purge()
		metrics.Subscriptions.Dec()
		s.streamer.log.Error("close subscription failed, context handle kept",
			zap.Uint64("id", uint64(s.id)), zap.Error(err))
		return s.closeErr
	}

	// The SDK no longer calls back for this subscription.
	s.native = 0
	s.streamer.handles.release(s.ctxHandle)
	s.ctxHandle = 0
	s.events.Close()
	s.events.Purge()
	s.state = stateFreed
	metrics.Subscriptions.Dec()
	s.streamer.log.Debug("subscription closed", zap.Uint64("id", uint64(s.id)))
	return nil
}
