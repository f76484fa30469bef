// Package event merges the account feed and the market-data feed into one
// stream of TastyEvent values.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/YaganovValera/tasty-streamer/pkg/accountstream"
	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
	"github.com/YaganovValera/tasty-streamer/pkg/unbounded"
)

// Kind tells which feed produced a TastyEvent.
type Kind uint8

const (
	KindQuote Kind = iota + 1
	KindAccount
)

func (k Kind) String() string {
	switch k {
	case KindQuote:
		return "quote"
	case KindAccount:
		return "account"
	}
	return "unknown"
}

// TastyEvent is either a market event (Quote) or an account message
// (Account), selected by Kind.
type TastyEvent struct {
	Kind    Kind
	Quote   *dxfeed.Event
	Account accountstream.Message
}

// QuoteFeed wraps a market event.
func QuoteFeed(ev *dxfeed.Event) TastyEvent {
	return TastyEvent{Kind: KindQuote, Quote: ev}
}

// AccountFeed wraps an account message.
func AccountFeed(msg accountstream.Message) TastyEvent {
	return TastyEvent{Kind: KindAccount, Account: msg}
}

// Type is a finer label than Kind: the market event type or the account
// message kind.
func (e TastyEvent) Type() string {
	switch e.Kind {
	case KindQuote:
		if e.Quote != nil {
			return e.Quote.Type().String()
		}
	case KindAccount:
		if e.Account != nil {
			return e.Account.Kind()
		}
	}
	return "unknown"
}

type wireEvent struct {
	Kind    string        `json:"kind"`
	Type    string        `json:"type"`
	Quote   *dxfeed.Event `json:"quote,omitempty"`
	Account any           `json:"account,omitempty"`
}

// MarshalJSON encodes the event as {"kind","type","quote"|"account"}.
func (e TastyEvent) MarshalJSON() ([]byte, error) {
	w := wireEvent{Kind: e.Kind.String(), Type: e.Type(), Quote: e.Quote}
	if e.Account != nil {
		w.Account = e.Account
	}
	return json.Marshal(w)
}

// Source yields TastyEvents until it returns an error. ErrClosed marks a
// clean end.
type Source interface {
	Next(ctx context.Context) (TastyEvent, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (TastyEvent, error)

func (f SourceFunc) Next(ctx context.Context) (TastyEvent, error) { return f(ctx) }

// ErrClosed is the clean end-of-stream error shared by both feeds.
var ErrClosed = unbounded.ErrClosed

// AccountEvents is the receive side of *accountstream.Stream.
type AccountEvents interface {
	Event(ctx context.Context) (accountstream.Message, error)
}

// QuoteEvents is the receive side of *quotestream.Subscription.
type QuoteEvents interface {
	Event(ctx context.Context) (*dxfeed.Event, error)
}

// FromAccountStream adapts an account stream.
func FromAccountStream(s AccountEvents) Source {
	return SourceFunc(func(ctx context.Context) (TastyEvent, error) {
		msg, err := s.Event(ctx)
		if err != nil {
			return TastyEvent{}, err
		}
		return AccountFeed(msg), nil
	})
}

// FromSubscription adapts a market-data subscription.
func FromSubscription(sub QuoteEvents) Source {
	return SourceFunc(func(ctx context.Context) (TastyEvent, error) {
		ev, err := sub.Event(ctx)
		if err != nil {
			return TastyEvent{}, err
		}
		return QuoteFeed(ev), nil
	})
}

// Merge fans sources into one channel. Each source's order is kept; there
// is no order across sources. The channel closes once every source ended
// or ctx is done. The returned wait func blocks until then and reports the
// joined terminal errors; clean ends and ctx cancellation are not errors.
func Merge(ctx context.Context, sources ...Source) (<-chan TastyEvent, func() error) {
	out := make(chan TastyEvent)
	done := make(chan struct{})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			if err := pump(ctx, src, out); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("event: source %d: %w", i, err))
				mu.Unlock()
			}
		}(i, src)
	}
	go func() {
		wg.Wait()
		close(out)
		close(done)
	}()

	return out, func() error {
		<-done
		mu.Lock()
		defer mu.Unlock()
		return errors.Join(errs...)
	}
}

func pump(ctx context.Context, src Source, out chan<- TastyEvent) error {
	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}
