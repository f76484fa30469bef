package quotestream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed/dxfeedtest"
	"github.com/YaganovValera/tasty-streamer/pkg/tastytrade"
)

func newStreamer(t *testing.T, opts ...Option) (*Streamer, *dxfeedtest.SDK) {
	t.Helper()
	sdk := dxfeedtest.New()
	s, err := Connect(context.Background(), sdk, "tasty.dxfeed.com:7301", "dx-token", logger.Nop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, sdk
}

func recvWithin(t *testing.T, sub *Subscription) (*dxfeed.Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return sub.Event(ctx)
}

func TestEndToEndQuote(t *testing.T) {
	s, sdk := newStreamer(t)

	sub, err := s.CreateSub(dxfeed.EventQuote)
	require.NoError(t, err)
	require.NoError(t, sub.AddSymbols("SPX"))
	assert.Equal(t, []string{"SPX"}, sdk.Symbols(sub.native))

	require.True(t, sdk.Emit(sub.native, "SPX", dxfeed.Quote{BidPrice: 10.0, AskPrice: 10.1}))

	ev, err := recvWithin(t, sub)
	require.NoError(t, err)
	assert.Equal(t, "SPX", ev.Symbol)
	assert.Equal(t, dxfeed.EventQuote, ev.Type())
	q, ok := ev.Data.(dxfeed.Quote)
	require.True(t, ok)
	assert.Equal(t, 10.0, q.BidPrice)
	assert.Equal(t, 10.1, q.AskPrice)
}

func TestSubscriptionIDsStrictlyIncrease(t *testing.T) {
	s, _ := newStreamer(t)

	var prev SubscriptionID
	for i := 0; i < 10; i++ {
		sub, err := s.CreateSub(dxfeed.EventQuote | dxfeed.EventGreeks)
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, SubscriptionID(0), sub.ID())
		} else {
			assert.Greater(t, sub.ID(), prev)
		}
		prev = sub.ID()
		if i%3 == 0 {
			require.NoError(t, s.CloseSub(sub.ID()))
		}
	}
	assert.Equal(t, []SubscriptionID{1, 2, 4, 5, 7, 8}, s.Subscriptions())
}

func TestCloseSub_InvalidatesSubscription(t *testing.T) {
	s, sdk := newStreamer(t)

	sub, err := s.CreateSub(dxfeed.EventQuote)
	require.NoError(t, err)
	native := sub.native
	require.True(t, sdk.Emit(native, "SPX", dxfeed.Quote{BidPrice: 1}))

	require.NoError(t, s.CloseSub(sub.ID()))

	_, ok := s.GetSub(sub.ID())
	assert.False(t, ok)
	assert.False(t, sdk.Emit(native, "SPX", dxfeed.Quote{BidPrice: 2}))

	_, err = recvWithin(t, sub)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, sub.AddSymbols("SPX"), ErrSubscriptionClosed)
	assert.ErrorIs(t, s.CloseSub(sub.ID()), ErrSubscriptionNotFound)
	assert.NoError(t, sub.Close())
	assert.Zero(t, s.handles.len())
}

func TestClose_SubscriptionsBeforeConnection(t *testing.T) {
	sdk := dxfeedtest.New()
	s, err := Connect(context.Background(), sdk, "host", "token", logger.Nop())
	require.NoError(t, err)

	var natives []dxfeed.SubscriptionHandle
	for i := 0; i < 3; i++ {
		sub, err := s.CreateSub(dxfeed.EventQuote)
		require.NoError(t, err)
		natives = append(natives, sub.native)
		require.True(t, sdk.Emit(sub.native, "SPX", dxfeed.Quote{}))
	}
	before := len(sdk.Deliveries())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	closeConn := -1
	closedSubs := map[uintptr]int{}
	for i, c := range sdk.Calls() {
		switch c.Name {
		case dxfeedtest.CallCloseSubscription:
			closedSubs[c.Handle] = i
		case dxfeedtest.CallCloseConnection:
			require.Equal(t, -1, closeConn, "connection closed twice")
			closeConn = i
		}
	}
	require.NotEqual(t, -1, closeConn)
	for _, h := range natives {
		idx, ok := closedSubs[uintptr(h)]
		require.True(t, ok, "subscription %d never closed", h)
		assert.Less(t, idx, closeConn)
		assert.False(t, sdk.Emit(h, "SPX", dxfeed.Quote{}))
	}
	assert.Len(t, sdk.Deliveries(), before, "listener invoked after close")
	assert.Zero(t, s.handles.len())

	_, err = s.CreateSub(dxfeed.EventQuote)
	assert.ErrorIs(t, err, ErrStreamerClosed)
}

func TestTrampoline_DropsUndecodableAndUnknown(t *testing.T) {
	s, sdk := newStreamer(t)
	sub, err := s.CreateSub(dxfeed.EventQuote)
	require.NoError(t, err)

	require.True(t, sdk.Emit(sub.native, "SPX", dxfeedtest.Undecodable{Kind: dxfeed.EventCandle}))
	dxfeedtest.EmitTo(s.onEvent, 9999, "SPX", dxfeed.Quote{BidPrice: 99})
	dxfeedtest.EmitTo(s.onEvent, sub.ctxHandle, "SPX", nil)
	require.True(t, sdk.Emit(sub.native, "SPX", dxfeed.Quote{BidPrice: 3}))

	assert.Equal(t, 1, sub.Pending())
	ev, err := recvWithin(t, sub)
	require.NoError(t, err)
	assert.Equal(t, 3.0, ev.Data.(dxfeed.Quote).BidPrice)
}

func TestConnect_NativeFailure(t *testing.T) {
	sdk := dxfeedtest.New()
	sdk.FailNext(dxfeedtest.CallCreateConnection, 0)

	_, err := Connect(context.Background(), sdk, "host", "token", logger.Nop())
	var nce *dxfeed.NativeCallError
	require.ErrorAs(t, err, &nce)
	assert.Equal(t, dxfeedtest.CallCreateConnection, nce.Call)
}

func TestCreateSub_AttachFailureUndone(t *testing.T) {
	s, sdk := newStreamer(t)
	sdk.FailNext(dxfeedtest.CallAttachEventListener, 0)

	_, err := s.CreateSub(dxfeed.EventQuote)
	var nce *dxfeed.NativeCallError
	require.ErrorAs(t, err, &nce)

	names := sdk.CallNames()
	require.GreaterOrEqual(t, len(names), 2)
	assert.Equal(t, []string{dxfeedtest.CallAttachEventListener, dxfeedtest.CallCloseSubscription}, names[len(names)-2:])
	assert.Zero(t, s.handles.len())
	assert.Empty(t, s.Subscriptions())

	sub, err := s.CreateSub(dxfeed.EventQuote)
	require.NoError(t, err)
	assert.Equal(t, SubscriptionID(0), sub.ID(), "failed creation must not consume an id")
}

func TestCreateSub_RejectsEmptyFlags(t *testing.T) {
	s, _ := newStreamer(t)
	_, err := s.CreateSub(0)
	assert.Error(t, err)
}

func TestCloseSubPanic_HandleKeptUntilStreamerClose(t *testing.T) {
	sdk := dxfeedtest.New()
	s, err := Connect(context.Background(), sdk, "host", "token", logger.Nop())
	require.NoError(t, err)

	sub, err := s.CreateSub(dxfeed.EventQuote)
	require.NoError(t, err)
	sdk.PanicNext(dxfeedtest.CallCloseSubscription, "native abort")

	err = sub.Close()
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "dxf_close_subscription", pe.Call)

	assert.Equal(t, 1, s.handles.len(), "handle must stay alive after a failed close")
	_, ok := s.GetSub(sub.ID())
	assert.False(t, ok)
	_, err = recvWithin(t, sub)
	assert.ErrorIs(t, err, pe)
	assert.Equal(t, err, sub.Close(), "repeated close returns the recorded failure")

	require.NoError(t, s.Close())
	assert.Zero(t, s.handles.len())
}

func TestCloseConnectionFailure_KeepsLeakedHandles(t *testing.T) {
	sdk := dxfeedtest.New()
	s, err := Connect(context.Background(), sdk, "host", "token", logger.Nop())
	require.NoError(t, err)
	sub, err := s.CreateSub(dxfeed.EventQuote)
	require.NoError(t, err)

	sdk.FailNext(dxfeedtest.CallCloseSubscription, 0)
	sdk.FailNext(dxfeedtest.CallCloseConnection, 0)
	err = s.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close subscription")
	assert.Contains(t, err.Error(), "close connection")
	assert.Equal(t, 1, s.handles.len())
	_ = sub
}

func TestCloseRetriesFailedConnectionClose(t *testing.T) {
	sdk := dxfeedtest.New()
	s, err := Connect(context.Background(), sdk, "host", "token", logger.Nop())
	require.NoError(t, err)
	_, err = s.CreateSub(dxfeed.EventQuote)
	require.NoError(t, err)

	sdk.FailNext(dxfeedtest.CallCloseSubscription, 0)
	sdk.FailNext(dxfeedtest.CallCloseConnection, 0)
	require.Error(t, s.Close())
	assert.Equal(t, 1, s.handles.len())

	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.handles.len())
	require.NoError(t, s.Close())

	closes := 0
	for _, name := range sdk.CallNames() {
		if name == dxfeedtest.CallCloseConnection {
			closes++
		}
	}
	assert.Equal(t, 2, closes)
}

type fakeResolver map[tastytrade.Symbol]string

func (f fakeResolver) StreamerSymbol(_ context.Context, typ tastytrade.InstrumentType, sym tastytrade.Symbol) (string, error) {
	if typ != tastytrade.InstrumentEquity && typ != tastytrade.InstrumentEquityOption {
		return "", tastytrade.ErrUnsupportedInstrument
	}
	return f[sym], nil
}

func TestAddInstruments(t *testing.T) {
	s, sdk := newStreamer(t, WithSymbolResolver(fakeResolver{
		"SPY":                   "SPY",
		"SPY   241220C00500000": ".SPY241220C500",
	}))
	sub, err := s.CreateSub(dxfeed.EventQuote | dxfeed.EventGreeks)
	require.NoError(t, err)

	require.NoError(t, sub.AddInstruments(context.Background(),
		Instrument{Type: tastytrade.InstrumentEquity, Symbol: "SPY"},
		Instrument{Type: tastytrade.InstrumentEquityOption, Symbol: "SPY   241220C00500000"},
	))
	assert.Equal(t, []string{"SPY", ".SPY241220C500"}, sdk.Symbols(sub.native))

	err = sub.AddInstruments(context.Background(), Instrument{Type: tastytrade.InstrumentFuture, Symbol: "/ESZ4"})
	assert.ErrorIs(t, err, tastytrade.ErrUnsupportedInstrument)
	assert.Len(t, sdk.Symbols(sub.native), 2)
}

func TestAddInstruments_NoResolver(t *testing.T) {
	s, _ := newStreamer(t)
	sub, err := s.CreateSub(dxfeed.EventQuote)
	require.NoError(t, err)
	assert.ErrorIs(t, sub.AddInstruments(context.Background(), Instrument{}), ErrNoResolver)
}

func TestAddSymbols_InvalidSymbol(t *testing.T) {
	s, _ := newStreamer(t)
	sub, err := s.CreateSub(dxfeed.EventQuote)
	require.NoError(t, err)
	assert.ErrorIs(t, sub.AddSymbols("SPX", ""), dxfeed.ErrInvalidSymbol)
}

type tokenSource struct{ err error }

func (ts tokenSource) QuoteStreamerTokens(context.Context) (tastytrade.QuoteStreamerTokens, error) {
	return tastytrade.QuoteStreamerTokens{Token: "dx", StreamerURL: "tasty.dxfeed.com:7301"}, ts.err
}

func TestConnectWithTokens(t *testing.T) {
	sdk := dxfeedtest.New()
	s, err := ConnectWithTokens(context.Background(), sdk, tokenSource{}, logger.Nop())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "tasty.dxfeed.com:7301", s.Host())
	assert.Equal(t, "tasty.dxfeed.com:7301", sdk.Calls()[0].Arg)

	boom := errors.New("rest down")
	_, err = ConnectWithTokens(context.Background(), dxfeedtest.New(), tokenSource{err: boom}, logger.Nop())
	assert.ErrorIs(t, err, boom)
}

func TestConcurrentEmitAndClose(t *testing.T) {
	s, sdk := newStreamer(t)
	subs := make([]*Subscription, 4)
	for i := range subs {
		sub, err := s.CreateSub(dxfeed.EventQuote)
		require.NoError(t, err)
		subs[i] = sub
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for _, sub := range subs {
		wg.Add(1)
		go func(h dxfeed.SubscriptionHandle) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					sdk.Emit(h, "SPX", dxfeed.Quote{BidPrice: 1})
				}
			}
		}(sub.native)
	}

	time.Sleep(10 * time.Millisecond)
	for _, sub := range subs[:2] {
		require.NoError(t, s.CloseSub(sub.ID()))
	}
	require.NoError(t, s.Close())
	close(stop)
	wg.Wait()

	assert.Zero(t, s.handles.len())
}
