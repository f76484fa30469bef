package symbolcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/tasty-streamer/common/backoff"
	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/pkg/tastytrade"
)

type fakeUpstream struct {
	mu    sync.Mutex
	calls int
	err   error
	table map[tastytrade.Symbol]string
}

func (f *fakeUpstream) StreamerSymbol(_ context.Context, _ tastytrade.InstrumentType, s tastytrade.Symbol) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.table[s], nil
}

func (f *fakeUpstream) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func setup(t *testing.T, up Upstream) (*Resolver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := New(context.Background(), Config{Addr: mr.Addr(), TTL: time.Minute}, up, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestResolver_MissThenHit(t *testing.T) {
	up := &fakeUpstream{table: map[tastytrade.Symbol]string{"AAPL  241220C00150000": ".AAPL241220C150"}}
	r, mr := setup(t, up)
	ctx := context.Background()

	got, err := r.StreamerSymbol(ctx, tastytrade.InstrumentEquityOption, "AAPL  241220C00150000")
	require.NoError(t, err)
	assert.Equal(t, ".AAPL241220C150", got)
	assert.Equal(t, 1, up.Calls())

	stored, err := mr.Get("tasty-streamer:symbol:Equity Option:AAPL  241220C00150000")
	require.NoError(t, err)
	assert.Equal(t, ".AAPL241220C150", stored)

	got, err = r.StreamerSymbol(ctx, tastytrade.InstrumentEquityOption, "AAPL  241220C00150000")
	require.NoError(t, err)
	assert.Equal(t, ".AAPL241220C150", got)
	assert.Equal(t, 1, up.Calls(), "second lookup must be served from redis")
}

func TestResolver_TTLExpires(t *testing.T) {
	up := &fakeUpstream{table: map[tastytrade.Symbol]string{"SPY": "SPY"}}
	r, mr := setup(t, up)
	ctx := context.Background()

	_, err := r.StreamerSymbol(ctx, tastytrade.InstrumentEquity, "SPY")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = r.Lookup(ctx, tastytrade.InstrumentEquity, "SPY")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.StreamerSymbol(ctx, tastytrade.InstrumentEquity, "SPY")
	require.NoError(t, err)
	assert.Equal(t, 2, up.Calls())
}

func TestResolver_UnsupportedTypeSkipsRedis(t *testing.T) {
	up := &fakeUpstream{table: map[tastytrade.Symbol]string{"/ESZ4": "/ESZ24:XCME"}}
	r, mr := setup(t, up)
	require.NoError(t, mr.Set(r.key(tastytrade.InstrumentFuture, "/ESZ4"), "stale"))

	_, err := r.StreamerSymbol(context.Background(), tastytrade.InstrumentFuture, "/ESZ4")
	require.ErrorIs(t, err, tastytrade.ErrUnsupportedInstrument)
	assert.Equal(t, 0, up.Calls())
}

func TestResolver_UpstreamErrorNotCached(t *testing.T) {
	boom := errors.New("boom")
	up := &fakeUpstream{err: boom}
	r, mr := setup(t, up)

	_, err := r.StreamerSymbol(context.Background(), tastytrade.InstrumentFuture, "/ESZ4")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mr.Keys())
}

func TestResolver_RedisDownFallsBack(t *testing.T) {
	up := &fakeUpstream{table: map[tastytrade.Symbol]string{"MSFT": "MSFT"}}
	r, mr := setup(t, up)
	mr.Close()

	got, err := r.StreamerSymbol(context.Background(), tastytrade.InstrumentEquity, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", got)
	assert.Equal(t, 1, up.Calls())
}

func TestResolver_Invalidate(t *testing.T) {
	up := &fakeUpstream{table: map[tastytrade.Symbol]string{"QQQ": "QQQ"}}
	r, _ := setup(t, up)
	ctx := context.Background()

	require.NoError(t, r.Store(ctx, tastytrade.InstrumentEquity, "QQQ", "QQQ"))
	require.NoError(t, r.Invalidate(ctx, tastytrade.InstrumentEquity, "QQQ"))
	_, err := r.Lookup(ctx, tastytrade.InstrumentEquity, "QQQ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{}, &fakeUpstream{}, logger.Nop())
	assert.Error(t, err)
}

func TestNew_UnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := Config{
		Addr:    addr,
		Backoff: backoff.Config{InitialInterval: 5 * time.Millisecond, MaxInterval: 10 * time.Millisecond, MaxRetries: 1},
	}
	_, err := New(context.Background(), cfg, &fakeUpstream{}, logger.Nop())
	assert.Error(t, err)
}
