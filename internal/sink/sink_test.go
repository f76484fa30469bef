package sink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/pkg/accountstream"
	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
	"github.com/YaganovValera/tasty-streamer/pkg/event"
	"github.com/YaganovValera/tasty-streamer/pkg/tastytrade"
)

type record struct {
	topic      string
	key, value []byte
}

type fakeProducer struct {
	mu      sync.Mutex
	records []record
	err     error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record{topic, key, value})
	return nil
}

func (f *fakeProducer) Ping(context.Context) error { return nil }
func (f *fakeProducer) Close() error               { return nil }

func TestKafkaRoutesByKind(t *testing.T) {
	p := &fakeProducer{}
	s := NewKafka(p, "quotes", "account", logger.Nop())
	ctx := context.Background()

	require.NoError(t, s.Process(ctx, event.QuoteFeed(&dxfeed.Event{Symbol: "SPX", Data: dxfeed.Quote{BidPrice: 5}})))
	require.NoError(t, s.Process(ctx, event.AccountFeed(&accountstream.AccountMessage{
		Type:           accountstream.TypeAccountBalance,
		AccountBalance: &tastytrade.Balance{AccountNumber: "5WT0001"},
	})))
	require.NoError(t, s.Process(ctx, event.AccountFeed(&accountstream.StatusMessage{Status: "ok"})))

	require.Len(t, p.records, 3)
	assert.Equal(t, "quotes", p.records[0].topic)
	assert.Equal(t, "SPX", string(p.records[0].key))
	assert.Equal(t, "account", p.records[1].topic)
	assert.Equal(t, "5WT0001", string(p.records[1].key))
	assert.Nil(t, p.records[2].key)

	var wire struct {
		Kind  string          `json:"kind"`
		Type  string          `json:"type"`
		Quote json.RawMessage `json:"quote"`
	}
	require.NoError(t, json.Unmarshal(p.records[0].value, &wire))
	assert.Equal(t, "quote", wire.Kind)
	assert.Equal(t, "Quote", wire.Type)
	assert.NotEmpty(t, wire.Quote)
}

func TestKafkaPublishError(t *testing.T) {
	boom := errors.New("broker down")
	s := NewKafka(&fakeProducer{err: boom}, "q", "a", logger.Nop())

	err := s.Process(context.Background(), event.QuoteFeed(&dxfeed.Event{Symbol: "SPX", Data: dxfeed.Quote{}}))
	assert.ErrorIs(t, err, boom)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLog(logger.FromZap(zap.New(core)))

	require.NoError(t, s.Process(context.Background(), event.AccountFeed(&accountstream.AccountMessage{Type: accountstream.TypeOrderChain})))
	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "OrderChain", entries[0].ContextMap()["type"])
}
