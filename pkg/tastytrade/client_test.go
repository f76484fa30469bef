package tastytrade

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/tasty-streamer/common/backoff"
	"github.com/YaganovValera/tasty-streamer/common/logger"
)

func testClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:   srv.URL,
		RateLimit: 1000,
		Backoff: backoff.Config{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			MaxRetries:      3,
		},
	}, logger.Nop())
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "context": "/test"})
}

func TestConfigDefaults(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"prod", Config{}, BaseURL},
		{"demo", Config{Demo: true}, DemoBaseURL},
		{"override", Config{BaseURL: "http://localhost:9/", Demo: true}, "http://localhost:9"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.cfg
			cfg.applyDefaults()
			assert.Equal(t, c.want, cfg.BaseURL)
			assert.Equal(t, uint64(3), cfg.Backoff.MaxRetries)
		})
	}
}

func TestLogin_StoresSessionToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["login"])
		assert.Equal(t, true, body["remember-me"])
		writeData(w, map[string]any{
			"user":          map[string]any{"email": "a@example.com", "username": "alice"},
			"session-token": "sess-123",
		})
	})
	mux.HandleFunc("/customers/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sess-123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		writeData(w, map[string]any{"items": []any{
			map[string]any{"account": map[string]any{"account-number": "5WT0001", "nickname": "main"}, "authority-level": "owner"},
		}})
	})
	c := testClient(t, mux)

	resp, err := c.Login(context.Background(), "alice", "secret", true)
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "sess-123", c.SessionToken())

	accounts, err := c.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, AccountNumber("5WT0001"), accounts[0].Number())
}

func TestErrorEnvelope(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_session","message":"Session expired","errors":[{"message":"re-login"}]}}`))
	}))

	_, err := c.QuoteStreamerTokens(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid_session", apiErr.Code)
	assert.Contains(t, err.Error(), "Session expired")
	assert.False(t, apiErr.Temporary())
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeData(w, map[string]any{
			"token": "dx-token", "streamer-url": "tasty.dxfeed.com:7301",
			"websocket-url": "wss://tasty.dxfeed.com", "level": "api",
		})
	}))

	tok, err := c.QuoteStreamerTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, QuoteStreamerTokens{
		Token: "dx-token", StreamerURL: "tasty.dxfeed.com:7301",
		WebsocketURL: "wss://tasty.dxfeed.com", Level: "api",
	}, tok)
}

func TestPostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.Login(context.Background(), "alice", "secret", false)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBalancePositionsOrders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/5WT0001/balances", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, map[string]any{"account-number": "5WT0001", "cash-balance": "1000.25", "net-liquidating-value": 2500.5})
	})
	mux.HandleFunc("/accounts/5WT0001/positions", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, map[string]any{"items": []any{map[string]any{
			"symbol": "SPY", "instrument-type": "Equity", "quantity": "10", "multiplier": 1,
		}}})
	})
	mux.HandleFunc("/accounts/5WT0001/orders/live", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, map[string]any{"items": []any{map[string]any{
			"id": 42, "status": "Live", "price": "1.05", "price-effect": "Debit", "size": 1,
		}}})
	})
	c := testClient(t, mux)
	ctx := context.Background()

	bal, err := c.Balance(ctx, "5WT0001")
	require.NoError(t, err)
	assert.True(t, bal.CashBalance.Equal(decimal.RequireFromString("1000.25")))
	assert.True(t, bal.NetLiquidatingValue.Equal(decimal.RequireFromString("2500.5")))

	pos, err := c.Positions(ctx, "5WT0001")
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, InstrumentEquity, pos[0].InstrumentType)

	orders, err := c.LiveOrders(ctx, "5WT0001")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(42), orders[0].ID)
	assert.Equal(t, OrderLive, orders[0].Status)
	assert.False(t, orders[0].Status.Terminal())
}

func TestStreamerSymbolDispatch(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/instruments/equities/SPY", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		writeData(w, map[string]any{"symbol": "SPY", "streamer-symbol": "SPY"})
	})
	mux.HandleFunc("/instruments/equity-options/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/instruments/equity-options/SPY   241220C00500000", r.URL.Path)
		writeData(w, map[string]any{"symbol": "SPY   241220C00500000", "streamer-symbol": ".SPY241220C500"})
	})
	c := testClient(t, mux)
	ctx := context.Background()

	got, err := c.StreamerSymbol(ctx, InstrumentEquity, "SPY")
	require.NoError(t, err)
	assert.Equal(t, "SPY", got)

	got, err = c.StreamerSymbol(ctx, InstrumentEquityOption, "SPY   241220C00500000")
	require.NoError(t, err)
	assert.Equal(t, ".SPY241220C500", got)

	for _, typ := range []InstrumentType{InstrumentFuture, InstrumentFutureOption, InstrumentCryptocurrency, InstrumentEquityOffering} {
		_, err = c.StreamerSymbol(ctx, typ, "X")
		assert.True(t, errors.Is(err, ErrUnsupportedInstrument), "type %s: %v", typ, err)
	}
	assert.Equal(t, int32(2), hits.Load(), "unsupported types must not hit the API")
}

func TestEndpointLabel(t *testing.T) {
	cases := map[string]string{
		"/accounts/5WT0001/balances":    "/accounts/balances",
		"/accounts/5WT0001/orders/live": "/accounts/orders/live",
		"/instruments/equities/SPY":     "/instruments/equities",
		"/quote-streamer-tokens":        "/quote-streamer-tokens",
		"/customers/me/accounts":        "/customers/me/accounts",
		"/accounts/5WT0001/orders/42":   "/accounts/orders/id",
		"/accounts/5WT0001/orders":      "/accounts/orders",
		"/option-chains/SPY/nested":     "/option-chains/nested",
		"/option-chains/SPY":            "/option-chains",
	}
	for in, want := range cases {
		if got := endpointLabel(in); got != want {
			t.Errorf("endpointLabel(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestOptionChains(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/option-chains/SPY/nested", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, map[string]any{"items": []any{map[string]any{
			"underlying-symbol": "SPY", "root-symbol": "SPY", "option-chain-type": "Standard", "shares-per-contract": 100,
			"expirations": []any{
				map[string]any{"expiration-date": "2024-12-20", "days-to-expiration": 3, "strikes": []any{
					map[string]any{"strike-price": "500.0", "call": "SPY   241220C00500000", "put": "SPY   241220P00500000"},
				}},
				map[string]any{"expiration-date": "2024-12-27", "days-to-expiration": 10, "strikes": []any{
					map[string]any{"strike-price": "505.0", "call": "SPY   241227C00505000", "put": "SPY   241227P00505000"},
				}},
			},
		}}})
	})
	mux.HandleFunc("/option-chains/SPY", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, map[string]any{"items": []any{map[string]any{
			"symbol": "SPY   241220C00500000", "underlying-symbol": "SPY", "strike-price": "500.0",
			"option-type": "C", "streamer-symbol": ".SPY241220C500", "active": true,
		}}})
	})
	mux.HandleFunc("/option-chains/NONE/nested", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, map[string]any{"items": []any{}})
	})
	c := testClient(t, mux)
	ctx := context.Background()

	nested, err := c.NestedOptionChain(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, 100, nested.SharesPerContract)
	require.Len(t, nested.Expirations, 2)
	assert.True(t, decimal.RequireFromString("500").Equal(nested.Expirations[0].Strikes[0].StrikePrice))
	assert.Equal(t, []Symbol{"SPY   241220C00500000", "SPY   241220P00500000"}, nested.OptionSymbols(1))
	assert.Len(t, nested.OptionSymbols(0), 4)

	flat, err := c.OptionChains(ctx, "SPY")
	require.NoError(t, err)
	require.Len(t, flat, 1)
	assert.Equal(t, ".SPY241220C500", flat[0].StreamerSymbol)
	assert.JSONEq(t, `true`, string(flat[0].Extra["active"]))
	assert.NotContains(t, flat[0].Extra, "symbol")

	_, err = c.NestedOptionChain(ctx, "NONE")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOrders(t *testing.T) {
	var placeCalls atomic.Int32
	order := Order{
		TimeInForce: Day,
		OrderType:   OrderTypeLimit,
		Price:       decimal.RequireFromString("1.05"),
		PriceEffect: Debit,
		Legs: []OrderLeg{{
			InstrumentType: InstrumentEquityOption,
			Symbol:         "SPY   241220C00500000",
			Quantity:       decimal.NewFromInt(1),
			Action:         BuyToOpen,
		}},
	}
	result := map[string]any{
		"warnings":            []any{},
		"buying-power-effect": map[string]any{"change-in-buying-power": "105.0", "change-in-buying-power-effect": "Debit"},
		"fee-calculation":     map[string]any{"total-fees": "1.14", "total-fees-effect": "Debit"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/5WT0001/orders/dry-run", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Limit", body["order-type"])
		assert.Equal(t, "Buy to Open", body["legs"].([]any)[0].(map[string]any)["action"])
		result["order"] = map[string]any{"account-number": "5WT0001", "status": "Received", "order-type": "Limit"}
		writeData(w, result)
	})
	mux.HandleFunc("/accounts/5WT0001/orders", func(w http.ResponseWriter, r *http.Request) {
		placeCalls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/accounts/5WT0001/orders/42", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		writeData(w, map[string]any{"id": 42, "status": "Cancel Requested"})
	})
	c := testClient(t, mux)
	ctx := context.Background()

	dry, err := c.DryRun(ctx, "5WT0001", order)
	require.NoError(t, err)
	assert.Equal(t, OrderReceived, dry.Order.Status)
	assert.Equal(t, OrderTypeLimit, dry.Order.OrderType)
	assert.True(t, decimal.RequireFromString("1.14").Equal(dry.FeeCalculation.TotalFees))

	_, err = c.PlaceOrder(ctx, "5WT0001", order)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(1), placeCalls.Load())

	rec, err := c.CancelOrder(ctx, "5WT0001", 42)
	require.NoError(t, err)
	assert.Equal(t, OrderCancelRequested, rec.Status)

	_, err = c.DryRun(ctx, "5WT0001", Order{OrderType: OrderTypeMarket})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}
