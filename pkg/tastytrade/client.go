// Package tastytrade is a REST client for the tastytrade brokerage API: login,
// quote-streamer tokens, accounts, orders, option chains and instrument lookup.
package tastytrade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/YaganovValera/tasty-streamer/common/backoff"
	"github.com/YaganovValera/tasty-streamer/common/logger"
)

const (
	BaseURL     = "https://api.tastyworks.com"
	DemoBaseURL = "https://api.cert.tastyworks.com"
)

// Config groups client tunables. Zero values are replaced by applyDefaults().
type Config struct {
	// BaseURL overrides the URL derived from Demo.
	BaseURL   string        `mapstructure:"base_url"`
	Demo      bool          `mapstructure:"demo"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`

	// RateLimit is requests per second; Burst the bucket size.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`

	// Backoff applies to idempotent requests failing with 5xx, 429 or a
	// transport error.
	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = BaseURL
		if c.Demo {
			c.BaseURL = DemoBaseURL
		}
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "tasty-streamer"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.Backoff.MaxRetries == 0 {
		c.Backoff.MaxRetries = 3
	}
}

// Client is safe for concurrent use.
type Client struct {
	http       *http.Client
	baseURL    string
	userAgent  string
	demo       bool
	limiter    *rate.Limiter
	backoffCfg backoff.Config
	log        *logger.Logger

	mu    sync.RWMutex
	token string
}

// New returns a client without a session; call Login or SetSessionToken.
func New(cfg Config, log *logger.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		demo:       cfg.Demo,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		backoffCfg: cfg.Backoff,
		log:        log.Named("tastytrade"),
	}
}

// Login creates a session and returns an authenticated client.
func Login(ctx context.Context, cfg Config, login, password string, rememberMe bool, log *logger.Logger) (*Client, error) {
	c := New(cfg, log)
	if _, err := c.Login(ctx, login, password, rememberMe); err != nil {
		return nil, err
	}
	return c, nil
}

// Login posts credentials to /sessions and stores the session token.
func (c *Client) Login(ctx context.Context, login, password string, rememberMe bool) (*LoginResponse, error) {
	body := struct {
		Login      string `json:"login"`
		Password   string `json:"password"`
		RememberMe bool   `json:"remember-me"`
	}{login, password, rememberMe}

	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &resp); err != nil {
		return nil, fmt.Errorf("tastytrade: login: %w", err)
	}
	if resp.SessionToken == "" {
		return nil, fmt.Errorf("tastytrade: login: %w", ErrEmptyResponse)
	}
	c.SetSessionToken(resp.SessionToken)
	c.log.Info("session created", zap.String("user", resp.User.Username), zap.Bool("demo", c.demo))
	return &resp, nil
}

// SessionToken returns the current session token.
func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetSessionToken replaces the session token used by subsequent requests.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Demo reports whether the client talks to the certification environment.
func (c *Client) Demo() bool { return c.demo }

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// do sends one request and decodes the {"data"}/{"error"} envelope into out.
// GET requests are retried on temporary failures.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	endpoint := endpointLabel(path)
	reqID := uuid.NewString()
	ctx = logger.ContextWithRequestID(ctx, reqID)
	ctx, span := tracer.Start(ctx, method+" "+endpoint, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("request.id", reqID),
	))
	defer span.End()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("tastytrade: encode request: %w", err)
		}
	}

	start := time.Now()
	err := backoff.Execute(ctx, "tastytrade."+endpoint, c.backoffCfg, c.log, func(ctx context.Context) error {
		err := c.roundTrip(ctx, method, path, reqID, payload, out)
		if err != nil && (method != http.MethodGet || !temporary(err)) {
			return backoff.Permanent(err)
		}
		return err
	})
	err = backoff.Cause(err)
	metrics.Latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Requests.WithLabelValues(endpoint, "error").Inc()
		span.RecordError(err)
		c.log.WithContext(ctx).Debug("request failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	metrics.Requests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path, reqID string, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("tastytrade: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", reqID)
	if tok := c.SessionToken(); tok != "" {
		req.Header.Set("Authorization", tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: err}
	}
	return decodeEnvelope(resp.StatusCode, raw, out)
}

// decodeEnvelope handles {"data": ..., "context": ...} and {"error": {...}}.
func decodeEnvelope(status int, raw []byte, out any) error {
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error *APIError       `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		if status >= 300 {
			return &APIError{StatusCode: status, Message: http.StatusText(status)}
		}
		return fmt.Errorf("tastytrade: decode response: %w", err)
	}
	if env.Error != nil {
		env.Error.StatusCode = status
		return env.Error
	}
	if status >= 300 {
		return &APIError{StatusCode: status, Message: http.StatusText(status)}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("tastytrade: decode data: %w", err)
	}
	return nil
}

type transportError struct{ err error }

func (e *transportError) Error() string { return "tastytrade: transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func temporary(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Temporary()
	}
	return false
}

// endpointLabel keeps metric cardinality bounded: "/accounts/5WT0001/balances"
// becomes "/accounts/balances".
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 4 && parts[0] == "accounts" && parts[2] == "orders" && isDigits(parts[3]):
		return "/accounts/orders/id"
	case len(parts) >= 3 && parts[0] == "accounts":
		return "/accounts/" + strings.Join(parts[2:], "/")
	case len(parts) >= 2 && parts[0] == "option-chains":
		return "/" + strings.Join(append(parts[:1], parts[2:]...), "/")
	case len(parts) >= 3 && parts[0] == "instruments":
		return "/instruments/" + parts[1]
	default:
		return "/" + strings.Join(parts, "/")
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
