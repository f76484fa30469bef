// pkg/accountstream/stream.go
package accountstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/common/safe"
	"github.com/YaganovValera/tasty-streamer/pkg/unbounded"
)

// Session supplies the auth token and environment of a logged-in REST
// client. *tastytrade.Client implements it.
type Session interface {
	SessionToken() string
	Demo() bool
}

// Stream is one authenticated account WebSocket session. Inbound frames are
// decoded by a reader goroutine, outbound actions are written by a writer
// goroutine, and a heartbeat goroutine keeps the session alive.
type Stream struct {
	cfg  Config
	conn *websocket.Conn
	log  *logger.Logger

	events  *unbounded.Chan[Message]
	actions *unbounded.Chan[outbound]
	token   atomic.Value // string

	group *safe.Group
	done  chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error

	mu        sync.Mutex
	writerErr error
}

// ConnectSession dials the account streamer matching sess.
func ConnectSession(ctx context.Context, cfg Config, sess Session, log *logger.Logger) (*Stream, error) {
	if cfg.URL == "" {
		cfg.Demo = sess.Demo()
	}
	return Connect(ctx, cfg, sess.SessionToken(), log)
}

// Connect dials the account streamer and starts the stream goroutines.
// It does not retry.
func Connect(ctx context.Context, cfg Config, token string, log *logger.Logger) (*Stream, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log = log.Named("accountstream")

	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		cerr := &ConnectionError{URL: cfg.URL, Err: err}
		if resp != nil {
			cerr.StatusCode = resp.StatusCode
			_ = resp.Body.Close()
		}
		return nil, cerr
	}
	conn.SetReadLimit(cfg.ReadLimit)

	s := &Stream{
		cfg:     cfg,
		conn:    conn,
		log:     log,
		events:  unbounded.New[Message](),
		actions: unbounded.New[outbound](),
		done:    make(chan struct{}),
	}
	s.token.Store(token)

	s.group = safe.New(context.Background(), log)
	s.group.OnExit = func(task string, err error) {
		log.Debug("stream task exited", zap.String("task", task), zap.Error(err))
	}
	s.group.Go("reader", s.readLoop)
	s.group.Go("writer", s.writeLoop)
	s.group.Go("heartbeat", s.heartbeatLoop)

	metrics.Connected.Inc()
	log.Info("account stream connected", zap.String("url", cfg.URL))
	return s, nil
}

// Send queues an action for the writer. Delivery is best effort and at most
// once. It fails with ErrClosed once the writer has stopped.
func (s *Stream) Send(action Action, value any) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	var raw json.RawMessage
	if value != nil {
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("accountstream: encode %s value: %w", action, err)
		}
		raw = b
	}
	return s.actions.Send(outbound{action: action, value: raw, token: s.Token()})
}

// SubscribeAccounts asks for notifications on the given accounts.
func (s *Stream) SubscribeAccounts(numbers ...string) error {
	if numbers == nil {
		numbers = []string{}
	}
	return s.Send(ActionConnect, numbers)
}

// SetToken replaces the token used by subsequent Send calls.
func (s *Stream) SetToken(token string) { s.token.Store(token) }

// Token returns the token Send currently embeds.
func (s *Stream) Token() string { return s.token.Load().(string) }

// Event returns the next inbound message. After the reader stops, queued
// messages are still returned, then ErrClosed for a clean end or the
// reader's terminal error (*ProtocolError or *ConnectionError).
func (s *Stream) Event(ctx context.Context) (Message, error) {
	return s.events.Recv(ctx)
}

// Done is closed when the reader has stopped.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err returns the writer's *DeliveryError, or the reader's terminal error,
// or nil.
func (s *Stream) Err() error {
	s.mu.Lock()
	werr := s.writerErr
	s.mu.Unlock()
	if werr != nil {
		return werr
	}
	if err := s.events.Err(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// Close sends a close frame, closes the socket and waits for the stream
// goroutines. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.log.Debug("close frame not sent", zap.Error(err))
		}
		s.closeErr = s.conn.Close()
		s.actions.Close()
		s.group.Stop()
		metrics.Connected.Dec()
		s.log.Info("account stream closed")
	})
	return s.closeErr
}

func (s *Stream) readLoop(_ context.Context) error {
	defer close(s.done)

	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.events.Close()
				return nil
			}
			cerr := &ConnectionError{URL: s.cfg.URL, Err: err}
			s.events.CloseWithError(cerr)
			return cerr
		}
		if typ != websocket.TextMessage {
			s.log.Debug("non-text frame ignored", zap.Int("type", typ))
			continue
		}

		msg, err := Decode(data)
		if err != nil {
			metrics.DecodeErrors.Inc()
			s.events.CloseWithError(err)
			return err
		}
		metrics.FramesReceived.WithLabelValues(msg.Kind()).Inc()
		if err := s.events.Send(msg); err != nil {
			return nil
		}
	}
}

func (s *Stream) writeLoop(ctx context.Context) error {
	defer s.actions.Close()

	for {
		act, err := s.actions.Recv(ctx)
		if err != nil {
			return nil
		}
		if err := s.write(act); err != nil {
			if s.closing.Load() {
				return nil
			}
			derr := &DeliveryError{Action: act.action, Err: err}
			s.mu.Lock()
			s.writerErr = derr
			s.mu.Unlock()
			s.actions.CloseWithError(derr)
			if n := s.actions.Purge(); n > 0 {
				s.log.Warn("queued actions discarded", zap.Int("count", n))
			}
			return derr
		}
		metrics.FramesSent.WithLabelValues(string(act.action)).Inc()
	}
}

func (s *Stream) write(act outbound) error {
	payload, err := act.encode()
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Stream) heartbeatLoop(ctx context.Context) error {
	// The timer restarts after each send so beats are never closer than the interval.
	timer := time.NewTimer(s.cfg.HeartbeatInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if err := s.Send(ActionHeartbeat, nil); err != nil {
				s.log.Debug("heartbeat stopped", zap.Error(err))
				return nil
			}
			timer.Reset(s.cfg.HeartbeatInterval)
		}
	}
}
