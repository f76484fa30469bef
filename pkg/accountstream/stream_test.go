package accountstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/YaganovValera/tasty-streamer/common/logger"
)

type testServer struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{conns: make(chan *websocket.Conn, 1)}
	release := make(chan struct{})
	up := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- c
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		ts.Close()
	})
	return ts
}

func (ts *testServer) url() string { return "ws" + strings.TrimPrefix(ts.URL, "http") }

func dial(t *testing.T, ts *testServer, cfg Config, log *logger.Logger) (*Stream, *websocket.Conn) {
	t.Helper()
	cfg.URL = ts.url()
	s, err := Connect(context.Background(), cfg, "tok-1", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	select {
	case c := <-ts.conns:
		t.Cleanup(func() { _ = c.Close() })
		return s, c
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
		return nil, nil
	}
}

func readFrame(t *testing.T, c *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	var f map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func nextEvent(t *testing.T, s *Stream) (Message, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Event(ctx)
}

func TestEventsArriveInOrder(t *testing.T) {
	ts := newTestServer(t)
	s, c := dial(t, ts, Config{}, logger.Nop())

	const n = 20
	for i := 0; i < n; i++ {
		frame := `{"status":"ok","action":"heartbeat","web-socket-session-id":"ws","request-id":` + itoa(i) + `}`
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(frame)))
	}
	for i := 0; i < n; i++ {
		m, err := nextEvent(t, s)
		require.NoError(t, err)
		st, ok := m.(*StatusMessage)
		require.True(t, ok)
		assert.Equal(t, itoa(i), st.RequestID.String())
	}
}

func TestSendCapturesTokenAtEnqueue(t *testing.T) {
	ts := newTestServer(t)
	s, c := dial(t, ts, Config{}, logger.Nop())

	require.NoError(t, s.SubscribeAccounts("5WT0001", "5WT0002"))
	s.SetToken("tok-2")
	require.NoError(t, s.Send(ActionUserMessageSubscribe, nil))

	first := readFrame(t, c)
	assert.JSONEq(t, `"tok-1"`, string(first["auth-token"]))
	assert.JSONEq(t, `"connect"`, string(first["action"]))
	assert.JSONEq(t, `["5WT0001","5WT0002"]`, string(first["value"]))

	second := readFrame(t, c)
	assert.JSONEq(t, `"tok-2"`, string(second["auth-token"]))
	assert.JSONEq(t, `"user-message-subscribe"`, string(second["action"]))
	_, hasValue := second["value"]
	assert.False(t, hasValue)
}

func TestSendRejectsUnknownAction(t *testing.T) {
	ts := newTestServer(t)
	s, _ := dial(t, ts, Config{}, logger.Nop())

	err := s.Send(Action("subscribe-everything"), nil)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestHeartbeat(t *testing.T) {
	ts := newTestServer(t)
	_, c := dial(t, ts, Config{HeartbeatInterval: 20 * time.Millisecond}, logger.Nop())

	for i := 0; i < 2; i++ {
		f := readFrame(t, c)
		assert.JSONEq(t, `"heartbeat"`, string(f["action"]))
		assert.JSONEq(t, `"tok-1"`, string(f["auth-token"]))
		_, hasValue := f["value"]
		assert.False(t, hasValue)
	}
}

func TestHeartbeatSpacing(t *testing.T) {
	const (
		interval = 100 * time.Millisecond
		slack    = 25 * time.Millisecond
	)
	ts := newTestServer(t)
	start := time.Now()
	_, c := dial(t, ts, Config{HeartbeatInterval: interval}, logger.Nop())

	arrivals := make([]time.Time, 0, 4)
	for len(arrivals) < cap(arrivals) {
		f := readFrame(t, c)
		require.JSONEq(t, `"heartbeat"`, string(f["action"]))
		arrivals = append(arrivals, time.Now())
	}

	assert.GreaterOrEqual(t, arrivals[0].Sub(start), interval-slack, "heartbeat within the first interval")
	for i := 1; i < len(arrivals); i++ {
		gap := arrivals[i].Sub(arrivals[i-1])
		assert.GreaterOrEqual(t, gap, interval-slack, "heartbeats %d and %d too close", i-1, i)
	}
}

func TestUnrecognizedFrameTerminatesReaderOnly(t *testing.T) {
	ts := newTestServer(t)
	s, c := dial(t, ts, Config{}, logger.Nop())

	require.NoError(t, c.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"AccountBalance","data":{"account-number":"5WT0001"}}`)))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"foo":"bar"}`)))

	m, err := nextEvent(t, s)
	require.NoError(t, err)
	assert.Equal(t, "AccountBalance", m.Kind())

	_, err = nextEvent(t, s)
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.ErrorIs(t, err, ErrUnrecognizedMessage)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader still running")
	}
	assert.ErrorIs(t, s.Err(), ErrUnrecognizedMessage)

	// The writer is independent of the reader.
	require.NoError(t, s.SubscribeAccounts("5WT0001"))
	f := readFrame(t, c)
	assert.JSONEq(t, `"connect"`, string(f["action"]))
}

func TestServerCloseEndsStreamCleanly(t *testing.T) {
	ts := newTestServer(t)
	s, c := dial(t, ts, Config{}, logger.Nop())

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	_, err := nextEvent(t, s)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Err())
}

func TestWriterFailureStopsSendAndHeartbeat(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ts := newTestServer(t)
	s, _ := dial(t, ts, Config{HeartbeatInterval: 10 * time.Millisecond}, logger.FromZap(zap.New(core)))

	require.NoError(t, s.conn.UnderlyingConn().Close())

	require.Eventually(t, func() bool {
		return errors.Is(s.Send(ActionHeartbeat, nil), ErrClosed)
	}, 2*time.Second, 5*time.Millisecond)

	var de *DeliveryError
	require.True(t, errors.As(s.Err(), &de), "got %v", s.Err())
	assert.Equal(t, ActionHeartbeat, de.Action)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("stream task exited").
			FilterField(zap.String("task", "heartbeat")).Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The reader saw the broken socket too.
	_, err := nextEvent(t, s)
	var ce *ConnectionError
	assert.True(t, errors.As(err, &ce), "got %v", err)
}

func TestCloseIsIdempotentAndEndsEvents(t *testing.T) {
	ts := newTestServer(t)
	s, _ := dial(t, ts, Config{}, logger.Nop())

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	_, err := nextEvent(t, s)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Send(ActionHeartbeat, nil), ErrClosed)
	<-s.Done()
}

func TestConnectRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Connect(context.Background(), Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, "tok", logger.Nop())
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, http.StatusForbidden, ce.StatusCode)
}

type fakeSession struct{ demo bool }

func (fakeSession) SessionToken() string { return "session-tok" }
func (f fakeSession) Demo() bool { return f.demo }

func TestConnectSessionUsesSessionToken(t *testing.T) {
	ts := newTestServer(t)
	s, err := ConnectSession(context.Background(), Config{URL: ts.url()}, fakeSession{demo: true}, logger.Nop())
	require.NoError(t, err)
	defer s.Close()
	c := <-ts.conns
	defer c.Close()

	require.NoError(t, s.Send(ActionQuoteAlertsSubscribe, nil))
	f := readFrame(t, c)
	assert.JSONEq(t, `"session-tok"`, string(f["auth-token"]))
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}
