// Package dxfeedtest provides an in-memory dxfeed.SDK for tests. It records
// every native call in order, can inject failures and panics, and delivers
// events synchronously through the attached listener the way the native SDK
// would from its own thread.
package dxfeedtest

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
)

// Call is one recorded native call.
type Call struct {
	Name   string
	Handle uintptr
	Arg    any
}

func (c Call) String() string { return fmt.Sprintf("%s(%d)", c.Name, c.Handle) }

// Native call names, matching the C API.
const (
	CallCreateConnection    = "dxf_create_connection_auth_bearer"
	CallCreateSubscription  = "dxf_create_subscription"
	CallAttachEventListener = "dxf_attach_event_listener"
	CallAddSymbols          = "dxf_add_symbols"
	CallCloseSubscription   = "dxf_close_subscription"
	CallCloseConnection     = "dxf_close_connection"
)

type subscription struct {
	conn     dxfeed.ConnectionHandle
	flags    dxfeed.EventType
	listener dxfeed.EventListener
	userData uintptr
	symbols  []string
	closed   bool
}

type connection struct {
	host, token   string
	onTermination dxfeed.TerminationListener
	onStatus      dxfeed.StatusListener
	closed        bool
}

// Delivery is one listener invocation observed by the fake.
type Delivery struct {
	Sub      dxfeed.SubscriptionHandle
	UserData uintptr
}

// SDK is the fake. The zero value is not usable; use New.
type SDK struct {
	// cbMu is held shared while a listener runs, so closes wait for
	// in-flight callbacks like the native SDK does.
	cbMu       sync.RWMutex
	mu         sync.Mutex
	next       uintptr
	calls      []Call
	conns      map[dxfeed.ConnectionHandle]*connection
	subs       map[dxfeed.SubscriptionHandle]*subscription
	failures   map[string]int
	panics     map[string]any
	deliveries []Delivery
}

// New returns an empty fake.
func New() *SDK {
	return &SDK{
		next:     100,
		conns:    make(map[dxfeed.ConnectionHandle]*connection),
		subs:     make(map[dxfeed.SubscriptionHandle]*subscription),
		failures: make(map[string]int),
		panics:   make(map[string]any),
	}
}

var _ dxfeed.SDK = (*SDK)(nil)

// FailNext makes the next invocation of call return code.
func (s *SDK) FailNext(call string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[call] = code
}

// PanicNext makes the next invocation of call panic with v.
func (s *SDK) PanicNext(call string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panics[call] = v
}

// Calls returns a copy of the recorded call log.
func (s *SDK) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallNames returns recorded call names in order.
func (s *SDK) CallNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Name
	}
	return out
}

// Deliveries returns every listener invocation made so far.
func (s *SDK) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

// Symbols returns the symbols added to sub.
func (s *SDK) Symbols(sub dxfeed.SubscriptionHandle) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.subs[sub]; ok {
		return append([]string(nil), st.symbols...)
	}
	return nil
}

// Subscriptions returns handles of subscriptions not yet closed.
func (s *SDK) Subscriptions() []dxfeed.SubscriptionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dxfeed.SubscriptionHandle
	for h, st := range s.subs {
		if !st.closed {
			out = append(out, h)
		}
	}
	return out
}

// record logs the call and applies any injected panic or failure.
func (s *SDK) record(name string, handle uintptr, arg any) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Name: name, Handle: handle, Arg: arg})
	p, doPanic := s.panics[name]
	delete(s.panics, name)
	code, fail := s.failures[name]
	delete(s.failures, name)
	s.mu.Unlock()

	if doPanic {
		panic(p)
	}
	if fail {
		return &dxfeed.NativeCallError{Call: name, Code: code}
	}
	return nil
}

func (s *SDK) handle() uintptr {
	s.next++
	return s.next
}

func (s *SDK) CreateConnection(host, token string, onTermination dxfeed.TerminationListener, onStatus dxfeed.StatusListener) (dxfeed.ConnectionHandle, error) {
	if err := s.record(CallCreateConnection, 0, host); err != nil {
		return 0, err
	}
	s.mu.Lock()
	h := dxfeed.ConnectionHandle(s.handle())
	s.conns[h] = &connection{host: host, token: token, onTermination: onTermination, onStatus: onStatus}
	s.mu.Unlock()
	return h, nil
}

func (s *SDK) CreateSubscription(conn dxfeed.ConnectionHandle, flags dxfeed.EventType) (dxfeed.SubscriptionHandle, error) {
	if err := s.record(CallCreateSubscription, uintptr(conn), flags); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[conn]
	if !ok || c.closed {
		return 0, &dxfeed.NativeCallError{Call: CallCreateSubscription, Code: 0, Message: "invalid connection"}
	}
	h := dxfeed.SubscriptionHandle(s.handle())
	s.subs[h] = &subscription{conn: conn, flags: flags}
	return h, nil
}

func (s *SDK) AttachEventListener(sub dxfeed.SubscriptionHandle, listener dxfeed.EventListener, userData uintptr) error {
	if err := s.record(CallAttachEventListener, uintptr(sub), userData); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subs[sub]
	if !ok || st.closed {
		return &dxfeed.NativeCallError{Call: CallAttachEventListener, Code: 0, Message: "invalid subscription"}
	}
	st.listener = listener
	st.userData = userData
	return nil
}

func (s *SDK) AddSymbols(sub dxfeed.SubscriptionHandle, symbols []dxfeed.WideString) error {
	names := make([]string, len(symbols))
	for i, w := range symbols {
		names[i] = w.String()
	}
	if err := s.record(CallAddSymbols, uintptr(sub), names); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subs[sub]
	if !ok || st.closed {
		return &dxfeed.NativeCallError{Call: CallAddSymbols, Code: 0, Message: "invalid subscription"}
	}
	st.symbols = append(st.symbols, names...)
	return nil
}

func (s *SDK) CloseSubscription(sub dxfeed.SubscriptionHandle) error {
	if err := s.record(CallCloseSubscription, uintptr(sub), nil); err != nil {
		return err
	}
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subs[sub]
	if !ok || st.closed {
		return &dxfeed.NativeCallError{Call: CallCloseSubscription, Code: 0, Message: "invalid subscription"}
	}
	st.closed = true
	st.listener = nil
	return nil
}

func (s *SDK) CloseConnection(conn dxfeed.ConnectionHandle) error {
	if err := s.record(CallCloseConnection, uintptr(conn), nil); err != nil {
		return err
	}
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[conn]
	if !ok || c.closed {
		return &dxfeed.NativeCallError{Call: CallCloseConnection, Code: 0, Message: "invalid connection"}
	}
	c.closed = true
	for _, st := range s.subs {
		if st.conn == conn {
			st.closed = true
			st.listener = nil
		}
	}
	return nil
}

// Emit delivers one event to the listener of sub, synchronously. Events for
// closed subscriptions are swallowed, as the native SDK guarantees. It
// reports whether the listener ran.
func (s *SDK) Emit(sub dxfeed.SubscriptionHandle, symbol string, data dxfeed.EventData) bool {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()

	s.mu.Lock()
	st, ok := s.subs[sub]
	if !ok || st.closed || st.listener == nil {
		s.mu.Unlock()
		return false
	}
	listener, userData := st.listener, st.userData
	s.deliveries = append(s.deliveries, Delivery{Sub: sub, UserData: userData})
	s.mu.Unlock()

	EmitTo(listener, userData, symbol, data)
	return true
}

// EmitTo invokes listener directly, bypassing subscription bookkeeping. It is
// used to simulate a misbehaving SDK calling back with a stale userData.
func EmitTo(listener dxfeed.EventListener, userData uintptr, symbol string, data dxfeed.EventData) {
	w, err := dxfeed.NewWideString(symbol)
	if err != nil {
		w = dxfeed.WideString{0}
	}
	var et dxfeed.EventType
	var ptr unsafe.Pointer
	if data != nil {
		et = data.EventType()
		ptr = unsafe.Pointer(&record{data: data})
	}
	listener(et, w.Ptr(), ptr, userData)
}

// Last returns the most recently created subscription handle.
func (s *SDK) Last() dxfeed.SubscriptionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last dxfeed.SubscriptionHandle
	for h := range s.subs {
		if h > last {
			last = h
		}
	}
	return last
}

// Terminate fires the termination listener of conn.
func (s *SDK) Terminate(conn dxfeed.ConnectionHandle) {
	s.mu.Lock()
	c, ok := s.conns[conn]
	s.mu.Unlock()
	if ok && c.onTermination != nil {
		c.onTermination(conn)
	}
}

// SetStatus fires the status listener of conn.
func (s *SDK) SetStatus(conn dxfeed.ConnectionHandle, old, new dxfeed.ConnectionStatus) {
	s.mu.Lock()
	c, ok := s.conns[conn]
	s.mu.Unlock()
	if ok && c.onStatus != nil {
		c.onStatus(conn, old, new)
	}
}
