//go:build dxfeed

package cdxfeed

/*
#cgo LDFLAGS: -lDXFeed
#include <stdint.h>
#include <stdlib.h>
#include <DXFeed.h>

extern void goTerminationListener(dxf_connection_t conn, void* user_data);
extern void goStatusListener(dxf_connection_t conn, dxf_connection_status_t old_status,
	dxf_connection_status_t new_status, void* user_data);
extern void goEventListener(int event_type, dxf_const_string_t symbol,
	dxf_event_data_t* data, int data_count, void* user_data);

static ERRORCODE tasty_create_connection(const char* host, const char* token,
	uintptr_t user_data, uintptr_t* out) {
	dxf_connection_t conn = NULL;
	ERRORCODE rc = dxf_create_connection_auth_bearer(host, token,
		(dxf_conn_termination_notifier_t)goTerminationListener,
		(dxf_conn_status_notifier_t)goStatusListener,
		NULL, NULL, (void*)user_data, &conn);
	*out = (uintptr_t)conn;
	return rc;
}

static ERRORCODE tasty_create_subscription(uintptr_t conn, int flags, uintptr_t* out) {
	dxf_subscription_t sub = NULL;
	ERRORCODE rc = dxf_create_subscription((dxf_connection_t)conn, flags, &sub);
	*out = (uintptr_t)sub;
	return rc;
}

static ERRORCODE tasty_attach_listener(uintptr_t sub, uintptr_t user_data) {
	return dxf_attach_event_listener((dxf_subscription_t)sub,
		(dxf_event_listener_t)goEventListener, (void*)user_data);
}

static ERRORCODE tasty_add_symbols(uintptr_t sub, dxf_const_string_t* symbols, int count) {
	return dxf_add_symbols((dxf_subscription_t)sub, symbols, count);
}

static ERRORCODE tasty_close_subscription(uintptr_t sub) {
	return dxf_close_subscription((dxf_subscription_t)sub);
}

static ERRORCODE tasty_close_connection(uintptr_t conn) {
	return dxf_close_connection((dxf_connection_t)conn);
}

static int tasty_last_error(dxf_const_string_t* descr) {
	int code = 0;
	*descr = NULL;
	dxf_get_last_error(&code, descr);
	return code;
}
*/
import "C"

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
)

const success = C.DXF_SUCCESS

type connCallbacks struct {
	onTermination dxfeed.TerminationListener
	onStatus      dxfeed.StatusListener
}

type eventCallback struct {
	listener dxfeed.EventListener
	userData uintptr
}

// Native callbacks carry a registry key instead of a Go pointer.
var registry struct {
	next   atomic.Uintptr
	conns  sync.Map // key → connCallbacks
	events sync.Map // key → eventCallback
}

func register(m *sync.Map, v any) uintptr {
	key := registry.next.Add(1)
	m.Store(key, v)
	return key
}

// SDK is the cgo-backed dxfeed.SDK.
type SDK struct {
	mu       sync.Mutex
	connKeys map[dxfeed.ConnectionHandle]uintptr
	subKeys  map[dxfeed.SubscriptionHandle]uintptr
}

// New returns a binding to the process-wide native library.
func New() *SDK {
	return &SDK{
		connKeys: make(map[dxfeed.ConnectionHandle]uintptr),
		subKeys:  make(map[dxfeed.SubscriptionHandle]uintptr),
	}
}

var _ dxfeed.SDK = (*SDK)(nil)

func callError(call string, rc C.ERRORCODE) error {
	if rc == success {
		return nil
	}
	var descr C.dxf_const_string_t
	code := C.tasty_last_error(&descr)
	return &dxfeed.NativeCallError{
		Call:    call,
		Code:    int(code),
		Message: dxfeed.GoStringFromWide(unsafe.Pointer(descr)),
	}
}

func (s *SDK) CreateConnection(host, token string, onTermination dxfeed.TerminationListener, onStatus dxfeed.StatusListener) (dxfeed.ConnectionHandle, error) {
	cHost := C.CString(host)
	defer C.free(unsafe.Pointer(cHost))
	cToken := C.CString(token)
	defer C.free(unsafe.Pointer(cToken))

	key := register(&registry.conns, connCallbacks{onTermination, onStatus})
	var out C.uintptr_t
	if err := callError("dxf_create_connection_auth_bearer",
		C.tasty_create_connection(cHost, cToken, C.uintptr_t(key), &out)); err != nil {
		registry.conns.Delete(key)
		return 0, err
	}
	conn := dxfeed.ConnectionHandle(out)

	s.mu.Lock()
	s.connKeys[conn] = key
	s.mu.Unlock()
	return conn, nil
}

func (s *SDK) CreateSubscription(conn dxfeed.ConnectionHandle, flags dxfeed.EventType) (dxfeed.SubscriptionHandle, error) {
	var out C.uintptr_t
	if err := callError("dxf_create_subscription",
		C.tasty_create_subscription(C.uintptr_t(conn), C.int(flags), &out)); err != nil {
		return 0, err
	}
	return dxfeed.SubscriptionHandle(out), nil
}

func (s *SDK) AttachEventListener(sub dxfeed.SubscriptionHandle, listener dxfeed.EventListener, userData uintptr) error {
	key := register(&registry.events, eventCallback{listener, userData})
	if err := callError("dxf_attach_event_listener",
		C.tasty_attach_listener(C.uintptr_t(sub), C.uintptr_t(key))); err != nil {
		registry.events.Delete(key)
		return err
	}
	s.mu.Lock()
	s.subKeys[sub] = key
	s.mu.Unlock()
	return nil
}

func (s *SDK) AddSymbols(sub dxfeed.SubscriptionHandle, symbols []dxfeed.WideString) error {
	if len(symbols) == 0 {
		return nil
	}
	// cgo forbids passing Go memory holding Go pointers, so the array and
	// every string are copied into C memory.
	var ptr C.dxf_const_string_t
	arr := unsafe.Slice((*C.dxf_const_string_t)(C.malloc(C.size_t(len(symbols))*C.size_t(unsafe.Sizeof(ptr)))), len(symbols))
	defer C.free(unsafe.Pointer(&arr[0]))

	for i, w := range symbols {
		buf := C.malloc(C.size_t(len(w) * 4))
		copy(unsafe.Slice((*int32)(buf), len(w)), w)
		arr[i] = C.dxf_const_string_t(buf)
	}
	defer func() {
		for _, p := range arr {
			C.free(unsafe.Pointer(p))
		}
	}()

	return callError("dxf_add_symbols",
		C.tasty_add_symbols(C.uintptr_t(sub), &arr[0], C.int(len(symbols))))
}

func (s *SDK) CloseSubscription(sub dxfeed.SubscriptionHandle) error {
	if err := callError("dxf_close_subscription", C.tasty_close_subscription(C.uintptr_t(sub))); err != nil {
		return err
	}
	s.mu.Lock()
	key, ok := s.subKeys[sub]
	delete(s.subKeys, sub)
	s.mu.Unlock()
	if ok {
		registry.events.Delete(key)
	}
	return nil
}

func (s *SDK) CloseConnection(conn dxfeed.ConnectionHandle) error {
	err := callError("dxf_close_connection", C.tasty_close_connection(C.uintptr_t(conn)))
	s.mu.Lock()
	key, ok := s.connKeys[conn]
	delete(s.connKeys, conn)
	s.mu.Unlock()
	if ok {
		registry.conns.Delete(key)
	}
	return err
}
