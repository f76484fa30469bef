//go:build dxfeed

package cdxfeed

/*
#include <DXFeed.h>
*/
import "C"

import (
	"unsafe"

	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
)

//export goTerminationListener
func goTerminationListener(conn C.dxf_connection_t, userData unsafe.Pointer) {
	v, ok := registry.conns.Load(uintptr(userData))
	if !ok {
		return
	}
	if cb := v.(connCallbacks).onTermination; cb != nil {
		cb(dxfeed.ConnectionHandle(uintptr(conn)))
	}
}

//export goStatusListener
func goStatusListener(conn C.dxf_connection_t, oldStatus, newStatus C.dxf_connection_status_t, userData unsafe.Pointer) {
	v, ok := registry.conns.Load(uintptr(userData))
	if !ok {
		return
	}
	if cb := v.(connCallbacks).onStatus; cb != nil {
		cb(dxfeed.ConnectionHandle(uintptr(conn)),
			dxfeed.ConnectionStatus(oldStatus), dxfeed.ConnectionStatus(newStatus))
	}
}

//export goEventListener
func goEventListener(eventType C.int, symbol C.dxf_const_string_t, data *C.dxf_event_data_t, _ C.int, userData unsafe.Pointer) {
	v, ok := registry.events.Load(uintptr(userData))
	if !ok {
		return
	}
	cb := v.(eventCallback)
	cb.listener(dxfeed.EventType(eventType), unsafe.Pointer(symbol), unsafe.Pointer(data), cb.userData)
}
