// Package dxfeed models the boundary to the native dxFeed market-data SDK:
// opaque handles, event-type flags, the listener ABI and the decoded event
// model. The cgo binding lives in cdxfeed; dxfeedtest provides an in-memory
// fake with the same contract.
package dxfeed

import "unsafe"

// ConnectionHandle is an opaque native connection.
type ConnectionHandle uintptr

// SubscriptionHandle is an opaque native subscription.
type SubscriptionHandle uintptr

// ConnectionStatus mirrors the SDK connection states.
type ConnectionStatus int

const (
	StatusNotConnected ConnectionStatus = iota
	StatusConnected
	StatusLoginRequired
	StatusAuthorized
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusNotConnected:
		return "not-connected"
	case StatusConnected:
		return "connected"
	case StatusLoginRequired:
		return "login-required"
	case StatusAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// TerminationListener is invoked when the SDK drops a connection.
type TerminationListener func(conn ConnectionHandle)

// StatusListener is invoked on every connection status transition.
type StatusListener func(conn ConnectionHandle, old, new ConnectionStatus)

// EventListener receives raw events on a thread owned by the SDK. symbol is a
// NUL-terminated wide string and data points at the native event record;
// both are only valid for the duration of the call. userData is the value
// given to AttachEventListener.
type EventListener func(eventType EventType, symbol, data unsafe.Pointer, userData uintptr)

// SDK is the native call surface. Every method except DecodeEvent maps to one
// native call; a non-success return code is reported as *NativeCallError.
//
// Implementations guarantee that once CloseSubscription returns nil, the
// listener attached to that subscription is never invoked again.
type SDK interface {
	CreateConnection(host, token string, onTermination TerminationListener, onStatus StatusListener) (ConnectionHandle, error)
	CreateSubscription(conn ConnectionHandle, flags EventType) (SubscriptionHandle, error)
	AttachEventListener(sub SubscriptionHandle, listener EventListener, userData uintptr) error
	AddSymbols(sub SubscriptionHandle, symbols []WideString) error
	CloseSubscription(sub SubscriptionHandle) error
	CloseConnection(conn ConnectionHandle) error

	// DecodeEvent copies the native record behind data into an Event.
	DecodeEvent(eventType EventType, symbol, data unsafe.Pointer) (*Event, error)
}
