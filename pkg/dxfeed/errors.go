package dxfeed

import (
	"errors"
	"fmt"
)

// ErrUnsupportedEvent is returned by DecodeEvent for kinds without a Go model.
var ErrUnsupportedEvent = errors.New("dxfeed: unsupported event type")

// ErrNilData is returned by DecodeEvent when the SDK hands over no record.
var ErrNilData = errors.New("dxfeed: nil event data")

// NativeCallError reports a non-success return code of a native call.
type NativeCallError struct {
	Call    string
	Code    int
	Message string // last-error description, when the SDK provides one
}

func (e *NativeCallError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dxfeed: %s failed (code %d): %s", e.Call, e.Code, e.Message)
	}
	return fmt.Sprintf("dxfeed: %s failed (code %d)", e.Call, e.Code)
}

// UnknownEventTypeError reports an unparseable event-type name.
type UnknownEventTypeError struct{ Name string }

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("dxfeed: unknown event type %q", e.Name)
}
