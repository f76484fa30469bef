package quotestream

import (
	"errors"
	"fmt"

	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
	"github.com/YaganovValera/tasty-streamer/pkg/unbounded"
)

var (
	// ErrClosed is returned by Subscription.Event once the queue is closed.
	ErrClosed = unbounded.ErrClosed

	// ErrSubscriptionClosed is returned by operations on a closed Subscription.
	ErrSubscriptionClosed = errors.New("quotestream: subscription closed")

	// ErrSubscriptionNotFound is returned by CloseSub for unknown ids.
	ErrSubscriptionNotFound = errors.New("quotestream: subscription not found")

	// ErrStreamerClosed is returned by CreateSub after Close.
	ErrStreamerClosed = errors.New("quotestream: streamer closed")

	// ErrNoResolver is returned by AddInstruments when no SymbolResolver is set.
	ErrNoResolver = errors.New("quotestream: no symbol resolver configured")
)

// PanicError is a panic recovered from a native call.
type PanicError struct {
	Call  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("quotestream: %s panicked: %v", e.Call, e.Value)
}

// guard runs fn, converting a panic into *PanicError.
func guard(call string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Call: call, Value: r}
		}
	}()
	err = fn()
	if err != nil {
		var nce *dxfeed.NativeCallError
		if errors.As(err, &nce) {
			metrics.NativeErrors.WithLabelValues(nce.Call).Inc()
		}
	}
	return err
}
