package accountstream

import (
	"errors"
	"fmt"

	"github.com/YaganovValera/tasty-streamer/pkg/unbounded"
)

var (
	// ErrClosed ends a cleanly closed stream and rejects Send after the
	// writer has stopped.
	ErrClosed = unbounded.ErrClosed

	// ErrUnrecognizedMessage is wrapped by ProtocolError when a frame matches
	// none of the known shapes.
	ErrUnrecognizedMessage = errors.New("accountstream: unrecognized message")

	ErrInvalidAction = errors.New("accountstream: invalid action")
)

// ConnectionError reports a failed handshake or a broken socket.
type ConnectionError struct {
	URL        string
	StatusCode int // HTTP status of a rejected handshake, 0 otherwise
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("accountstream: connection %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("accountstream: connection %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports an inbound frame that could not be decoded.
type ProtocolError struct {
	Frame []byte // truncated copy of the offending frame
	Err   error
}

const maxFrameSnippet = 256

func newProtocolError(raw []byte, err error) *ProtocolError {
	n := len(raw)
	if n > maxFrameSnippet {
		n = maxFrameSnippet
	}
	snippet := make([]byte, n)
	copy(snippet, raw)
	return &ProtocolError{Frame: snippet, Err: err}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("accountstream: protocol: %v: %q", e.Err, e.Frame)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DeliveryError reports an outbound frame the writer could not send.
type DeliveryError struct {
	Action Action
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("accountstream: deliver %s: %v", e.Action, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
