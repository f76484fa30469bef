package quotestream

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
)

// onEvent is the listener attached to every subscription. It runs on SDK
// threads, must return quickly and must never panic back into native code.
func (s *Streamer) onEvent(eventType dxfeed.EventType, symbol, data unsafe.Pointer, userData uintptr) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EventsDropped.WithLabelValues(dropPanic).Inc()
			s.log.Error("event listener panic", zap.Any("panic", r), zap.Stringer("type", eventType))
		}
	}()

	ev, err := s.sdk.DecodeEvent(eventType, symbol, data)
	if err != nil {
		metrics.EventsDropped.WithLabelValues(dropDecode).Inc()
		s.log.Debug("event dropped: decode failed", zap.Stringer("type", eventType), zap.Error(err))
		return
	}

	q, ok := s.handles.lookup(userData)
	if !ok {
		metrics.EventsDropped.WithLabelValues(dropNoHandle).Inc()
		s.log.Debug("event dropped: unknown context handle", zap.Uint64("handle", uint64(userData)))
		return
	}
	if err := q.Send(ev); err != nil {
		metrics.EventsDropped.WithLabelValues(dropClosed).Inc()
		return
	}
	metrics.EventsDelivered.WithLabelValues(eventType.String()).Inc()
}

func (s *Streamer) onTermination(conn dxfeed.ConnectionHandle) {
	s.log.Warn("native connection terminated", zap.Uint64("conn", uint64(conn)))
}

func (s *Streamer) onStatus(conn dxfeed.ConnectionHandle, old, new dxfeed.ConnectionStatus) {
	s.log.Debug("native connection status",
		zap.Stringer("old", old), zap.Stringer("new", new), zap.Uint64("conn", uint64(conn)))
}
