package dxfeedtest

import (
	"fmt"
	"unsafe"

	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
)

// record is the fake's stand-in for a native event struct.
type record struct {
	data dxfeed.EventData
}

// Undecodable is an EventData the fake refuses to decode.
type Undecodable struct{ Kind dxfeed.EventType }

func (u Undecodable) EventType() dxfeed.EventType { return u.Kind }

// DecodeEvent reads back the record built by Emit.
func (s *SDK) DecodeEvent(eventType dxfeed.EventType, symbol, data unsafe.Pointer) (*dxfeed.Event, error) {
	if data == nil {
		return nil, dxfeed.ErrNilData
	}
	rec := (*record)(data)
	if _, bad := rec.data.(Undecodable); bad {
		return nil, fmt.Errorf("%w: %s", dxfeed.ErrUnsupportedEvent, eventType)
	}
	if rec.data.EventType() != eventType {
		return nil, fmt.Errorf("dxfeedtest: type mismatch %s != %s", rec.data.EventType(), eventType)
	}
	return &dxfeed.Event{Symbol: dxfeed.GoStringFromWide(symbol), Data: rec.data}, nil
}
