package quotestream

import (
	"sync"
	"sync/atomic"

	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
	"github.com/YaganovValera/tasty-streamer/pkg/unbounded"
)

// handleTable maps the opaque userData given to the SDK to the producer end
// of a subscription queue. Handles start at 1 and are never reused, so a
// stale callback can only miss, never hit another subscription.
type handleTable struct {
	next atomic.Uintptr
	m    sync.Map // uintptr → *unbounded.Chan[*dxfeed.Event]
}

func (t *handleTable) register(q *unbounded.Chan[*dxfeed.Event]) uintptr {
	h := t.next.Add(1)
	t.m.Store(h, q)
	return h
}

func (t *handleTable) lookup(h uintptr) (*unbounded.Chan[*dxfeed.Event], bool) {
	v, ok := t.m.Load(h)
	if !ok {
		return nil, false
	}
	return v.(*unbounded.Chan[*dxfeed.Event]), true
}

// release reports whether h was live.
func (t *handleTable) release(h uintptr) bool {
	_, ok := t.m.LoadAndDelete(h)
	return ok
}

func (t *handleTable) len() int {
	n := 0
	t.m.Range(func(_, _ any) bool { n++; return true })
	return n
}
