package subs

import (
	"github.com/Comcast/tuplescript/core"
)

// DefaultCapacity is the default number of events a subscription
// queue retains.
const DefaultCapacity = 64

// queue is a bounded ring of events.
//
// When the ring is full, adding an event evicts the oldest one.  The
// first eviction of an overflow episode creates a marker that sits in
// front of all retained events; later evictions in the same episode
// just increment the marker's count.  The marker doesn't take a slot
// in the ring and is never evicted.  Taking the marker ends the
// episode.
//
// A queue isn't safe for concurrent use.
type queue struct {
	buf   []core.Event
	head  int
	count int

	marker *core.Event
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &queue{
		buf: make([]core.Event, capacity),
	}
}

// add appends an event.  It returns true if an event was evicted and
// whether that eviction started a new overflow episode.
func (q *queue) add(ev core.Event) (evicted, first bool) {
	if q.count == len(q.buf) {
		old := q.buf[q.head]
		q.buf[q.head] = core.Event{}
		q.head = (q.head + 1) % len(q.buf)
		q.count--

		evicted = true
		if q.marker == nil {
			first = true
			q.marker = &core.Event{
				Kind: core.EventOverflow,
			}
		}
		q.marker.Dropped++
		q.marker.Seq = old.Seq
	}

	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = ev
	q.count++

	return evicted, first
}

// take removes and returns the next event, which is the marker if
// there is one.
func (q *queue) take() (core.Event, bool) {
	if q.marker != nil {
		m := *q.marker
		q.marker = nil
		return m, true
	}
	if q.count == 0 {
		return core.Event{}, false
	}
	ev := q.buf[q.head]
	q.buf[q.head] = core.Event{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return ev, true
}

// Len counts pending entries including a marker.
func (q *queue) Len() int {
	n := q.count
	if q.marker != nil {
		n++
	}
	return n
}
