package schedule

import "sync/atomic"

// Queue is a single-producer single-consumer ring buffer of scheduled
// events. The control thread pushes, the render callback consumes; neither
// side blocks or allocates. Stale events are cancelled by bumping the queue
// generation rather than by mutating the ring: the consumer discards any
// event stamped with an old generation.
type Queue struct {
	buf  []Event
	mask int64
	head atomic.Int64 // next slot to consume
	tail atomic.Int64 // next slot to produce
	gen  atomic.Int64 // current generation; events below this are stale
}

// NewQueue creates a queue with the given capacity rounded up to a power of
// two. Capacity is fixed for the queue's lifetime so the render thread never
// observes a reallocation.
func NewQueue(capacity int) *Queue {
	n := int64(1)
	for n < int64(capacity) {
		n <<= 1
	}
	return &Queue{buf: make([]Event, n), mask: n - 1}
}

// Generation returns the queue's current generation.
func (q *Queue) Generation() int64 { return q.gen.Load() }

// Invalidate marks every queued-but-unfired event stale and returns the new
// generation. Producer side only.
func (q *Queue) Invalidate() int64 { return q.gen.Add(1) }

// Push appends an event stamped with the current generation. Returns false
// when the ring is full; the caller drops the event and logs.
func (q *Queue) Push(ev Event) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() >= int64(len(q.buf)) {
		return false
	}
	ev.generation = q.gen.Load()
	q.buf[tail&q.mask] = ev
	q.tail.Store(tail + 1)
	return true
}

// Consume fires, in order, every live event with Timestamp <= limit.
// Stale-generation events are discarded silently. Consumer side only;
// wait-free and allocation-free.
func (q *Queue) Consume(limit int64, fire func(Event)) {
	gen := q.gen.Load()
	head := q.head.Load()
	tail := q.tail.Load()
	for head < tail {
		ev := q.buf[head&q.mask]
		if ev.generation == gen && ev.Timestamp > limit {
			break
		}
		head++
		if ev.generation == gen {
			fire(ev)
		}
	}
	q.head.Store(head)
}

// Len returns the number of queued entries, including stale ones not yet
// swept by the consumer.
func (q *Queue) Len() int {
	return int(q.tail.Load() - q.head.Load())
}
