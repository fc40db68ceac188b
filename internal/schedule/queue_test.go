package schedule

import "testing"

func TestQueueConsumeInTimestampOrder(t *testing.T) {
	q := NewQueue(16)
	for _, ts := range []int64{0, 100, 250, 300} {
		if !q.Push(Event{Timestamp: ts, Kind: EventNoteOn}) {
			t.Fatalf("push failed at %d", ts)
		}
	}
	var got []int64
	q.Consume(200, func(ev Event) { got = append(got, ev.Timestamp) })
	if len(got) != 2 || got[0] != 0 || got[1] != 100 {
		t.Fatalf("expected [0 100], got %v", got)
	}
	q.Consume(1000, func(ev Event) { got = append(got, ev.Timestamp) })
	if len(got) != 4 || got[2] != 250 || got[3] != 300 {
		t.Fatalf("expected remaining [250 300], got %v", got)
	}
}

func TestQueueInvalidateDiscardsUnfired(t *testing.T) {
	q := NewQueue(16)
	q.Push(Event{Timestamp: 10})
	q.Push(Event{Timestamp: 20})
	q.Invalidate()
	q.Push(Event{Timestamp: 5})
	var got []int64
	q.Consume(1000, func(ev Event) { got = append(got, ev.Timestamp) })
	if len(got) != 1 || got[0] != 5 {
		t.Fatalf("expected only the post-invalidate event, got %v", got)
	}
}

func TestQueuePushFullDropsEvent(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < 4; i++ {
		if !q.Push(Event{Timestamp: int64(i)}) {
			t.Fatalf("push %d should succeed", i)
		}
	}
	if q.Push(Event{Timestamp: 99}) {
		t.Fatalf("push into full queue should fail")
	}
	fired := 0
	q.Consume(1000, func(Event) { fired++ })
	if fired != 4 {
		t.Fatalf("expected 4 fired, got %d", fired)
	}
	if !q.Push(Event{Timestamp: 100}) {
		t.Fatalf("push after drain should succeed")
	}
}

func TestQueueStaleEventsSweptBeforeLiveOnes(t *testing.T) {
	q := NewQueue(16)
	q.Push(Event{Timestamp: 500})
	q.Invalidate()
	q.Push(Event{Timestamp: 1})
	// Limit below the stale timestamp: the stale entry must still be swept
	// so the live event behind it fires.
	var got []int64
	q.Consume(10, func(ev Event) { got = append(got, ev.Timestamp) })
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected live event to fire past stale entry, got %v", got)
	}
}
