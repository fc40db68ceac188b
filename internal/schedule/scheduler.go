package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cbegin/dawcore-go/internal/automation"
	"github.com/cbegin/dawcore-go/internal/debug"
	"github.com/cbegin/dawcore-go/internal/timeline"
)

// EventKind identifies a scheduled event's payload.
type EventKind int

const (
	EventNoteOn EventKind = iota
	EventNoteOff
	EventAutomation
)

// Event is a payload bound to an absolute sample position on the render
// timeline. The render path fires events as their timestamps come due; it
// never computes musical time itself.
type Event struct {
	Timestamp int64
	Kind      EventKind
	Track     string
	Note      int
	Velocity  int
	Param     string
	Value     float32

	generation int64
}

// Note is a beat-indexed source event inside a track region.
type Note struct {
	Beat     float64
	Duration float64 // beats
	Key      int
	Velocity int
}

// Options tunes the scheduling policy. Zero values take the defaults below.
type Options struct {
	Lookahead          time.Duration // rolling window ahead of playback
	IterationsAhead    int           // full loop iterations pre-scheduled when cycling
	AutomationInterval time.Duration // spacing of automation snapshot events
	QueueCapacity      int
}

const (
	DefaultLookahead          = 150 * time.Millisecond
	DefaultIterationsAhead    = 2
	DefaultAutomationInterval = 10 * time.Millisecond
	defaultQueueCapacity      = 4096
)

func (o Options) withDefaults() Options {
	if o.Lookahead <= 0 {
		o.Lookahead = DefaultLookahead
	}
	if o.IterationsAhead < DefaultIterationsAhead {
		o.IterationsAhead = DefaultIterationsAhead
	}
	if o.AutomationInterval <= 0 {
		o.AutomationInterval = DefaultAutomationInterval
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = defaultQueueCapacity
	}
	return o
}

// Scheduler converts beat-indexed notes and automation into sample-stamped
// events covering a rolling lookahead window. It runs on the control thread;
// the render thread only consumes the queue.
type Scheduler struct {
	clock *timeline.Clock
	auto  *automation.Store
	queue *Queue
	opts  Options

	mu     sync.Mutex
	tracks map[string][]Note // sorted by Beat

	cycleStart   float64
	cycleEnd     float64
	cycleEnabled bool

	// Scheduling cursor: the next render-timeline sample to cover and the
	// song beat it corresponds to. Beats wrap at the cycle boundary while
	// samples keep increasing.
	cursorSample int64
	cursorBeat   float64
	active       bool
	needsRegen   bool // set when a sample-rate change arrives while stopped

	// Note-offs whose timestamps fall beyond the scheduled window so far.
	// Kept sorted; flushed into the queue as the window advances.
	pending []Event
}

func NewScheduler(clock *timeline.Clock, auto *automation.Store, opts Options) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{
		clock:  clock,
		auto:   auto,
		queue:  NewQueue(opts.QueueCapacity),
		opts:   opts,
		tracks: map[string][]Note{},
	}
}

// Queue returns the event queue consumed by the render path.
func (s *Scheduler) Queue() *Queue { return s.queue }

// SetNotes replaces a track's source notes, kept sorted for binary search.
func (s *Scheduler) SetNotes(trackID string, notes []Note) {
	cp := make([]Note, len(notes))
	copy(cp, notes)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Beat < cp[j].Beat })
	s.mu.Lock()
	s.tracks[trackID] = cp
	s.mu.Unlock()
}

// RemoveTrack drops a track's notes.
func (s *Scheduler) RemoveTrack(trackID string) {
	s.mu.Lock()
	delete(s.tracks, trackID)
	s.mu.Unlock()
}

// SetCycle configures the loop region consulted during scheduling.
func (s *Scheduler) SetCycle(start, end float64, enabled bool) {
	s.mu.Lock()
	s.cycleStart, s.cycleEnd, s.cycleEnabled = start, end, enabled
	s.mu.Unlock()
}

// Start anchors the scheduling cursor at a song beat and render-timeline
// sample, clears any stale queue contents, and runs the initial pass.
func (s *Scheduler) Start(fromBeat float64, atSample int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Invalidate()
	s.pending = s.pending[:0]
	s.cursorSample = atSample
	s.cursorBeat = fromBeat
	s.active = true
	s.needsRegen = false
	s.passLocked(atSample)
}

// Stop cancels every not-yet-fired event for the session.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.queue.Invalidate()
	s.pending = s.pending[:0]
}

// Active reports whether the scheduler is currently producing events.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Pass extends the scheduled window to renderPos + lookahead. Called
// periodically by the control thread while playing.
func (s *Scheduler) Pass(renderPos int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.passLocked(renderPos)
}

// Reschedule re-anchors the cursor after a jump. With preservePlayback set
// (cycle-boundary jumps) already-queued events stay live and the cursor is
// left alone: the upcoming loop iterations are pre-scheduled. Otherwise the
// queue is invalidated and rebuilt from the new position.
func (s *Scheduler) Reschedule(fromBeat float64, renderPos int64, preservePlayback bool) {
	if preservePlayback {
		s.Pass(renderPos)
		return
	}
	s.Start(fromBeat, renderPos)
}

// UpdateSampleRate invalidates every outstanding sample timestamp; the same
// sample count names a different duration at the new rate. When playing,
// events regenerate immediately from the current beat; when stopped,
// regeneration is deferred to the next Start.
func (s *Scheduler) UpdateSampleRate(currentBeat float64, renderPos int64) {
	s.Retime(currentBeat, renderPos)
}

// Retime discards and regenerates all outstanding timestamps after any
// change that shifts the beat-to-sample mapping (rate or tempo).
func (s *Scheduler) Retime(currentBeat float64, renderPos int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Invalidate()
	s.pending = s.pending[:0]
	if !s.active {
		s.needsRegen = true
		return
	}
	s.cursorSample = renderPos
	s.cursorBeat = currentBeat
	s.passLocked(renderPos)
}

// NeedsRegeneration reports whether a deferred sample-rate regeneration is
// outstanding; cleared by the next Start.
func (s *Scheduler) NeedsRegeneration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsRegen
}

// CursorBeat returns the song beat the cursor has scheduled up to.
func (s *Scheduler) CursorBeat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorBeat
}

// passLocked covers the render timeline up to renderPos+lookahead, walking
// the song in beat segments and wrapping at the cycle boundary. Callers
// hold s.mu.
func (s *Scheduler) passLocked(renderPos int64) {
	lookahead := s.clock.SecondsToSamples(s.opts.Lookahead.Seconds())
	target := renderPos + lookahead
	if s.cycleEnabled && s.cycleEnd > s.cycleStart {
		// Keep IterationsAhead full loop iterations resolved so a
		// cycle-boundary jump can rely on already-queued events.
		loopSamples := s.clock.BeatsToSamples(s.cycleEnd - s.cycleStart)
		if ahead := renderPos + int64(s.opts.IterationsAhead)*loopSamples; ahead > target {
			target = ahead
		}
	}
	for s.cursorSample < target {
		segEndBeat := s.cursorBeat + s.clock.SamplesToBeats(target-s.cursorSample)
		wrapped := false
		if s.cycleEnabled && s.cycleEnd > s.cycleStart && s.cursorBeat < s.cycleEnd && segEndBeat >= s.cycleEnd {
			segEndBeat = s.cycleEnd
			wrapped = true
		}
		s.scheduleSegment(s.cursorBeat, segEndBeat)
		advance := s.clock.BeatsToSamples(segEndBeat - s.cursorBeat)
		if advance <= 0 && wrapped {
			// Degenerate loop region; refuse to spin.
			break
		}
		s.cursorSample += advance
		if wrapped {
			s.cursorBeat = s.cycleStart
		} else {
			s.cursorBeat = segEndBeat
		}
	}
	s.flushPending(target)
}

// scheduleSegment emits events for song beats in [startBeat, endBeat),
// mapped onto the render timeline starting at s.cursorSample.
func (s *Scheduler) scheduleSegment(startBeat, endBeat float64) {
	for trackID, notes := range s.tracks {
		// First note at or after startBeat; O(log n) over sorted notes.
		lo := sort.Search(len(notes), func(i int) bool {
			return notes[i].Beat >= startBeat
		})
		for i := lo; i < len(notes) && notes[i].Beat < endBeat; i++ {
			n := notes[i]
			if err := validateNote(n); err != nil {
				// One bad note never aborts the pass.
				debug.Log("schedule", "dropping note on %s: %v", trackID, err)
				continue
			}
			onTS := s.cursorSample + s.clock.BeatsToSamples(n.Beat-startBeat)
			offTS := onTS + s.clock.BeatsToSamples(n.Duration)
			s.insertPending(Event{Timestamp: onTS, Kind: EventNoteOn, Track: trackID, Note: n.Key, Velocity: n.Velocity})
			s.insertPending(Event{Timestamp: offTS, Kind: EventNoteOff, Track: trackID, Note: n.Key})
		}
	}
	s.scheduleAutomation(startBeat, endBeat)
}

// scheduleAutomation emits pre-resolved automation snapshots at the control
// interval across the segment.
func (s *Scheduler) scheduleAutomation(startBeat, endBeat float64) {
	if len(s.tracks) == 0 {
		return
	}
	stepBeats := s.clock.SecondsToBeats(s.opts.AutomationInterval.Seconds())
	if stepBeats <= 0 {
		return
	}
	ids := make([]string, 0, len(s.tracks))
	for id := range s.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for beat := startBeat; beat < endBeat; beat += stepBeats {
		ts := s.cursorSample + s.clock.BeatsToSamples(beat-startBeat)
		values := s.auto.ValuesAt(beat, ids...)
		for _, id := range ids {
			for param, v := range values[id] {
				s.insertPending(Event{Timestamp: ts, Kind: EventAutomation, Track: id, Param: param, Value: v})
			}
		}
	}
}

// insertPending keeps the pending slice sorted by timestamp. The slice is
// nearly sorted since segments advance monotonically, so insertion from the
// tail is cheap.
func (s *Scheduler) insertPending(ev Event) {
	i := len(s.pending)
	s.pending = append(s.pending, ev)
	for i > 0 && s.pending[i-1].Timestamp > ev.Timestamp {
		s.pending[i] = s.pending[i-1]
		i--
	}
	s.pending[i] = ev
}

// flushPending pushes every pending event with Timestamp < horizon into the
// queue in timestamp order; later note-offs stay pending for future passes
// so the queue never goes backwards in time.
func (s *Scheduler) flushPending(horizon int64) {
	flushed := 0
	for _, ev := range s.pending {
		if ev.Timestamp >= horizon {
			break
		}
		if !s.queue.Push(ev) {
			debug.LogEvery(64, "schedule", "queue full, dropping event at %d", ev.Timestamp)
		}
		flushed++
	}
	if flushed > 0 {
		s.pending = s.pending[:copy(s.pending, s.pending[flushed:])]
	}
}

func validateNote(n Note) error {
	if n.Key < 0 || n.Key > 127 {
		return fmt.Errorf("key %d out of range", n.Key)
	}
	if n.Duration <= 0 {
		return fmt.Errorf("non-positive duration %f", n.Duration)
	}
	return nil
}
