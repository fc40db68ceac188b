// Package transport owns playback state: stopped/playing, the current
// position in beats, the cycle region, and jump semantics. It orchestrates
// the scheduler through a Driver and never touches render buffers.
package transport

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cbegin/dawcore-go/internal/debug"
	"github.com/cbegin/dawcore-go/internal/timeline"
)

type State int

const (
	StateStopped State = iota
	StatePlaying
)

func (s State) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "stopped"
}

// EventKind identifies transport notifications.
type EventKind int

const (
	EventPositionChanged EventKind = iota
	EventCycleJump
	EventStateChanged
)

// Event is a transport notification. Events are delivered in emit order over
// the Events channel; the position carried by a jump event is already
// observable via PositionBeats before the event is sent.
type Event struct {
	Kind       EventKind
	Beats      float64
	State      State
	Generation int64
}

// CycleRegion is the loop region. End must be greater than Start when the
// region is enabled.
type CycleRegion struct {
	Start   float64
	End     float64
	Enabled bool
}

// Driver is the collaborator surface the machine orchestrates: starting and
// stopping scheduling, and refreshing it across a cycle-boundary jump
// without a stop/start.
type Driver interface {
	Start(fromBeat float64)
	Stop()
	CycleJump(fromBeat float64)
}

var (
	ErrNoProject    = errors.New("transport: no project loaded")
	ErrInvalidCycle = errors.New("transport: cycle end must be greater than start")
)

// DefaultCycleEpsilon is the tolerance distinguishing "returning to loop
// start" from "scrubbed near loop start". Exact-zero comparison is
// unreliable under floating-point position tracking.
const DefaultCycleEpsilon = 0.001

// Machine is the transport state machine. All transitions run on the
// control thread; PositionBeats and Generation are wait-free reads.
type Machine struct {
	clock     *timeline.Clock
	driver    Driver
	epsilon   float64
	renderPos func() int64 // render-timeline sample counter, wait-free

	mu     sync.Mutex
	state  State
	cycle  CycleRegion
	loaded bool

	// Anchor mapping the render-timeline sample counter to song beats.
	anchorBeat   float64
	anchorSample int64

	pos    atomic.Uint64 // float64 bits
	gen    atomic.Int64
	events chan Event
}

// NewMachine builds the state machine. renderPos supplies the render
// timeline's sample counter so jumps can re-anchor the beat/sample mapping;
// tests inject a deterministic counter instead of a live audio clock.
func NewMachine(clock *timeline.Clock, driver Driver, epsilon float64, renderPos func() int64) *Machine {
	if epsilon <= 0 {
		epsilon = DefaultCycleEpsilon
	}
	if renderPos == nil {
		renderPos = func() int64 { return 0 }
	}
	m := &Machine{
		clock:     clock,
		driver:    driver,
		epsilon:   epsilon,
		renderPos: renderPos,
		events:    make(chan Event, 64),
	}
	m.storePos(0)
	return m
}

// Events returns the notification channel. Receive promptly; when the
// buffer is full events are dropped rather than blocking the control thread.
func (m *Machine) Events() <-chan Event { return m.events }

func (m *Machine) send(ev Event) {
	select {
	case m.events <- ev:
	default:
		debug.LogEvery(32, "transport", "event buffer full, dropping %d", ev.Kind)
	}
}

func (m *Machine) storePos(beats float64) {
	m.pos.Store(math.Float64bits(beats))
}

// PositionBeats returns the current position. Wait-free.
func (m *Machine) PositionBeats() float64 {
	return math.Float64frombits(m.pos.Load())
}

// Generation returns the current jump generation. Asynchronous callbacks
// capture it and discard themselves when it has moved on.
func (m *Machine) Generation() int64 { return m.gen.Load() }

// IsCurrent reports whether a captured generation is still valid.
func (m *Machine) IsCurrent(gen int64) bool { return m.gen.Load() == gen }

// IsPlaying reports whether the transport is in the playing state.
func (m *Machine) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StatePlaying
}

// SetLoaded marks a project as loaded; jumps and cycle configuration are
// refused until then.
func (m *Machine) SetLoaded(loaded bool) {
	m.mu.Lock()
	m.loaded = loaded
	m.mu.Unlock()
}

// Cycle returns the current cycle region.
func (m *Machine) Cycle() CycleRegion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycle
}

// SetCycleRegion sets the loop range. Mutated only by explicit user action.
func (m *Machine) SetCycleRegion(start, end float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return ErrNoProject
	}
	if end <= start {
		return ErrInvalidCycle
	}
	m.cycle.Start, m.cycle.End = start, end
	return nil
}

// SetCycleEnabled toggles cycling.
func (m *Machine) SetCycleEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return ErrNoProject
	}
	if enabled && m.cycle.End <= m.cycle.Start {
		return ErrInvalidCycle
	}
	m.cycle.Enabled = enabled
	return nil
}

// Play transitions stopped -> playing, anchoring the beat/sample mapping at
// the given render position and triggering the initial scheduling pass.
func (m *Machine) Play(renderPos int64) {
	m.mu.Lock()
	if m.state == StatePlaying {
		m.mu.Unlock()
		return
	}
	m.state = StatePlaying
	m.anchorBeat = m.PositionBeats()
	m.anchorSample = renderPos
	from := m.anchorBeat
	m.mu.Unlock()

	m.driver.Start(from)
	m.send(Event{Kind: EventStateChanged, Beats: from, State: StatePlaying, Generation: m.gen.Load()})
	debug.Log("transport", "play from beat %.3f", from)
}

// Stop transitions playing -> stopped. The driver halts scheduling and the
// render collaborator clears buffered audio.
func (m *Machine) Stop() {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	m.state = StateStopped
	at := m.PositionBeats()
	m.mu.Unlock()

	m.driver.Stop()
	m.send(Event{Kind: EventStateChanged, Beats: at, State: StateStopped, Generation: m.gen.Load()})
	debug.Log("transport", "stop at beat %.3f", at)
}

// Jump re-targets the position. When cycling is enabled and the target is
// within epsilon of the cycle start, this is a cycle-boundary jump: the
// position updates and the generation increments, but playback is not
// stopped or restarted; events pre-scheduled inside the lookahead window
// carry the next loop iteration. Any other jump stops, moves, and restarts
// with a fresh scheduling pass, because no events exist for an arbitrary
// destination.
func (m *Machine) Jump(toBeat float64) error {
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return ErrNoProject
	}
	cycleJump := m.state == StatePlaying &&
		m.cycle.Enabled &&
		math.Abs(toBeat-m.cycle.Start) < m.epsilon
	m.jumpLocked(toBeat, cycleJump, m.renderPos())
	m.mu.Unlock()
	return nil
}

// jumpLocked performs the jump with m.mu held, re-anchoring the
// beat/sample mapping at anchorSample.
func (m *Machine) jumpLocked(toBeat float64, cycleJump bool, anchorSample int64) {
	gen := m.gen.Add(1)
	if cycleJump {
		// Position must be observable before the jump notification.
		m.storePos(toBeat)
		m.anchorBeat = toBeat
		m.anchorSample = anchorSample
		m.send(Event{Kind: EventCycleJump, Beats: toBeat, State: m.state, Generation: gen})
		m.driver.CycleJump(toBeat)
		return
	}
	wasPlaying := m.state == StatePlaying
	if wasPlaying {
		m.driver.Stop()
	}
	m.storePos(toBeat)
	m.anchorBeat = toBeat
	m.anchorSample = anchorSample
	m.send(Event{Kind: EventPositionChanged, Beats: toBeat, State: m.state, Generation: gen})
	if wasPlaying {
		m.driver.Start(toBeat)
	}
	debug.Log("transport", "jump to beat %.3f (cycle=%v)", toBeat, cycleJump)
}

// AdvanceTo derives the position from the render-timeline sample counter.
// Poll-driven from the control loop; crossing the cycle end triggers a
// cycle-boundary jump back to the cycle start. Never called from the render
// callback.
func (m *Machine) AdvanceTo(renderPos int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePlaying {
		return
	}
	if renderPos < m.anchorSample {
		// Stale sample counter from before a re-anchor; ignore.
		return
	}
	beat := m.anchorBeat + m.clock.SamplesToBeats(renderPos-m.anchorSample)
	if m.cycle.Enabled && m.cycle.End > m.cycle.Start && beat >= m.cycle.End {
		// Beats already rendered past the boundary belong to the next
		// iteration; keep the anchor sample-exact.
		overshoot := m.clock.BeatsToSamples(beat - m.cycle.End)
		m.jumpLocked(m.cycle.Start, true, renderPos-overshoot)
		return
	}
	m.storePos(beat)
	m.send(Event{Kind: EventPositionChanged, Beats: beat, State: m.state, Generation: m.gen.Load()})
}

// ReAnchor pins the current beat position to a render sample, used after
// tempo or sample-rate changes invalidate the previous mapping.
func (m *Machine) ReAnchor(renderPos int64) {
	m.mu.Lock()
	m.anchorBeat = m.PositionBeats()
	m.anchorSample = renderPos
	m.mu.Unlock()
}

// Loaded reports whether a project is loaded.
func (m *Machine) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// State returns the current transport state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
