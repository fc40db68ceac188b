// Package dawcore is the transport and sample-accurate scheduling core for a
// DAW engine: a stopped/playing state machine with gapless cycle looping, a
// lookahead scheduler that stamps beat-indexed notes and automation onto the
// render timeline, plugin delay compensation, and automation lanes with
// curve interpolation. The musical timeline (beats) is the single source of
// truth; sample positions are always derived through the shared clock.
package dawcore

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"

	intaudio "github.com/cbegin/dawcore-go/internal/audio"
	intauto "github.com/cbegin/dawcore-go/internal/automation"
	intconfig "github.com/cbegin/dawcore-go/internal/config"
	intpdc "github.com/cbegin/dawcore-go/internal/pdc"
	intrender "github.com/cbegin/dawcore-go/internal/render"
	intschedule "github.com/cbegin/dawcore-go/internal/schedule"
	inttimeline "github.com/cbegin/dawcore-go/internal/timeline"
	inttransport "github.com/cbegin/dawcore-go/internal/transport"
)

// Re-exported domain types. The internal packages carry the behavior; these
// aliases are the public vocabulary.
type (
	Note        = intschedule.Note
	Stage       = intpdc.Stage
	Chain       = intpdc.Chain
	Point       = intauto.Point
	Lane        = intauto.Lane
	Mode        = intauto.Mode
	CurveType   = intauto.CurveType
	Event       = inttransport.Event
	EventKind   = inttransport.EventKind
	State       = inttransport.State
	CycleRegion = inttransport.CycleRegion
)

const (
	ModeOff   = intauto.ModeOff
	ModeRead  = intauto.ModeRead
	ModeTouch = intauto.ModeTouch
	ModeLatch = intauto.ModeLatch
	ModeWrite = intauto.ModeWrite
)

const (
	CurveStep        = intauto.CurveStep
	CurveLinear      = intauto.CurveLinear
	CurveExponential = intauto.CurveExponential
	CurveLogarithmic = intauto.CurveLogarithmic
	CurveSCurve      = intauto.CurveSCurve
	CurveSmooth      = intauto.CurveSmooth
)

const (
	EventPositionChanged = inttransport.EventPositionChanged
	EventCycleJump       = inttransport.EventCycleJump
	EventStateChanged    = inttransport.EventStateChanged

	StateStopped = inttransport.StateStopped
	StatePlaying = inttransport.StatePlaying
)

var (
	ErrNoProject    = inttransport.ErrNoProject
	ErrInvalidCycle = inttransport.ErrInvalidCycle
)

// NewLane builds an automation lane with an initial value and a value range.
// A degenerate range (min >= max) falls back to 0..1.
func NewLane(initial, min, max float32) *Lane {
	return intauto.NewLane(initial, min, max)
}

// CalculateCompensation returns the per-track delay that aligns all tracks
// to the highest-latency chain: max latency minus the track's own latency.
func CalculateCompensation(latencies map[string]int) map[string]int {
	return intpdc.Calculate(latencies)
}

type EngineOption func(*engineConfig)

type engineConfig struct {
	cfg      *intconfig.Config
	midiSend func(msg midi.Message) error
	pollTick time.Duration
}

func defaultEngineConfig() engineConfig {
	return engineConfig{cfg: intconfig.Default(), pollTick: 10 * time.Millisecond}
}

func WithSampleRate(rate int) EngineOption {
	return func(c *engineConfig) {
		c.cfg.SampleRate = rate
	}
}

func WithTempo(bpm float64) EngineOption {
	return func(c *engineConfig) {
		c.cfg.TempoBPM = bpm
	}
}

// WithLookahead sets the rolling scheduling window ahead of playback.
func WithLookahead(d time.Duration) EngineOption {
	return func(c *engineConfig) {
		c.cfg.LookaheadMs = int(d / time.Millisecond)
	}
}

// WithCycleEpsilon sets the beat tolerance that classifies a jump to the
// cycle start as a loop wrap rather than a hard relocation.
func WithCycleEpsilon(beats float64) EngineOption {
	return func(c *engineConfig) {
		c.cfg.CycleEpsilonBeats = beats
	}
}

// WithIterationsAhead sets how many full loop iterations the scheduler keeps
// pre-scheduled while cycling. Values below 2 are raised to 2.
func WithIterationsAhead(n int) EngineOption {
	return func(c *engineConfig) {
		if n < 2 {
			n = 2
		}
		c.cfg.IterationsAhead = n
	}
}

func WithAutomationInterval(d time.Duration) EngineOption {
	return func(c *engineConfig) {
		c.cfg.AutomationSnapshotMs = int(d / time.Millisecond)
	}
}

func WithCompensationEnabled(on bool) EngineOption {
	return func(c *engineConfig) {
		c.cfg.PDCEnabled = on
	}
}

// WithConfig replaces the whole configuration, typically one loaded from the
// config file. Later options still override individual fields.
func WithConfig(cfg *intconfig.Config) EngineOption {
	return func(c *engineConfig) {
		if cfg != nil {
			c.cfg = cfg
		}
	}
}

// WithMIDISender installs a callback that mirrors scheduled note events as
// MIDI messages. The callback runs on the render thread; keep it brief and
// non-blocking.
func WithMIDISender(send func(msg midi.Message) error) EngineOption {
	return func(c *engineConfig) {
		c.midiSend = send
	}
}

// Engine wires the transport state machine, scheduler, automation store,
// delay compensation, and render sink into one facade. Control-surface
// methods run on the caller's goroutine; the render path only ever touches
// the sink and the lock-free queue.
type Engine struct {
	clock   *inttimeline.Clock
	auto    *intauto.Store
	comp    *intpdc.Calculator
	sched   *intschedule.Scheduler
	sink    *intrender.Sink
	machine *inttransport.Machine

	mu       sync.Mutex
	tracks   map[string]string // id -> name
	output   audioOutput
	pollTick time.Duration
	pollStop chan struct{}
}

// audioOutput is the slice of intaudio.Output the engine drives.
type audioOutput interface {
	Play()
	Stop() error
}

// openOutput is swapped by tests that exercise device failure paths.
var openOutput = func(sampleRate int, source intaudio.RenderSource) (audioOutput, error) {
	return intaudio.NewOutput(sampleRate, source)
}

// driver bridges transport transitions to the scheduler and sink. The
// machine invokes it with its own lock held, so these methods must not call
// back into the machine.
type driver struct {
	e *Engine
}

func (d *driver) Start(fromBeat float64) {
	d.e.sched.Start(fromBeat, d.e.sink.RenderedSamples())
	d.e.sink.SetRunning(true)
}

func (d *driver) Stop() {
	d.e.sched.Stop()
	d.e.sink.SetRunning(false)
	d.e.sink.Reset()
}

func (d *driver) CycleJump(fromBeat float64) {
	// Loop wrap: refresh scheduling from the cycle start without tearing
	// down queued events, so audio crosses the boundary gaplessly.
	d.e.sched.Reschedule(fromBeat, d.e.sink.RenderedSamples(), true)
}

func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.cfg.Validate(); err != nil {
		return nil, err
	}

	clock := inttimeline.NewClock(cfg.cfg.TempoBPM, cfg.cfg.SampleRate)
	auto := intauto.NewStore()
	comp := intpdc.NewCalculator()
	comp.SetEnabled(cfg.cfg.PDCEnabled)
	sched := intschedule.NewScheduler(clock, auto, intschedule.Options{
		Lookahead:          time.Duration(cfg.cfg.LookaheadMs) * time.Millisecond,
		IterationsAhead:    cfg.cfg.IterationsAhead,
		AutomationInterval: time.Duration(cfg.cfg.AutomationSnapshotMs) * time.Millisecond,
	})
	sink := intrender.NewSink(sched.Queue(), comp, cfg.cfg.SampleRate)
	sink.Send = cfg.midiSend

	e := &Engine{
		clock:    clock,
		auto:     auto,
		comp:     comp,
		sched:    sched,
		sink:     sink,
		tracks:   map[string]string{},
		pollTick: cfg.pollTick,
	}
	e.machine = inttransport.NewMachine(clock, &driver{e: e}, cfg.cfg.CycleEpsilonBeats, sink.RenderedSamples)
	return e, nil
}

// LoadProject marks a project as loaded at the given tempo. Transport
// navigation is rejected until a project is loaded.
func (e *Engine) LoadProject(tempoBPM float64) error {
	if tempoBPM <= 0 {
		return errors.New("dawcore: tempo must be positive")
	}
	e.clock.SetTempo(tempoBPM)
	e.machine.SetLoaded(true)
	return nil
}

// CloseProject stops playback and rejects navigation until the next load.
// Track content is kept.
func (e *Engine) CloseProject() {
	e.machine.Stop()
	e.machine.SetLoaded(false)
}

// AddTrack registers a track and returns its generated ID. New tracks start
// with an empty plugin chain, so they receive the full compensation delay.
func (e *Engine) AddTrack(name string) string {
	id := uuid.NewString()
	e.mu.Lock()
	e.tracks[id] = name
	e.mu.Unlock()
	e.comp.SetChain(id, nil)
	return id
}

func (e *Engine) RemoveTrack(id string) {
	e.mu.Lock()
	delete(e.tracks, id)
	e.mu.Unlock()
	e.sched.RemoveTrack(id)
	e.comp.RemoveTrack(id)
	e.auto.Remove(id)
}

// Tracks returns a copy of the id -> name registry.
func (e *Engine) Tracks() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.tracks))
	for id, name := range e.tracks {
		out[id] = name
	}
	return out
}

// SetTrackNotes replaces a track's note content. Takes effect on the next
// scheduling pass; already-queued events for the current window stand.
func (e *Engine) SetTrackNotes(id string, notes []Note) {
	e.sched.SetNotes(id, notes)
}

// SetTrackChain replaces a track's plugin chain and rebuilds compensation.
func (e *Engine) SetTrackChain(id string, chain Chain) {
	e.comp.SetChain(id, chain)
}

// SetStageBypassed toggles bypass on one chain stage; bypassed stages
// contribute no latency.
func (e *Engine) SetStageBypassed(id, stageName string, bypassed bool) {
	e.comp.SetBypassed(id, stageName, bypassed)
}

func (e *Engine) SetCompensationEnabled(on bool) {
	e.comp.SetEnabled(on)
}

// CompensationDelay returns the delay in samples applied to a track's output.
func (e *Engine) CompensationDelay(id string) int {
	return e.comp.Delay(id)
}

func (e *Engine) CompensationTable() map[string]int {
	return e.comp.Table()
}

// UpdateAutomation replaces a track's automation lanes and mode atomically.
// Lanes are keyed by parameter name.
func (e *Engine) UpdateAutomation(id string, lanes map[string]*Lane, mode Mode) {
	e.auto.Update(id, lanes, mode)
}

func (e *Engine) SetAutomationMode(id string, mode Mode) {
	e.auto.SetMode(id, mode)
}

func (e *Engine) AutomationMode(id string) Mode {
	return e.auto.Mode(id)
}

// AutomationValue evaluates one parameter at a beat position. The second
// return is false when the track has no lane for the parameter or its mode
// is off.
func (e *Engine) AutomationValue(id, param string, beat float64) (float32, bool) {
	return e.auto.Value(id, param, beat)
}

// RecordAutomation writes a point into a lane. Rejected unless the track's
// mode is touch, latch, or write.
func (e *Engine) RecordAutomation(id, param string, p Point) bool {
	return e.auto.Record(id, param, p)
}

// Play starts playback from the current position. No-op when already
// playing.
func (e *Engine) Play() error {
	if !e.machine.Loaded() {
		return ErrNoProject
	}
	// The table is refreshed at every start so playback and export read
	// identical compensation values.
	e.comp.Rebuild()
	e.machine.Play(e.sink.RenderedSamples())
	return nil
}

// Stop halts playback. Position is retained.
func (e *Engine) Stop() {
	e.machine.Stop()
}

// Jump relocates the playhead. Jumping to the cycle start while cycling is
// a loop wrap and does not interrupt playback; any other target stops and
// restarts scheduling at the new position.
func (e *Engine) Jump(toBeat float64) error {
	return e.machine.Jump(toBeat)
}

func (e *Engine) SetCycleRegion(start, end float64) error {
	if err := e.machine.SetCycleRegion(start, end); err != nil {
		return err
	}
	cy := e.machine.Cycle()
	e.sched.SetCycle(cy.Start, cy.End, cy.Enabled)
	return nil
}

func (e *Engine) SetCycleEnabled(enabled bool) error {
	if err := e.machine.SetCycleEnabled(enabled); err != nil {
		return err
	}
	cy := e.machine.Cycle()
	e.sched.SetCycle(cy.Start, cy.End, cy.Enabled)
	return nil
}

func (e *Engine) Cycle() CycleRegion {
	return e.machine.Cycle()
}

func (e *Engine) PositionBeats() float64 {
	return e.machine.PositionBeats()
}

func (e *Engine) IsPlaying() bool {
	return e.machine.IsPlaying()
}

// Generation returns the scheduling generation counter. Deferred work
// stamped with an older generation must be discarded; compare with
// IsCurrent.
func (e *Engine) Generation() int64 {
	return e.machine.Generation()
}

func (e *Engine) IsCurrent(gen int64) bool {
	return e.machine.IsCurrent(gen)
}

// Watch returns the transport notification channel. The channel is buffered
// (cap 64) and events are dropped when the receiver falls behind; position
// reads never depend on it.
func (e *Engine) Watch() <-chan Event {
	return e.machine.Events()
}

// SetTempo changes the tempo and retimes all scheduled events; every
// outstanding sample timestamp names a different beat at the new tempo.
func (e *Engine) SetTempo(bpm float64) error {
	if bpm <= 0 {
		return errors.New("dawcore: tempo must be positive")
	}
	pos := e.machine.PositionBeats()
	renderPos := e.sink.RenderedSamples()
	e.clock.SetTempo(bpm)
	e.machine.ReAnchor(renderPos)
	e.sched.Retime(pos, renderPos)
	return nil
}

func (e *Engine) Tempo() float64 {
	return e.clock.TempoBPM()
}

// UpdateSampleRate switches the device sample rate mid-session. All queued
// events are invalidated and regenerated from the current musical position;
// when stopped, regeneration is deferred to the next Play. An invalid rate
// stops playback cleanly rather than rendering at a stale mapping.
func (e *Engine) UpdateSampleRate(rate int) error {
	if rate <= 0 {
		if e.machine.IsPlaying() {
			e.machine.Stop()
		}
		return errors.New("dawcore: sample rate must be positive")
	}
	pos := e.machine.PositionBeats()
	renderPos := e.sink.RenderedSamples()
	e.clock.SetSampleRate(rate)
	e.sink.SetSampleRate(rate)
	e.comp.Rebuild()
	e.machine.ReAnchor(renderPos)
	e.sched.UpdateSampleRate(pos, renderPos)

	e.mu.Lock()
	restart := e.output != nil
	e.mu.Unlock()
	if restart {
		// The device output is bound to its creation rate.
		e.StopAudio()
		if err := e.StartAudio(); err != nil {
			// No device at the new rate. Stop the transport so the
			// observable state stays consistent with the dead output.
			e.machine.Stop()
			return err
		}
	}
	return nil
}

func (e *Engine) SampleRate() int {
	return e.clock.SampleRate()
}

// Tick advances scheduling and the transport position to the render
// timeline's current sample. StartAudio pumps this automatically; offline
// callers and tests drive it directly.
func (e *Engine) Tick() {
	pos := e.sink.RenderedSamples()
	e.sched.Pass(pos)
	e.machine.AdvanceTo(pos)
}

// StartAudio opens the platform audio output and starts the control loop
// that keeps the scheduling window ahead of the device.
func (e *Engine) StartAudio() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.output != nil {
		return nil
	}
	out, err := openOutput(e.clock.SampleRate(), e.sink)
	if err != nil {
		return err
	}
	e.output = out
	e.pollStop = make(chan struct{})
	go e.pump(e.pollStop)
	out.Play()
	return nil
}

// StopAudio closes the audio output and stops the control loop. Transport
// state is untouched.
func (e *Engine) StopAudio() {
	e.mu.Lock()
	out := e.output
	stop := e.pollStop
	e.output = nil
	e.pollStop = nil
	e.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	if out != nil {
		_ = out.Stop()
	}
}

// Close stops playback and releases the audio output.
func (e *Engine) Close() {
	e.machine.Stop()
	e.StopAudio()
}

func (e *Engine) pump(stop chan struct{}) {
	ticker := time.NewTicker(e.pollTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}
