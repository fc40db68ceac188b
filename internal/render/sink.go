// Package render is the render-path collaborator: it fires pre-resolved
// scheduled events at their sample timestamps and synthesizes simple tones.
// It never computes musical time; beats were already resolved to samples by
// the scheduler. The same sink serves live playback and offline export.
package render

import (
	"math"
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/dawcore-go/internal/pdc"
	"github.com/cbegin/dawcore-go/internal/schedule"
)

const maxVoices = 32

type voice struct {
	on    bool
	track string
	key   int
	freq  float64
	phase float64
	amp   float32
}

type timedEvent struct {
	at int64 // effective fire time: timestamp + track compensation delay
	ev schedule.Event
}

// Sink consumes the scheduler's event queue on the audio thread. Per-track
// compensation delays from the PDC table are applied to each event's fire
// time so every track's output lands at a common instant.
type Sink struct {
	queue *schedule.Queue
	comp  *pdc.Calculator

	sampleRate atomic.Int64
	pos        atomic.Int64 // render-timeline sample counter
	running    atomic.Bool
	resetReq   atomic.Bool

	// MIDI note mirroring; nil when unused. Set before playback begins.
	Send func(msg midi.Message) error

	// Render-thread-only state below.
	voices  [maxVoices]voice
	gains   map[string]float32
	delayed []timedEvent // events due beyond the current buffer
	due     []timedEvent // events due within the current buffer
}

func NewSink(queue *schedule.Queue, comp *pdc.Calculator, sampleRate int) *Sink {
	s := &Sink{
		queue:   queue,
		comp:    comp,
		gains:   make(map[string]float32, 16),
		delayed: make([]timedEvent, 0, 256),
		due:     make([]timedEvent, 0, 256),
	}
	s.sampleRate.Store(int64(sampleRate))
	return s
}

// RenderedSamples returns the render-timeline sample counter. Wait-free;
// the transport's position polling reads it.
func (s *Sink) RenderedSamples() int64 { return s.pos.Load() }

// SetRunning gates event firing. The timeline keeps advancing while stopped
// so the device clock and the transport anchor stay in step.
func (s *Sink) SetRunning(on bool) { s.running.Store(on) }

// Reset requests that the render thread drop all sounding voices and held
// events, releasing buffered audio so a stop leaves no residual sound.
func (s *Sink) Reset() { s.resetReq.Store(true) }

// SetSampleRate updates the synthesis rate after a device change.
func (s *Sink) SetSampleRate(rate int) {
	if rate > 0 {
		s.sampleRate.Store(int64(rate))
	}
}

// Process renders one interleaved stereo buffer. Runs on the audio thread:
// wait-free queue consumption, no locks, steady-state allocation-free.
func (s *Sink) Process(dst []float32) {
	frames := int64(len(dst) / 2)
	start := s.pos.Load()
	end := start + frames
	for i := range dst {
		dst[i] = 0
	}

	if s.resetReq.CompareAndSwap(true, false) {
		for i := range s.voices {
			s.voices[i].on = false
		}
		s.delayed = s.delayed[:0]
	}

	if !s.running.Load() {
		// Sweep (and discard) stale queue entries so a stopped session
		// leaves nothing behind, but fire nothing.
		s.queue.Consume(end-1, func(schedule.Event) {})
		s.pos.Store(end)
		return
	}

	s.gatherDue(start, end)

	rate := float64(s.sampleRate.Load())
	idx := 0
	for f := int64(0); f < frames; f++ {
		abs := start + f
		for idx < len(s.due) && s.due[idx].at <= abs {
			s.apply(s.due[idx].ev)
			idx++
		}
		l, r := s.renderFrame(rate)
		dst[f*2] = l
		dst[f*2+1] = r
	}
	s.pos.Store(end)
}

// gatherDue collects events firing inside [start, end): first the held-over
// delayed events, then fresh queue entries, each shifted by its track's
// compensation delay. The result is sorted by effective fire time.
func (s *Sink) gatherDue(start, end int64) {
	s.due = s.due[:0]
	kept := 0
	for _, te := range s.delayed {
		if te.at < end {
			s.insertDue(te)
		} else {
			s.delayed[kept] = te
			kept++
		}
	}
	s.delayed = s.delayed[:kept]

	s.queue.Consume(end-1, func(ev schedule.Event) {
		at := ev.Timestamp + int64(s.comp.Delay(ev.Track))
		te := timedEvent{at: at, ev: ev}
		if at >= end {
			s.delayed = append(s.delayed, te)
			return
		}
		s.insertDue(te)
	})
}

// insertDue keeps s.due sorted by fire time; inputs are nearly sorted so
// tail insertion is cheap.
func (s *Sink) insertDue(te timedEvent) {
	i := len(s.due)
	s.due = append(s.due, te)
	for i > 0 && s.due[i-1].at > te.at {
		s.due[i] = s.due[i-1]
		i--
	}
	s.due[i] = te
}

func (s *Sink) apply(ev schedule.Event) {
	switch ev.Kind {
	case schedule.EventNoteOn:
		for i := range s.voices {
			if !s.voices[i].on {
				s.voices[i] = voice{
					on:    true,
					track: ev.Track,
					key:   ev.Note,
					freq:  noteFreq(ev.Note),
					amp:   float32(ev.Velocity) / 127 * 0.2,
				}
				break
			}
		}
		if s.Send != nil {
			s.Send(midi.NoteOn(0, uint8(ev.Note), uint8(ev.Velocity)))
		}
	case schedule.EventNoteOff:
		for i := range s.voices {
			if s.voices[i].on && s.voices[i].track == ev.Track && s.voices[i].key == ev.Note {
				s.voices[i].on = false
			}
		}
		if s.Send != nil {
			s.Send(midi.NoteOff(0, uint8(ev.Note)))
		}
	case schedule.EventAutomation:
		if ev.Param == "volume" {
			s.gains[ev.Track] = ev.Value
		}
	}
}

func (s *Sink) renderFrame(rate float64) (float32, float32) {
	var sum float32
	for i := range s.voices {
		v := &s.voices[i]
		if !v.on {
			continue
		}
		gain := float32(1)
		if g, ok := s.gains[v.track]; ok {
			gain = g
		}
		sum += float32(math.Sin(v.phase)) * v.amp * gain
		v.phase += 2 * math.Pi * v.freq / rate
		if v.phase > 2*math.Pi {
			v.phase -= 2 * math.Pi
		}
	}
	return sum, sum
}

func noteFreq(key int) float64 {
	return 440 * math.Pow(2, float64(key-69)/12)
}
