package render

import (
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/dawcore-go/internal/pdc"
	"github.com/cbegin/dawcore-go/internal/schedule"
)

func energy(buf []float32) float64 {
	var e float64
	for _, s := range buf {
		if s < 0 {
			e -= float64(s)
		} else {
			e += float64(s)
		}
	}
	return e
}

func TestSinkFiresNoteAtTimestamp(t *testing.T) {
	q := schedule.NewQueue(64)
	sink := NewSink(q, pdc.NewCalculator(), 48000)
	sink.SetRunning(true)
	q.Push(schedule.Event{Timestamp: 0, Kind: schedule.EventNoteOn, Track: "trk", Note: 69, Velocity: 100})

	buf := make([]float32, 1024*2)
	sink.Process(buf)
	if energy(buf) == 0 {
		t.Fatalf("expected audio after note on")
	}
	if got := sink.RenderedSamples(); got != 1024 {
		t.Fatalf("expected 1024 samples rendered, got %d", got)
	}
}

func TestSinkSilentWhileStopped(t *testing.T) {
	q := schedule.NewQueue(64)
	sink := NewSink(q, pdc.NewCalculator(), 48000)
	q.Push(schedule.Event{Timestamp: 0, Kind: schedule.EventNoteOn, Track: "trk", Note: 69, Velocity: 100})

	buf := make([]float32, 512*2)
	sink.Process(buf)
	if energy(buf) != 0 {
		t.Fatalf("stopped sink must stay silent")
	}
	// The timeline still advances so the transport anchor stays honest.
	if got := sink.RenderedSamples(); got != 512 {
		t.Fatalf("expected timeline to advance, got %d", got)
	}
}

func TestSinkAppliesCompensationDelay(t *testing.T) {
	q := schedule.NewQueue(64)
	comp := pdc.NewCalculator()
	comp.SetChain("fast", pdc.Chain{})
	comp.SetChain("slow", pdc.Chain{{Name: "fx", Latency: 3000}})
	// "fast" is delayed by 3000 samples to align with "slow".
	sink := NewSink(q, comp, 48000)
	sink.SetRunning(true)
	q.Push(schedule.Event{Timestamp: 0, Kind: schedule.EventNoteOn, Track: "fast", Note: 60, Velocity: 100})

	first := make([]float32, 1024*2)
	sink.Process(first)
	if energy(first) != 0 {
		t.Fatalf("event must be held for its compensation delay")
	}
	second := make([]float32, 1024*2)
	sink.Process(second)
	if energy(second) != 0 {
		t.Fatalf("still inside the delay window")
	}
	third := make([]float32, 1024*2)
	sink.Process(third)
	if energy(third) == 0 {
		t.Fatalf("expected audio once the delayed fire time arrives")
	}
}

func TestSinkNoteOffSilencesVoice(t *testing.T) {
	q := schedule.NewQueue(64)
	sink := NewSink(q, pdc.NewCalculator(), 48000)
	sink.SetRunning(true)
	q.Push(schedule.Event{Timestamp: 0, Kind: schedule.EventNoteOn, Track: "trk", Note: 60, Velocity: 100})
	q.Push(schedule.Event{Timestamp: 256, Kind: schedule.EventNoteOff, Track: "trk", Note: 60})

	buf := make([]float32, 1024*2)
	sink.Process(buf)
	tail := buf[600*2:]
	if energy(tail) != 0 {
		t.Fatalf("expected silence after note off")
	}
}

func TestSinkResetClearsVoices(t *testing.T) {
	q := schedule.NewQueue(64)
	sink := NewSink(q, pdc.NewCalculator(), 48000)
	sink.SetRunning(true)
	q.Push(schedule.Event{Timestamp: 0, Kind: schedule.EventNoteOn, Track: "trk", Note: 60, Velocity: 100})
	buf := make([]float32, 256*2)
	sink.Process(buf)

	sink.Reset()
	next := make([]float32, 256*2)
	sink.Process(next)
	if energy(next) != 0 {
		t.Fatalf("reset must release all sounding voices")
	}
}

func TestSinkAutomationScalesGain(t *testing.T) {
	q := schedule.NewQueue(64)
	sink := NewSink(q, pdc.NewCalculator(), 48000)
	sink.SetRunning(true)
	q.Push(schedule.Event{Timestamp: 0, Kind: schedule.EventAutomation, Track: "trk", Param: "volume", Value: 0})
	q.Push(schedule.Event{Timestamp: 0, Kind: schedule.EventNoteOn, Track: "trk", Note: 60, Velocity: 100})

	buf := make([]float32, 512*2)
	sink.Process(buf)
	if energy(buf) != 0 {
		t.Fatalf("zero automation gain must mute the track")
	}
}

func TestSinkMirrorsNotesToMIDISender(t *testing.T) {
	q := schedule.NewQueue(64)
	sink := NewSink(q, pdc.NewCalculator(), 48000)
	sink.SetRunning(true)
	var sent int
	sink.Send = func(msg midi.Message) error {
		sent++
		return nil
	}
	q.Push(schedule.Event{Timestamp: 0, Kind: schedule.EventNoteOn, Track: "trk", Note: 60, Velocity: 100})
	q.Push(schedule.Event{Timestamp: 100, Kind: schedule.EventNoteOff, Track: "trk", Note: 60})
	buf := make([]float32, 512*2)
	sink.Process(buf)
	if sent != 2 {
		t.Fatalf("expected note on+off mirrored, got %d", sent)
	}
}
