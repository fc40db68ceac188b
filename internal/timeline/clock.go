package timeline

import (
	"math"
	"sync"
)

// Clock converts between musical time (beats), sample positions, and wall
// seconds for a given tempo and sample rate. Beats are the single source of
// truth for position; sample counts are always derived, never stored.
type Clock struct {
	mu         sync.RWMutex
	tempoBPM   float64
	sampleRate int
}

const DefaultTempoBPM = 120.0

func NewClock(tempoBPM float64, sampleRate int) *Clock {
	if tempoBPM <= 0 {
		tempoBPM = DefaultTempoBPM
	}
	return &Clock{tempoBPM: tempoBPM, sampleRate: sampleRate}
}

func (c *Clock) TempoBPM() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tempoBPM
}

func (c *Clock) SampleRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sampleRate
}

// SetTempo updates the tempo. Non-positive values are ignored.
func (c *Clock) SetTempo(bpm float64) {
	if bpm <= 0 {
		return
	}
	c.mu.Lock()
	c.tempoBPM = bpm
	c.mu.Unlock()
}

// SetSampleRate updates the sample rate. Callers that hold sample-stamped
// state must treat every outstanding timestamp as invalid afterwards; the
// same sample count means a different duration at the new rate.
func (c *Clock) SetSampleRate(rate int) {
	if rate <= 0 {
		return
	}
	c.mu.Lock()
	c.sampleRate = rate
	c.mu.Unlock()
}

// SecondsPerBeat returns the duration of one beat at the current tempo.
func (c *Clock) SecondsPerBeat() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return 60.0 / c.tempoBPM
}

// BeatsToSeconds converts a beat span to seconds at the current tempo.
func (c *Clock) BeatsToSeconds(beats float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return beats * 60.0 / c.tempoBPM
}

// SecondsToBeats converts a second span to beats at the current tempo.
func (c *Clock) SecondsToBeats(seconds float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return seconds * c.tempoBPM / 60.0
}

// BeatsToSamples converts a beat position to an absolute sample position,
// rounded to the nearest sample.
func (c *Clock) BeatsToSamples(beats float64) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(math.Round(beats * 60.0 / c.tempoBPM * float64(c.sampleRate)))
}

// SamplesToBeats converts an absolute sample position to beats.
func (c *Clock) SamplesToBeats(samples int64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return float64(samples) / float64(c.sampleRate) * c.tempoBPM / 60.0
}

// SamplesToSeconds converts a sample count to seconds at the current rate.
func (c *Clock) SamplesToSeconds(samples int64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return float64(samples) / float64(c.sampleRate)
}

// SecondsToSamples converts seconds to a sample count at the current rate.
func (c *Clock) SecondsToSamples(seconds float64) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(math.Round(seconds * float64(c.sampleRate)))
}
