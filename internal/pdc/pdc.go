// Package pdc computes per-track delay compensation so that all tracks emit
// sound at a common instant despite differing processing-chain latency. The
// track with the highest latency receives zero delay; every other track is
// delayed by the difference.
package pdc

import (
	"sync"
	"sync/atomic"
)

// Stage is one processing element in a track's serial chain. Latency is the
// stage's reported delay in samples at the current sample rate. Bypassed
// stages contribute zero latency.
type Stage struct {
	Name     string
	Latency  int
	Bypassed bool
}

// Chain is a track's ordered processing chain.
type Chain []Stage

// Latency returns the serial sum of every active stage's latency.
func (c Chain) Latency() int {
	total := 0
	for _, st := range c {
		if st.Bypassed || st.Latency <= 0 {
			continue
		}
		total += st.Latency
	}
	return total
}

// Calculate returns the compensation delay per track for a set of track
// latencies: maxLatency - trackLatency, never negative. It is pure and
// idempotent; the same inputs always yield the same table. The exact same
// function serves live playback and offline export.
func Calculate(latencies map[string]int) map[string]int {
	max := 0
	for _, l := range latencies {
		if l > max {
			max = l
		}
	}
	out := make(map[string]int, len(latencies))
	for id, l := range latencies {
		if l < 0 {
			l = 0
		}
		d := max - l
		if d < 0 {
			d = 0
		}
		out[id] = d
	}
	return out
}

// Calculator owns the live compensation table. It is single-writer (the
// control thread rebuilds on chain changes) and multi-reader: the render
// path calls Delay once per track per callback, so reads are wait-free
// loads of an atomically published table.
type Calculator struct {
	mu      sync.Mutex // serializes rebuilds
	chains  map[string]Chain
	enabled atomic.Bool
	table   atomic.Pointer[compTable]
}

// compTable is the immutable published table. maxLatency is kept so a track
// missing from the table can be treated as zero-latency: it receives the
// full max delay and stays phase-aligned with the known tracks.
type compTable struct {
	delays     map[string]int
	maxLatency int
}

func NewCalculator() *Calculator {
	c := &Calculator{chains: map[string]Chain{}}
	c.enabled.Store(true)
	c.table.Store(&compTable{delays: map[string]int{}})
	return c
}

// SetEnabled toggles compensation globally. When disabled every track's
// delay is forced to zero.
func (c *Calculator) SetEnabled(on bool) {
	c.enabled.Store(on)
	c.mu.Lock()
	c.rebuildLocked()
	c.mu.Unlock()
}

// Enabled reports whether compensation is applied.
func (c *Calculator) Enabled() bool { return c.enabled.Load() }

// SetChain installs or replaces a track's processing chain and rebuilds the
// table. An empty chain is a valid zero-latency track.
func (c *Calculator) SetChain(trackID string, chain Chain) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make(Chain, len(chain))
	copy(cp, chain)
	c.chains[trackID] = cp
	c.rebuildLocked()
}

// RemoveTrack drops a track and rebuilds the table.
func (c *Calculator) RemoveTrack(trackID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chains, trackID)
	c.rebuildLocked()
}

// SetBypassed toggles one stage of a track's chain by name and rebuilds.
func (c *Calculator) SetBypassed(trackID, stageName string, bypassed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chain, ok := c.chains[trackID]
	if !ok {
		return
	}
	for i := range chain {
		if chain[i].Name == stageName {
			chain[i].Bypassed = bypassed
		}
	}
	c.rebuildLocked()
}

// Rebuild recomputes and republishes the table from the current chains.
// Called on sample-rate changes, where stages may report new latencies.
func (c *Calculator) Rebuild() {
	c.mu.Lock()
	c.rebuildLocked()
	c.mu.Unlock()
}

// rebuildLocked swaps in a freshly computed table. Readers observe either
// the fully-old or fully-new table, never a partial one.
func (c *Calculator) rebuildLocked() {
	next := &compTable{delays: make(map[string]int, len(c.chains))}
	if c.enabled.Load() {
		lat := make(map[string]int, len(c.chains))
		for id, chain := range c.chains {
			l := chain.Latency()
			lat[id] = l
			if l > next.maxLatency {
				next.maxLatency = l
			}
		}
		next.delays = Calculate(lat)
	} else {
		for id := range c.chains {
			next.delays[id] = 0
		}
	}
	c.table.Store(next)
}

// Delay returns the compensation delay for a track in samples. A track
// missing from the table is treated as zero latency: it gets the full max
// delay so it stays aligned. Wait-free; safe from the render callback.
func (c *Calculator) Delay(trackID string) int {
	t := c.table.Load()
	if d, ok := t.delays[trackID]; ok {
		return d
	}
	return t.maxLatency
}

// Table returns a copy of the current compensation table.
func (c *Calculator) Table() map[string]int {
	t := c.table.Load()
	out := make(map[string]int, len(t.delays))
	for id, d := range t.delays {
		out[id] = d
	}
	return out
}

// TrackLatency returns the current summed latency of a track's chain.
// Unknown tracks report zero.
func (c *Calculator) TrackLatency(trackID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chains[trackID].Latency()
}
