package automation

import (
	"sync"
	"sync/atomic"
)

// trackLanes is the immutable per-track view published to readers.
type trackLanes struct {
	mode  Mode
	lanes map[string]*Lane
}

// snapshot is an immutable view of every track's automation. A new snapshot
// replaces the old one wholesale; readers never see a partial update.
type snapshot struct {
	tracks map[string]trackLanes
}

// Store holds automation lanes for all tracks. It is single-writer (the
// control thread) and multi-reader: writes copy the affected track and swap
// an atomic snapshot pointer, so render-thread reads never wait on a lock.
type Store struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

func NewStore() *Store {
	s := &Store{}
	s.snap.Store(&snapshot{tracks: map[string]trackLanes{}})
	return s
}

// load returns the current published snapshot. Wait-free.
func (s *Store) load() *snapshot { return s.snap.Load() }

// publish swaps in a rebuilt snapshot. Callers hold s.mu.
func (s *Store) publish(mutate func(tracks map[string]trackLanes)) {
	old := s.snap.Load()
	tracks := make(map[string]trackLanes, len(old.tracks)+1)
	for id, tl := range old.tracks {
		tracks[id] = tl
	}
	mutate(tracks)
	s.snap.Store(&snapshot{tracks: tracks})
}

// Update replaces a track's lanes and mode. Lanes are deep-copied so callers
// may keep mutating their own copies.
func (s *Store) Update(trackID string, lanes map[string]*Lane, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]*Lane, len(lanes))
	for name, l := range lanes {
		cp[name] = l.clone()
	}
	s.publish(func(tracks map[string]trackLanes) {
		tracks[trackID] = trackLanes{mode: mode, lanes: cp}
	})
}

// SetMode changes a track's automation mode, keeping its lanes.
func (s *Store) SetMode(trackID string, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(func(tracks map[string]trackLanes) {
		tl := tracks[trackID]
		tl.mode = mode
		if tl.lanes == nil {
			tl.lanes = map[string]*Lane{}
		}
		tracks[trackID] = tl
	})
}

// Mode returns a track's automation mode. Unknown tracks are off.
func (s *Store) Mode(trackID string) Mode {
	tl, ok := s.load().tracks[trackID]
	if !ok {
		return ModeOff
	}
	return tl.mode
}

// Record writes a point into a track's lane. The write is accepted only in
// a recording-capable mode; the point value is clamped by the lane.
func (s *Store) Record(trackID, param string, p Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.load().tracks[trackID]
	if !ok || !cur.mode.CanRecord() {
		return false
	}
	lanes := make(map[string]*Lane, len(cur.lanes)+1)
	for name, l := range cur.lanes {
		lanes[name] = l
	}
	var lane *Lane
	if prev, ok := lanes[param]; ok {
		lane = prev.clone()
	} else {
		lane = NewLane(0, 0, 1)
	}
	lane.Add(p)
	lanes[param] = lane
	mode := cur.mode
	s.publish(func(tracks map[string]trackLanes) {
		tracks[trackID] = trackLanes{mode: mode, lanes: lanes}
	})
	return true
}

// Remove drops a track's automation entirely.
func (s *Store) Remove(trackID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(func(tracks map[string]trackLanes) {
		delete(tracks, trackID)
	})
}

// Value returns the parameter value at a beat, and whether automation
// applies. Tracks in off mode, unknown tracks, and unknown parameters
// report no value.
func (s *Store) Value(trackID, param string, beat float64) (float32, bool) {
	tl, ok := s.load().tracks[trackID]
	if !ok || !tl.mode.CanRead() {
		return 0, false
	}
	lane, ok := tl.lanes[param]
	if !ok {
		return 0, false
	}
	return lane.Value(beat), true
}

// ValuesAt resolves every readable parameter of the given tracks at one beat
// under a single snapshot load, so the render path pays one acquisition for
// many tracks.
func (s *Store) ValuesAt(beat float64, trackIDs ...string) map[string]map[string]float32 {
	snap := s.load()
	out := make(map[string]map[string]float32, len(trackIDs))
	for _, id := range trackIDs {
		tl, ok := snap.tracks[id]
		if !ok || !tl.mode.CanRead() || len(tl.lanes) == 0 {
			continue
		}
		vals := make(map[string]float32, len(tl.lanes))
		for name, lane := range tl.lanes {
			vals[name] = lane.Value(beat)
		}
		out[id] = vals
	}
	return out
}
