package automation

import "sort"

// Point is a single automation control point. Value is in the lane's
// parameter range; Curve shapes the segment starting at this point.
type Point struct {
	Beat    float64
	Value   float32
	Curve   CurveType
	Tension float32
}

// Lane is a time-ordered sequence of control points driving one parameter.
// Points are kept sorted by beat; values are clamped to [Min, Max] on write.
// Lookup never extrapolates backward: before the first point the lane's
// initial value holds, after the last point the last value holds.
type Lane struct {
	Initial float32
	Min     float32
	Max     float32
	points  []Point
}

// NewLane creates a lane for a parameter with the given range and initial
// (default) value. A zero range is treated as the normalized 0..1 range.
func NewLane(initial, min, max float32) *Lane {
	if min >= max {
		min, max = 0, 1
	}
	return &Lane{
		Initial: clamp(initial, min, max),
		Min:     min,
		Max:     max,
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Add inserts a point, clamping its value into the lane range and keeping
// the points sorted by beat. Duplicate beats are allowed; later inserts land
// after earlier points at the same beat.
func (l *Lane) Add(p Point) {
	p.Value = clamp(p.Value, l.Min, l.Max)
	i := sort.Search(len(l.points), func(i int) bool {
		return l.points[i].Beat > p.Beat
	})
	l.points = append(l.points, Point{})
	copy(l.points[i+1:], l.points[i:])
	l.points[i] = p
}

// SetPoints replaces the lane contents, clamping values and re-sorting.
func (l *Lane) SetPoints(pts []Point) {
	l.points = make([]Point, len(pts))
	copy(l.points, pts)
	for i := range l.points {
		l.points[i].Value = clamp(l.points[i].Value, l.Min, l.Max)
	}
	sort.SliceStable(l.points, func(i, j int) bool {
		return l.points[i].Beat < l.points[j].Beat
	})
}

// Points returns the lane's points in beat order.
func (l *Lane) Points() []Point { return l.points }

// Len returns the number of points in the lane.
func (l *Lane) Len() int { return len(l.points) }

// Clear removes all points.
func (l *Lane) Clear() { l.points = nil }

// Value returns the lane value at the given beat. Segment interpolation uses
// the first point's curve type; lookup is O(log n) over the sorted points.
func (l *Lane) Value(beat float64) float32 {
	n := len(l.points)
	if n == 0 || beat < l.points[0].Beat {
		return l.Initial
	}
	last := l.points[n-1]
	if beat >= last.Beat {
		return last.Value
	}
	// Index of the first point strictly after beat; the segment starts at i-1.
	i := sort.Search(n, func(i int) bool {
		return l.points[i].Beat > beat
	})
	p0 := l.points[i-1]
	p1 := l.points[i]
	span := p1.Beat - p0.Beat
	if span <= 0 {
		return p1.Value
	}
	t := (beat - p0.Beat) / span
	return Interpolate(p0.Curve, p0.Value, p1.Value, t, p0.Tension)
}

// clone returns a deep copy used for copy-on-write snapshot publication.
func (l *Lane) clone() *Lane {
	cp := &Lane{Initial: l.Initial, Min: l.Min, Max: l.Max}
	cp.points = make([]Point, len(l.points))
	copy(cp.points, l.points)
	return cp
}
