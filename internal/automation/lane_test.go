package automation

import (
	"math"
	"testing"
)

func TestLaneBoundaryPolicy(t *testing.T) {
	l := NewLane(0.25, 0, 1)
	l.Add(Point{Beat: 2, Value: 0.5, Curve: CurveLinear})
	l.Add(Point{Beat: 6, Value: 1.0, Curve: CurveLinear})
	if got := l.Value(0); got != 0.25 {
		t.Fatalf("before first point: expected initial 0.25, got %f", got)
	}
	if got := l.Value(1.999); got != 0.25 {
		t.Fatalf("just before first point: expected initial, got %f", got)
	}
	if got := l.Value(100); got != 1.0 {
		t.Fatalf("after last point: expected hold 1.0, got %f", got)
	}
}

func TestLaneLinearScenario(t *testing.T) {
	// 120 BPM, {(0,0,linear),(4,1,linear)}: value at beat 2 is 0.5.
	l := NewLane(0, 0, 1)
	l.Add(Point{Beat: 0, Value: 0, Curve: CurveLinear})
	l.Add(Point{Beat: 4, Value: 1, Curve: CurveLinear})
	if got := l.Value(2); math.Abs(float64(got)-0.5) > 0.001 {
		t.Fatalf("expected 0.5 at beat 2, got %f", got)
	}
}

func TestLaneClampsOnWrite(t *testing.T) {
	l := NewLane(0, 0, 1)
	l.Add(Point{Beat: 0, Value: -3, Curve: CurveLinear})
	l.Add(Point{Beat: 1, Value: 7, Curve: CurveLinear})
	pts := l.Points()
	if pts[0].Value != 0 || pts[1].Value != 1 {
		t.Fatalf("expected clamped values [0 1], got [%f %f]", pts[0].Value, pts[1].Value)
	}
}

func TestLaneKeepsSortedOrderOnOutOfOrderInsert(t *testing.T) {
	l := NewLane(0, 0, 1)
	l.Add(Point{Beat: 8, Value: 0.8})
	l.Add(Point{Beat: 2, Value: 0.2})
	l.Add(Point{Beat: 5, Value: 0.5})
	prev := math.Inf(-1)
	for _, p := range l.Points() {
		if p.Beat < prev {
			t.Fatalf("points out of order: %#v", l.Points())
		}
		prev = p.Beat
	}
}

func TestLaneSetPointsResorts(t *testing.T) {
	l := NewLane(0, 0, 1)
	l.SetPoints([]Point{
		{Beat: 4, Value: 1},
		{Beat: 0, Value: 0},
	})
	if l.Points()[0].Beat != 0 {
		t.Fatalf("expected re-sort on SetPoints, got %#v", l.Points())
	}
}

func TestLaneSegmentUsesFirstPointCurve(t *testing.T) {
	l := NewLane(0, 0, 1)
	l.Add(Point{Beat: 0, Value: 0, Curve: CurveStep})
	l.Add(Point{Beat: 4, Value: 1, Curve: CurveLinear})
	if got := l.Value(3.9); got != 0 {
		t.Fatalf("step segment should hold v0, got %f", got)
	}
	if got := l.Value(4); got != 1 {
		t.Fatalf("value at next point's beat should be v1, got %f", got)
	}
}

func TestLaneDuplicateBeats(t *testing.T) {
	l := NewLane(0, 0, 1)
	l.Add(Point{Beat: 1, Value: 0.2, Curve: CurveLinear})
	l.Add(Point{Beat: 1, Value: 0.8, Curve: CurveLinear})
	// Zero-width segment: queries at the beat land on the later point.
	if got := l.Value(1); got != 0.8 {
		t.Fatalf("expected 0.8 at duplicate beat, got %f", got)
	}
}
