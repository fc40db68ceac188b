package automation

import (
	"math"
	"testing"
)

var allCurves = []CurveType{
	CurveStep, CurveLinear, CurveExponential,
	CurveLogarithmic, CurveSCurve, CurveSmooth,
}

func TestCurveEndpointsExact(t *testing.T) {
	for _, curve := range allCurves {
		for _, tension := range []float32{-1, 0, 0.5, 1} {
			got0 := Interpolate(curve, 0.2, 0.9, 0, tension)
			if math.Abs(float64(got0-0.2)) > 1e-3 {
				t.Fatalf("%v t=0: expected 0.2, got %f", curve, got0)
			}
			got1 := Interpolate(curve, 0.2, 0.9, 1, tension)
			if math.Abs(float64(got1-0.9)) > 1e-3 {
				t.Fatalf("%v t=1: expected 0.9, got %f", curve, got1)
			}
		}
	}
}

func TestStepHoldsUntilNextPoint(t *testing.T) {
	for _, tt := range []float64{0, 0.1, 0.5, 0.999} {
		if got := Interpolate(CurveStep, 0, 1, tt, 0); got != 0 {
			t.Fatalf("step at t=%f: expected 0, got %f", tt, got)
		}
	}
	if got := Interpolate(CurveStep, 0, 1, 1, 0); got != 1 {
		t.Fatalf("step at t=1: expected 1, got %f", got)
	}
}

func TestLinearMidpoint(t *testing.T) {
	if got := Interpolate(CurveLinear, 0, 1, 0.5, 0); math.Abs(float64(got)-0.5) > 1e-6 {
		t.Fatalf("expected 0.5, got %f", got)
	}
}

func TestExponentialLogarithmicComplement(t *testing.T) {
	// The curves mirror each other: exp(t) + log(1-t) == 1.
	for tt := 0.0; tt <= 1.0; tt += 0.05 {
		e := Interpolate(CurveExponential, 0, 1, tt, 0)
		l := Interpolate(CurveLogarithmic, 0, 1, 1-tt, 0)
		if math.Abs(float64(e+l)-1.0) > 0.01 {
			t.Fatalf("exp(%f)+log(%f) = %f, expected 1.0", tt, 1-tt, e+l)
		}
	}
}

func TestExponentialSlowStart(t *testing.T) {
	early := Interpolate(CurveExponential, 0, 1, 0.25, 0)
	if early >= 0.25 {
		t.Fatalf("exponential should lag linear early, got %f at t=0.25", early)
	}
	late := Interpolate(CurveLogarithmic, 0, 1, 0.25, 0)
	if late <= 0.25 {
		t.Fatalf("logarithmic should lead linear early, got %f at t=0.25", late)
	}
}

func TestSmoothMidpoint(t *testing.T) {
	got := Interpolate(CurveSmooth, 0, 1, 0.5, 0)
	if math.Abs(float64(got)-0.5) > 0.01 {
		t.Fatalf("smooth midpoint: expected ~0.5, got %f", got)
	}
}

func TestTensionStaysWithinEndpointRange(t *testing.T) {
	for _, curve := range allCurves {
		for _, tension := range []float32{-1, -0.5, 0.5, 1} {
			for tt := 0.0; tt <= 1.0; tt += 0.01 {
				got := Interpolate(curve, 0.3, 0.8, tt, tension)
				if got < 0.3-1e-6 || got > 0.8+1e-6 {
					t.Fatalf("%v tension=%f t=%f: %f escapes [0.3, 0.8]", curve, tension, tt, got)
				}
				// Descending segment too.
				got = Interpolate(curve, 0.8, 0.3, tt, tension)
				if got < 0.3-1e-6 || got > 0.8+1e-6 {
					t.Fatalf("%v tension=%f t=%f: %f escapes [0.3, 0.8] descending", curve, tension, tt, got)
				}
			}
		}
	}
}
