package automation

import "math"

// CurveType selects the interpolation shape of a segment. The shape is a
// property of the segment's starting point.
type CurveType int

const (
	CurveStep CurveType = iota
	CurveLinear
	CurveExponential
	CurveLogarithmic
	CurveSCurve
	CurveSmooth
)

func (c CurveType) String() string {
	switch c {
	case CurveStep:
		return "step"
	case CurveLinear:
		return "linear"
	case CurveExponential:
		return "exponential"
	case CurveLogarithmic:
		return "logarithmic"
	case CurveSCurve:
		return "sCurve"
	case CurveSmooth:
		return "smooth"
	default:
		return "unknown"
	}
}

// curveExponent is the normalized-shape exponent shared by the exponential
// and logarithmic curves, chosen so the two are exact complements:
// exp(t) + log(t) == 1 over the unit range.
const curveExponent = 2.5

// shape maps t in [0,1] to the normalized curve value in [0,1].
// Every shape is exactly 0 at t=0 and exactly 1 at t=1.
func shape(curve CurveType, t float64) float64 {
	switch curve {
	case CurveStep:
		if t >= 1 {
			return 1
		}
		return 0
	case CurveExponential:
		// Slow start, fast end.
		return math.Pow(t, curveExponent)
	case CurveLogarithmic:
		// Fast start, slow end; complement of exponential.
		return 1 - math.Pow(1-t, curveExponent)
	case CurveSCurve:
		// Smootherstep: slow-fast-slow with exact endpoints.
		return t * t * t * (t*(t*6-15) + 10)
	case CurveSmooth:
		// Cosine ease-in-out; exactly 0.5 at the midpoint.
		return 0.5 * (1 - math.Cos(math.Pi*t))
	default:
		return t
	}
}

// Interpolate returns the value between v0 and v1 at normalized position t,
// using the given curve and tension. Tension perturbs the sharpness of the
// shape but the result never leaves [min(v0,v1), max(v0,v1)].
func Interpolate(curve CurveType, v0, v1 float32, t float64, tension float32) float32 {
	if t <= 0 {
		return v0
	}
	if t >= 1 {
		return v1
	}
	s := shape(curve, t)
	if tension != 0 && curve != CurveStep {
		// Raising the unit-range shape to a positive power keeps it in
		// [0,1], so the interpolated value stays inside the endpoint range.
		s = math.Pow(s, math.Exp2(float64(tension)))
	}
	return v0 + float32(s)*(v1-v0)
}
