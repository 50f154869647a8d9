// Package mathutil provides the special functions and Kaiser design
// formulas used to synthesize catalog filters for simulation.
package mathutil

import (
	"math"
)

// BesselI0 computes the modified Bessel function of the first kind, order
// zero, by its power series
//
//	I₀(x) = Σ_k ((x/2)^k / k!)²
//
// The series converges for every x; Kaiser windows only need |x| <= ~20,
// where fewer than besselMaxTerms terms reach full precision.
func BesselI0(x float64) float64 {
	half := x / 2
	term := 1.0
	sum := 1.0
	for k := 1; k <= besselMaxTerms; k++ {
		f := half / float64(k)
		term *= f * f
		sum += term
		if term < besselEpsilon*sum {
			break
		}
	}
	return sum
}

// KaiserBeta computes the Kaiser window β parameter from the desired
// stopband attenuation in decibels (Kaiser & Schafer):
//
//   - att > 50 dB: β = 0.1102 (att - 8.7)
//   - 21 dB <= att <= 50 dB: β = 0.5842 (att - 21)^0.4 + 0.07886 (att - 21)
//   - att < 21 dB: β = 0
func KaiserBeta(attenuation float64) float64 {
	switch {
	case attenuation > kaiserAttHigh:
		return kaiserBetaHighCoeff * (attenuation - kaiserBetaHighOffset)
	case attenuation >= kaiserAttMedium:
		d := attenuation - kaiserAttMedium
		return kaiserBetaMediumCoeff1*math.Pow(d, kaiserBetaMediumPower) + kaiserBetaMediumCoeff2*d
	default:
		return 0
	}
}

// EstimateFilterLength estimates the tap count a Kaiser design needs for
// the given attenuation and normalized transition bandwidth:
//
//	N ≈ (att - 8) / (2.285 · 2π · Δf) + 1
//
// The result is at least minFilterLength.
func EstimateFilterLength(attenuation, transitionBW float64) int {
	if transitionBW <= 0 {
		transitionBW = defaultTransitionBW
	}
	n := int(math.Ceil(kaiserExcess(attenuation)/(kaiserLengthCoeff*2*math.Pi*transitionBW))) + 1
	return max(n, minFilterLength)
}

// TransitionWidth inverts EstimateFilterLength: the normalized transition
// bandwidth a taps-long Kaiser design achieves at the given attenuation.
// It returns 0.5 (the whole band) for taps < 2.
func TransitionWidth(attenuation float64, taps int) float64 {
	if taps < 2 {
		return maxTransitionBW
	}
	w := kaiserExcess(attenuation) / (kaiserLengthCoeff * 2 * math.Pi * float64(taps-1))
	return min(w, maxTransitionBW)
}

// kaiserExcess is the attenuation term of the length formula, clamped so
// that rectangular designs still get a positive transition width.
func kaiserExcess(attenuation float64) float64 {
	return math.Max(attenuation-kaiserLengthOffset, minKaiserExcess)
}
