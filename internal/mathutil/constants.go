package mathutil

// Bessel series limits
const (
	besselMaxTerms = 200
	besselEpsilon  = 1e-17
)

// Kaiser window formula constants
// From Kaiser & Schafer's empirical formulas
const (
	kaiserAttHigh   = 50.0 // High attenuation threshold (dB)
	kaiserAttMedium = 21.0 // Medium attenuation threshold (dB)

	kaiserBetaHighCoeff  = 0.1102
	kaiserBetaHighOffset = 8.7

	kaiserBetaMediumCoeff1 = 0.5842
	kaiserBetaMediumPower  = 0.4
	kaiserBetaMediumCoeff2 = 0.07886
)

// Filter length estimation constants
const (
	kaiserLengthOffset = 8.0   // Attenuation offset in Kaiser formula
	kaiserLengthCoeff  = 2.285 // Multiplier in Kaiser formula
	minKaiserExcess    = 1.0   // Floor of att - 8 for low attenuations

	minFilterLength     = 1
	defaultTransitionBW = 0.01 // Prevent division by zero
	maxTransitionBW     = 0.5  // Whole band, normalized to the sample rate
)
