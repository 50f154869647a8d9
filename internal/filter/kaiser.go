// Package filter synthesizes fixed-point FIR coefficients for catalog
// entries so that a chosen cascade can be simulated.
//
// Catalog records carry only a tap count, a coefficient width and a
// measured rejection. DesignQuantized rebuilds a comparable filter: a
// Kaiser windowed-sinc lowpass whose β and transition band follow from the
// rejection and tap count, scaled so its largest coefficient fills the
// signed coefficient width, then rounded.
package filter

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tphakala/go-fir-cascade/internal/mathutil"
	"github.com/tphakala/go-fir-cascade/internal/simdops"
)

const (
	// DefaultCutoff is the normalized cutoff (fraction of the sample rate)
	// of synthesized filters: the -6 dB point of a half-band lowpass.
	DefaultCutoff = 0.25

	maxFilterTaps = 8191
	maxCoeffWidth = 32

	defaultResponsePoints = 1024
	minMagnitude          = 1e-12
	dbMultiplier          = 20.0
)

// ErrInvalidDesign indicates filter parameters that cannot be synthesized.
var ErrInvalidDesign = errors.New("invalid filter design")

// KaiserWindow generates a Kaiser window of the given length and β:
//
//	w[n] = I₀(β·sqrt(1 - ((n - α)/α)²)) / I₀(β),  α = (length-1)/2
//
// The window is symmetric and peaks at 1 in the center.
func KaiserWindow(length int, beta float64) []float64 {
	if length < 1 {
		return []float64{}
	}
	window := make([]float64, length)
	if length == 1 {
		window[0] = 1
		return window
	}

	alpha := float64(length-1) / 2
	norm := mathutil.BesselI0(beta)
	for n := range window {
		x := (float64(n) - alpha) / alpha
		window[n] = mathutil.BesselI0(beta*math.Sqrt(math.Max(0, 1-x*x))) / norm
	}
	return window
}

// Params describes a floating-point lowpass design.
type Params struct {
	Taps        int
	Cutoff      float64 // normalized, in (0, 0.5)
	Attenuation float64 // stopband attenuation in dB, selects β
}

// Validate checks if the design parameters are valid.
func (p Params) Validate() error {
	if p.Taps < 1 || p.Taps > maxFilterTaps {
		return fmt.Errorf("%w: %d taps outside [1, %d]", ErrInvalidDesign, p.Taps, maxFilterTaps)
	}
	if !(p.Cutoff > 0 && p.Cutoff < 0.5) {
		return fmt.Errorf("%w: cutoff %g outside (0, 0.5)", ErrInvalidDesign, p.Cutoff)
	}
	if !(p.Attenuation >= 0) {
		return fmt.Errorf("%w: attenuation %g dB must be >= 0", ErrInvalidDesign, p.Attenuation)
	}
	return nil
}

// DesignLowPass designs a Kaiser windowed-sinc lowpass with unity DC gain.
// The impulse response is symmetric (linear phase).
func DesignLowPass(p Params) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	window := KaiserWindow(p.Taps, mathutil.KaiserBeta(p.Attenuation))
	h := make([]float64, p.Taps)
	center := float64(p.Taps-1) / 2
	for n := range h {
		x := float64(n) - center
		if x == 0 {
			h[n] = 2 * p.Cutoff
		} else {
			h[n] = math.Sin(2*math.Pi*p.Cutoff*x) / (math.Pi * x)
		}
		h[n] *= window[n]
	}

	ops := simdops.Float64Ops()
	if sum := ops.Sum(h); math.Abs(sum) > minMagnitude {
		ops.Scale(h, h, 1/sum)
	}
	return h, nil
}

// Quantized is a synthesized fixed-point filter.
type Quantized struct {
	Taps       int
	CoeffWidth int
	Rejection  float64

	// Coeffs are signed integers with |c| <= CoeffLimit(CoeffWidth).
	Coeffs []int64

	// StopbandEdge is the normalized frequency where the design's
	// stopband begins.
	StopbandEdge float64
}

// CoeffLimit is the largest coefficient magnitude of a signed width-bit
// integer, except that one-bit coefficients may take ±1.
func CoeffLimit(width int) int64 {
	return max(1, int64(1)<<(width-1)-1)
}

// DesignQuantized synthesizes a taps-long filter with coeffWidth-bit
// signed coefficients approximating the given rejection. The largest
// coefficient is scaled to CoeffLimit(coeffWidth).
func DesignQuantized(taps, coeffWidth int, rejection float64) (*Quantized, error) {
	if coeffWidth < 1 || coeffWidth > maxCoeffWidth {
		return nil, fmt.Errorf("%w: coefficient width %d outside [1, %d]", ErrInvalidDesign, coeffWidth, maxCoeffWidth)
	}
	h, err := DesignLowPass(Params{Taps: taps, Cutoff: DefaultCutoff, Attenuation: rejection})
	if err != nil {
		return nil, err
	}

	var peak float64
	for _, v := range h {
		peak = math.Max(peak, math.Abs(v))
	}
	limit := CoeffLimit(coeffWidth)
	scale := float64(limit) / peak

	q := &Quantized{
		Taps:         taps,
		CoeffWidth:   coeffWidth,
		Rejection:    rejection,
		Coeffs:       make([]int64, taps),
		StopbandEdge: math.Min(0.5, DefaultCutoff+mathutil.TransitionWidth(rejection, taps)/2),
	}
	for i, v := range h {
		q.Coeffs[i] = int64(math.Round(v * scale))
	}
	return q, nil
}

// Float returns the coefficients as float64 values.
func (q *Quantized) Float() []float64 {
	out := make([]float64, len(q.Coeffs))
	for i, c := range q.Coeffs {
		out[i] = float64(c)
	}
	return out
}

// AbsSum returns Σ|c|, the worst-case gain of the filter.
func (q *Quantized) AbsSum() int64 {
	var s int64
	for _, c := range q.Coeffs {
		if c < 0 {
			s -= c
		} else {
			s += c
		}
	}
	return s
}

// Response holds the magnitude response of a filter.
type Response struct {
	// Frequencies, normalized to the sample rate, from 0 to 0.5.
	Frequencies []float64

	// Magnitude at each frequency (linear scale).
	Magnitude []float64
}

// ComputeResponse evaluates the magnitude response of coeffs on at least
// points+1 evenly spaced frequencies using a zero-padded real FFT.
func ComputeResponse(coeffs []float64, points int) Response {
	if points <= 0 {
		points = defaultResponsePoints
	}
	n := 1
	for n < 2*points || n < len(coeffs) {
		n *= 2
	}

	padded := make([]float64, n)
	copy(padded, coeffs)
	spectrum := fourier.NewFFT(n).Coefficients(nil, padded)

	r := Response{
		Frequencies: make([]float64, len(spectrum)),
		Magnitude:   make([]float64, len(spectrum)),
	}
	for k, c := range spectrum {
		r.Frequencies[k] = float64(k) / float64(n)
		r.Magnitude[k] = cmplx.Abs(c)
	}
	return r
}

// StopbandAttenuation returns the attenuation in dB of the worst stopband
// frequency (>= stopband) relative to the DC gain.
func StopbandAttenuation(coeffs []float64, stopband float64) float64 {
	r := ComputeResponse(coeffs, defaultResponsePoints)
	dc := r.Magnitude[0]
	if dc < minMagnitude {
		return 0
	}
	var worst float64
	for k, f := range r.Frequencies {
		if f >= stopband {
			worst = math.Max(worst, r.Magnitude[k])
		}
	}
	return -MagnitudeDB(worst / dc)
}

// MagnitudeDB converts linear magnitude to decibels.
func MagnitudeDB(magnitude float64) float64 {
	return dbMultiplier * math.Log10(math.Max(magnitude, minMagnitude))
}
