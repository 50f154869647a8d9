// Package simdops routes the vector kernels used by the model evaluator and
// the fixed-point simulator to tphakala/simd.
//
// Every value passed through these kernels is an integer (sample, tap,
// coefficient) or a model coefficient, so float64 arithmetic is exact as
// long as magnitudes stay below 2^53. Callers that cannot guarantee that
// check ExactLimit first.
package simdops

import (
	"github.com/tphakala/simd/c128"
	"github.com/tphakala/simd/f64"
)

// ExactLimit is the largest magnitude float64 represents without losing
// integer precision.
const ExactLimit = 1 << 53

// Ops bundles the float64 kernels. Function pointers keep call sites
// independent of the SIMD backend selected at init.
type Ops struct {
	// DotProduct returns Σ a[i]*b[i] over the shorter of the two slices.
	DotProduct func(a, b []float64) float64

	// ConvolveValid computes the valid part of sliding signal against
	// kernel: len(dst) = len(signal) - len(kernel) + 1.
	ConvolveValid func(dst, signal, kernel []float64)

	// Sum returns the sum of all elements.
	Sum func(a []float64) float64

	// Scale multiplies each element by s: dst[i] = a[i] * s.
	Scale func(dst, a []float64, s float64)

	// MulComplex multiplies spectra element-wise: dst[i] = a[i] * b[i].
	MulComplex func(dst, a, b []complex128)
}

var ops64 = Ops{
	DotProduct:    f64.DotProduct,
	ConvolveValid: f64.ConvolveValid,
	Sum:           f64.Sum,
	Scale:         f64.Scale,
	MulComplex:    c128.Mul,
}

// Float64Ops returns the float64 operations.
func Float64Ops() *Ops {
	return &ops64
}

// SparseDot returns Σ coef[k]*x[idx[k]]. The gather goes through a scratch
// buffer so the multiply-add runs on the SIMD kernel; scratch is grown as
// needed and returned for reuse.
func SparseDot(coef []float64, idx []int, x, scratch []float64) (float64, []float64) {
	if cap(scratch) < len(idx) {
		scratch = make([]float64, len(idx))
	}
	scratch = scratch[:len(idx)]
	for k, j := range idx {
		scratch[k] = x[j]
	}
	return ops64.DotProduct(coef, scratch), scratch
}
