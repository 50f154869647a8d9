package pipeline

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tphakala/go-fir-cascade/internal/simdops"
)

// fftConvolver performs overlap-save FFT convolution for long kernels with
// the same "valid" semantics as simdops ConvolveValid. Outputs are rounded
// to the nearest integer, which is exact while every product sum stays
// below fftExactLimit.
//
// Overlap-save:
//  1. Input is processed in blocks of fftSize samples with kernelLen-1 overlap
//  2. Each block yields blockSize = fftSize - kernelLen + 1 valid outputs
//  3. The first kernelLen-1 outputs of a block wrap around and are discarded
type fftConvolver struct {
	fft       *fourier.FFT
	ops       *simdops.Ops
	fftSize   int
	blockSize int
	kernelLen int
	scale     float64 // gonum's inverse transform is not normalized

	kernelFFT []complex128

	block   []float64
	spec    []complex128
	product []complex128
	inverse []float64
}

// newFFTConvolver returns nil for kernels too short to benefit.
func newFFTConvolver(kernel []float64, ops *simdops.Ops) *fftConvolver {
	kernelLen := len(kernel)
	if kernelLen < minKernelForFFT {
		return nil
	}

	fftSize := defaultFFTBlockSize
	for fftSize < 2*kernelLen {
		fftSize *= 2
	}
	fft := fourier.NewFFT(fftSize)

	// Circular convolution computes Σ x[(n-k) mod N]·h[k]; reversing the
	// kernel turns it into the sliding Σ x[n+k]·h[k] of ConvolveValid.
	padded := make([]float64, fftSize)
	for i := range kernelLen {
		padded[i] = kernel[kernelLen-1-i]
	}
	bins := fftSize/2 + 1

	return &fftConvolver{
		fft:       fft,
		ops:       ops,
		fftSize:   fftSize,
		blockSize: fftSize - kernelLen + 1,
		kernelLen: kernelLen,
		scale:     1 / float64(fftSize),
		kernelFFT: fft.Coefficients(nil, padded),
		block:     make([]float64, fftSize),
		spec:      make([]complex128, bins),
		product:   make([]complex128, bins),
		inverse:   make([]float64, fftSize),
	}
}

// convolve writes len(signal)-kernelLen+1 rounded outputs to dst.
func (c *fftConvolver) convolve(dst, signal []float64) {
	outLen := len(signal) - c.kernelLen + 1
	if outLen <= 0 || len(dst) < outLen {
		return
	}
	overlap := c.kernelLen - 1

	for out := 0; out < outLen; out += c.blockSize {
		clear(c.block)
		copy(c.block, signal[out:min(out+c.fftSize, len(signal))])

		c.spec = c.fft.Coefficients(c.spec, c.block)
		c.ops.MulComplex(c.product, c.spec, c.kernelFFT)
		c.inverse = c.fft.Sequence(c.inverse, c.product)
		c.ops.Scale(c.inverse, c.inverse, c.scale)

		n := min(c.blockSize, outLen-out)
		for i := range n {
			dst[out+i] = math.Round(c.inverse[overlap+i])
		}
	}
}
