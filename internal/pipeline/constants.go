package pipeline

// Sample limits
const (
	// maxSampleWidth leaves headroom below the 64-bit accumulator.
	maxSampleWidth = 62

	// fftExactLimit bounds Σ|x|·|c| for the FFT path; rounding recovers
	// exact integers well below float64's 2^53.
	fftExactLimit = 1 << 40
)

// FFT convolution constants
const (
	// Minimum kernel length to use FFT convolution (below this, direct
	// SIMD convolution is faster).
	minKernelForFFT = 400

	// Default FFT block size (power of 2 for efficiency)
	defaultFFTBlockSize = 512
)
