// Package pipeline simulates a fixed-point FIR cascade on integer samples.
//
// Every stage convolves its input with integer coefficients, then applies
// an arithmetic right shift. The pipeline is streaming: each stage keeps the
// last taps-1 input samples so consecutive Process calls behave like one
// long input. Per stage it records the peak magnitudes before and after the
// shift, which lets a caller compare the word widths a real signal needs
// with the widths the optimizer modelled.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/tphakala/go-fir-cascade/internal/simdops"
)

var (
	// ErrInvalidStage indicates a stage that cannot be simulated.
	ErrInvalidStage = errors.New("invalid pipeline stage")

	// ErrInputWidth indicates an input sample wider than the input width.
	ErrInputWidth = errors.New("sample exceeds input width")

	// ErrAccumulatorOverflow indicates a stage whose products could exceed
	// a 64-bit accumulator.
	ErrAccumulatorOverflow = errors.New("accumulator overflow")
)

// StageSpec describes one simulated stage.
type StageSpec struct {
	Name   string
	Coeffs []int64
	Shift  int

	// Width is the modelled output width in bits. Zero disables the
	// overflow check.
	Width int
}

// StageStats reports what a stage observed since the last Reset.
type StageStats struct {
	Name       string
	PeakFIR    int64 // largest magnitude after the FIR, before the shift
	PeakOut    int64 // largest magnitude after the shift
	FIRWidth   int   // signed width of PeakFIR
	OutWidth   int   // signed width of PeakOut
	ModelWidth int
}

// Overflow reports whether the observed output needed more bits than the
// model granted.
func (s StageStats) Overflow() bool {
	return s.ModelWidth > 0 && s.OutWidth > s.ModelWidth
}

// SignedWidth returns the number of bits of a two's complement integer
// holding v, sign bit included. SignedWidth(0) is 1.
func SignedWidth(v int64) int {
	if v < 0 {
		v = ^v
	}
	return bits.Len64(uint64(v)) + 1
}

type stage struct {
	spec    StageSpec
	kernel  []float64 // coefficients reversed for ConvolveValid
	absSum  int64
	history []int64
	conv    *fftConvolver
	stats   StageStats

	signal []float64
	acc    []float64
}

// Pipeline is a chain of FIR and shift stages. It is not safe for
// concurrent use.
type Pipeline struct {
	inWidth int
	stages  []*stage
	ops     *simdops.Ops
}

// New builds a pipeline for inWidth-bit signed input samples.
func New(inWidth int, specs []StageSpec) (*Pipeline, error) {
	if inWidth < 1 || inWidth > maxSampleWidth {
		return nil, fmt.Errorf("%w: input width %d outside [1, %d]", ErrInvalidStage, inWidth, maxSampleWidth)
	}

	p := &Pipeline{
		inWidth: inWidth,
		stages:  make([]*stage, 0, len(specs)),
		ops:     simdops.Float64Ops(),
	}
	for i, spec := range specs {
		if len(spec.Coeffs) == 0 {
			return nil, fmt.Errorf("%w: stage %d (%s) has no coefficients", ErrInvalidStage, i, spec.Name)
		}
		if spec.Shift < 0 || spec.Shift >= maxSampleWidth {
			return nil, fmt.Errorf("%w: stage %d (%s) shift %d outside [0, %d)", ErrInvalidStage, i, spec.Name, spec.Shift, maxSampleWidth)
		}

		st := &stage{
			spec:    spec,
			kernel:  make([]float64, len(spec.Coeffs)),
			history: make([]int64, len(spec.Coeffs)-1),
			stats:   StageStats{Name: spec.Name, ModelWidth: spec.Width},
		}
		for k, c := range spec.Coeffs {
			st.kernel[len(spec.Coeffs)-1-k] = float64(c)
			if c == math.MinInt64 {
				return nil, fmt.Errorf("%w: stage %d (%s) coefficient out of range", ErrInvalidStage, i, spec.Name)
			}
			st.absSum += abs(c)
		}
		st.conv = newFFTConvolver(st.kernel, p.ops)
		p.stages = append(p.stages, st)
	}
	return p, nil
}

// Process pushes block through every stage and returns the cascade output,
// one sample per input sample.
func (p *Pipeline) Process(block []int64) ([]int64, error) {
	for i, x := range block {
		if SignedWidth(x) > p.inWidth {
			return nil, fmt.Errorf("%w: sample %d is %d, input width is %d bits", ErrInputWidth, i, x, p.inWidth)
		}
	}

	cur := block
	for i, st := range p.stages {
		out, err := st.process(cur, p.ops)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, st.spec.Name, err)
		}
		cur = out
	}
	if len(p.stages) == 0 {
		cur = append([]int64(nil), block...)
	}
	return cur, nil
}

func (st *stage) process(in []int64, ops *simdops.Ops) ([]int64, error) {
	taps := len(st.kernel)
	n := len(in)
	if n == 0 {
		return []int64{}, nil
	}

	var peakIn int64
	for _, x := range in {
		peakIn = max(peakIn, abs(x))
	}
	for _, x := range st.history {
		peakIn = max(peakIn, abs(x))
	}
	bound := float64(peakIn) * float64(st.absSum)
	if bound >= math.MaxInt64 {
		return nil, fmt.Errorf("%w: |x| <= %d times Σ|c| = %d", ErrAccumulatorOverflow, peakIn, st.absSum)
	}

	out := make([]int64, n)
	if bound < simdops.ExactLimit {
		st.signal = grow(st.signal, taps-1+n)
		st.acc = grow(st.acc, n)
		for k, x := range st.history {
			st.signal[k] = float64(x)
		}
		for k, x := range in {
			st.signal[taps-1+k] = float64(x)
		}
		if st.conv != nil && bound < fftExactLimit {
			st.conv.convolve(st.acc, st.signal)
		} else {
			ops.ConvolveValid(st.acc, st.signal, st.kernel)
		}
		for k, y := range st.acc {
			out[k] = int64(y)
		}
	} else {
		st.convolveInt(out, in)
	}

	for k, y := range out {
		st.stats.PeakFIR = max(st.stats.PeakFIR, abs(y))
		y >>= st.spec.Shift
		st.stats.PeakOut = max(st.stats.PeakOut, abs(y))
		out[k] = y
	}
	st.stats.FIRWidth = SignedWidth(st.stats.PeakFIR)
	st.stats.OutWidth = SignedWidth(st.stats.PeakOut)

	st.keepHistory(in)
	return out, nil
}

// convolveInt is the exact 64-bit path for accumulators beyond float64's
// integer range.
func (st *stage) convolveInt(out, in []int64) {
	taps := len(st.spec.Coeffs)
	at := func(i int) int64 { // i indexes history ++ in
		if i < len(st.history) {
			return st.history[i]
		}
		return in[i-len(st.history)]
	}
	for k := range out {
		var acc int64
		for j, c := range st.spec.Coeffs {
			acc += c * at(k+taps-1-j)
		}
		out[k] = acc
	}
}

func (st *stage) keepHistory(in []int64) {
	h := len(st.history)
	if h == 0 {
		return
	}
	if len(in) >= h {
		copy(st.history, in[len(in)-h:])
		return
	}
	copy(st.history, st.history[len(in):])
	copy(st.history[h-len(in):], in)
}

// Reset clears the stage histories and statistics.
func (p *Pipeline) Reset() {
	for _, st := range p.stages {
		clear(st.history)
		st.stats = StageStats{Name: st.spec.Name, ModelWidth: st.spec.Width}
	}
}

// Stats returns a snapshot of the per-stage statistics.
func (p *Pipeline) Stats() []StageStats {
	out := make([]StageStats, len(p.stages))
	for i, st := range p.stages {
		out[i] = st.stats
	}
	return out
}

// Latency returns the group delay of the cascade in samples, assuming
// linear-phase stages.
func (p *Pipeline) Latency() int {
	var n int
	for _, st := range p.stages {
		n += (len(st.kernel) - 1) / 2
	}
	return n
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func grow(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}
