// Package bitgrowth holds the fixed-point word-width arithmetic of a FIR
// cascade: how many bits a filter adds to the data it processes, how much
// area a stage costs and how many bits a given rejection needs.
//
// Every function is pure. The optimization model encodes the same rules as
// linear constraints; the extractor uses these functions to cross-check a
// solver assignment.
package bitgrowth

import (
	"fmt"
	"math"
	"math/bits"
)

// DBPerBit is the quantization-noise to word-width relationship used by the
// headroom constraint: each bit of word width buys 6 dB of dynamic range.
// It is a fixed model parameter and intentionally not configurable.
const DBPerBit = 6.0

// Rule selects how the width added by a filter is derived from its
// coefficient width and tap count.
type Rule int

const (
	// RuleWorstCase accounts for summing cardC products of piC bits:
	// piC + ceil(log2(cardC)).
	RuleWorstCase Rule = iota

	// RuleCoefficientOnly adds the coefficient width alone. This matches
	// the later model variant where accumulation growth is absorbed by the
	// shift.
	RuleCoefficientOnly
)

// String returns the rule name used in reports and flags.
func (r Rule) String() string {
	switch r {
	case RuleWorstCase:
		return "worst-case"
	case RuleCoefficientOnly:
		return "coefficient-only"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

// ParseRule maps a flag value back to a Rule.
func ParseRule(s string) (Rule, error) {
	switch s {
	case "worst-case", "worstcase", "":
		return RuleWorstCase, nil
	case "coefficient-only", "coeff":
		return RuleCoefficientOnly, nil
	default:
		return 0, fmt.Errorf("unknown growth rule %q", s)
	}
}

// CeilLog2 returns ceil(log2(n)) for n >= 1, computed on integers so that
// exact powers of two never round up. CeilLog2(1) is 0.
func CeilLog2(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}

// AddedWidth returns the number of bits a filter with the given tap count
// and coefficient width adds to its input word.
func AddedWidth(rule Rule, taps, coeffWidth int) int {
	if rule == RuleCoefficientOnly || taps <= 1 {
		return coeffWidth
	}
	return coeffWidth + CeilLog2(uint64(taps))
}

// StageArea is the area proxy of a stage: one multiplier of
// (coeffWidth + inWidth) bits per tap.
func StageArea(taps, coeffWidth, inWidth int) float64 {
	return float64(taps) * float64(coeffWidth+inWidth)
}

// OutputWidth is the width leaving a stage after the filter added `added`
// bits and the result was shifted right by `shift`.
func OutputWidth(inWidth, added, shift int) int {
	return inWidth + added - shift
}

// HeadroomBits is the minimum word width required to carry a signal with
// the given rejection in dB.
func HeadroomBits(rejection float64) float64 {
	return rejection / DBPerBit
}

// MaxShift is the largest shift that keeps at least HeadroomBits(rejection)
// bits after a stage. It returns a negative value when even a zero shift
// cannot provide the headroom.
func MaxShift(inWidth, added int, rejection float64) int {
	return int(math.Floor(float64(inWidth+added) - HeadroomBits(rejection)))
}
