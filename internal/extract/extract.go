// Package extract turns a solver assignment back into a per-stage cascade
// description and re-verifies it against the cascade rules.
//
// Extraction never repairs a solution. Binary and integer columns must sit
// within Tolerance of an integer; after rounding, every stage must satisfy
// the at-most-one selection, the width recurrence, the pass-through shift
// rule, the area and rejection definitions and the headroom bound, and the
// totals must honor the budget. Any violation is reported as
// ErrNumericInconsistency naming the stage and rule.
package extract

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/go-fir-cascade/internal/bitgrowth"
	"github.com/tphakala/go-fir-cascade/internal/builder"
	"github.com/tphakala/go-fir-cascade/internal/catalog"
	"github.com/tphakala/go-fir-cascade/internal/solver"
)

// Tolerance is the integrality and feasibility tolerance applied to solver
// values.
const Tolerance = 1e-6

var (
	// ErrInfeasible reports that no cascade satisfies the budget.
	ErrInfeasible = errors.New("no cascade satisfies the constraints")

	// ErrUnbounded reports an unbounded objective. Cascade models are
	// bounded, so this always indicates an internal inconsistency.
	ErrUnbounded = errors.New("cascade model is unbounded")

	// ErrNumericInconsistency reports a solver assignment that violates
	// the cascade rules beyond Tolerance.
	ErrNumericInconsistency = errors.New("solver assignment is numerically inconsistent")
)

// SelectedFilter describes one stage of the chosen cascade. Filter is nil
// and FilterIndex is -1 for a pass-through stage.
type SelectedFilter struct {
	Stage       int
	Filter      *catalog.FilterConfiguration
	FilterIndex int
	Area        float64
	Rejection   float64
	Shift       int
	InWidth     int
	AddedWidth  int
	OutWidth    int
}

// PassThrough reports whether the stage has no filter.
func (s SelectedFilter) PassThrough() bool {
	return s.Filter == nil
}

// Selection is the complete extracted cascade.
type Selection struct {
	Stages         []SelectedFilter
	TotalArea      float64
	TotalRejection float64
	FinalWidth     int
	Objective      float64
}

// Selected returns the number of stages with a filter.
func (s *Selection) Selected() int {
	n := 0
	for i := range s.Stages {
		if !s.Stages[i].PassThrough() {
			n++
		}
	}
	return n
}

// Extract validates sol against the model described by cat, l and p and
// returns the cascade it encodes.
func Extract(cat *catalog.Catalog, l *builder.Layout, p builder.Params, sol *solver.Solution) (*Selection, error) {
	if sol == nil {
		return nil, fmt.Errorf("%w: no solution", ErrNumericInconsistency)
	}
	switch sol.Status {
	case solver.Optimal:
	case solver.Infeasible:
		return nil, ErrInfeasible
	case solver.Unbounded:
		return nil, ErrUnbounded
	default:
		return nil, fmt.Errorf("%w: unknown status %s", ErrNumericInconsistency, sol.Status)
	}

	p = p.WithDefaults()
	if l.Stages() != p.Stages || l.Filters() != cat.Len() {
		return nil, fmt.Errorf("%w: layout %dx%d does not match %d stages x %d filters",
			ErrNumericInconsistency, l.Stages(), l.Filters(), p.Stages, cat.Len())
	}
	if len(sol.Values) != l.NumVars() {
		return nil, fmt.Errorf("%w: %d values for %d columns", ErrNumericInconsistency, len(sol.Values), l.NumVars())
	}

	v := &verifier{cat: cat, l: l, p: p, x: sol.Values}
	in, err := v.integer(l.PiIn(), -1, "input width")
	if err != nil {
		return nil, err
	}
	if in != p.InputWidth {
		return nil, fmt.Errorf("%w: input width is %d, want %d", ErrNumericInconsistency, in, p.InputWidth)
	}

	sel := &Selection{Stages: make([]SelectedFilter, 0, p.Stages)}
	areas := make([]float64, 0, p.Stages)
	rejections := make([]float64, 0, p.Stages)
	var headroom float64
	for i := range p.Stages {
		st, err := v.stage(i, in)
		if err != nil {
			return nil, err
		}
		if p.CumulativeHeadroom {
			headroom += bitgrowth.HeadroomBits(st.Rejection) + 1
			if float64(st.OutWidth) < headroom+1-Tolerance {
				return nil, fmt.Errorf("%w: stage %d: cumulative headroom needs %.3f bits, width is %d",
					ErrNumericInconsistency, i, headroom+1, st.OutWidth)
			}
		}
		sel.Stages = append(sel.Stages, st)
		areas = append(areas, st.Area)
		rejections = append(rejections, st.Rejection)
		in = st.OutWidth
	}

	sel.TotalArea = floats.Sum(areas)
	sel.TotalRejection = floats.Sum(rejections)
	sel.FinalWidth = in
	sel.Objective = sol.Objective

	objective := sel.TotalRejection
	switch p.Mode {
	case builder.MaximizeRejection:
		if !within(sel.TotalArea, p.Budget, 1) {
			return nil, fmt.Errorf("%w: total area %g exceeds ceiling %g", ErrNumericInconsistency, sel.TotalArea, p.Budget)
		}
	case builder.MinimizeArea:
		if !within(p.Budget, sel.TotalRejection, 1) {
			return nil, fmt.Errorf("%w: total rejection %g below floor %g", ErrNumericInconsistency, sel.TotalRejection, p.Budget)
		}
		objective = sel.TotalArea
	}
	if !near(objective, sol.Objective) {
		return nil, fmt.Errorf("%w: objective %g, recomputed %g", ErrNumericInconsistency, sol.Objective, objective)
	}
	return sel, nil
}

type verifier struct {
	cat *catalog.Catalog
	l   *builder.Layout
	p   builder.Params
	x   []float64
}

// integer rounds column col, failing when it is not integral.
func (v *verifier) integer(col, stage int, what string) (int, error) {
	val := v.x[col]
	r := math.Round(val)
	if math.IsNaN(val) || math.IsInf(val, 0) || math.Abs(val-r) > Tolerance {
		if stage < 0 {
			return 0, fmt.Errorf("%w: %s is %g, not an integer", ErrNumericInconsistency, what, val)
		}
		return 0, fmt.Errorf("%w: stage %d: %s is %g, not an integer", ErrNumericInconsistency, stage, what, val)
	}
	return int(r), nil
}

func (v *verifier) stage(i, in int) (SelectedFilter, error) {
	fail := func(format string, args ...any) (SelectedFilter, error) {
		return SelectedFilter{}, fmt.Errorf("%w: stage %d: %s", ErrNumericInconsistency, i, fmt.Sprintf(format, args...))
	}

	chosen := -1
	var added int
	for j := range v.cat.Len() {
		d, err := v.integer(v.l.Delta(i, j), i, v.l.Name(v.l.Delta(i, j)))
		if err != nil {
			return SelectedFilter{}, err
		}
		if d != 0 && d != 1 {
			return fail("selection %s is %d", v.l.Name(v.l.Delta(i, j)), d)
		}
		if d == 1 {
			if chosen >= 0 {
				return fail("filters %d and %d both selected", chosen, j)
			}
			chosen = j
		}

		pi, err := v.integer(v.l.PiFir(i, j), i, v.l.Name(v.l.PiFir(i, j)))
		if err != nil {
			return SelectedFilter{}, err
		}
		if want := d * v.cat.At(j).AddedWidth(v.p.Growth); pi != want {
			return fail("%s is %d, want %d", v.l.Name(v.l.PiFir(i, j)), pi, want)
		}
		added += pi
	}

	shift, err := v.integer(v.l.Shift(i), i, "shift")
	if err != nil {
		return SelectedFilter{}, err
	}
	out, err := v.integer(v.l.Width(i), i, "width")
	if err != nil {
		return SelectedFilter{}, err
	}

	st := SelectedFilter{
		Stage:       i,
		FilterIndex: chosen,
		Shift:       shift,
		InWidth:     in,
		AddedWidth:  added,
		OutWidth:    out,
	}
	if chosen >= 0 {
		st.Filter = v.cat.At(chosen)
		st.Area = bitgrowth.StageArea(st.Filter.Taps, st.Filter.CoeffWidth, in)
		st.Rejection = st.Filter.Rejection
	}

	switch {
	case shift < 0 || shift > v.p.MaxWidth:
		return fail("shift %d outside [0, %d]", shift, v.p.MaxWidth)
	case chosen < 0 && shift != 0:
		return fail("pass-through stage shifts by %d", shift)
	case out != bitgrowth.OutputWidth(in, added, shift):
		return fail("width %d, recurrence gives %d", out, bitgrowth.OutputWidth(in, added, shift))
	case out < 0 || out > v.p.MaxWidth:
		return fail("width %d outside [0, %d]", out, v.p.MaxWidth)
	case !near(v.x[v.l.Area(i)], st.Area):
		return fail("area %g, filter gives %g", v.x[v.l.Area(i)], st.Area)
	case !near(v.x[v.l.Rejection(i)], st.Rejection):
		return fail("rejection %g, filter gives %g", v.x[v.l.Rejection(i)], st.Rejection)
	case float64(in+added-shift) < bitgrowth.HeadroomBits(st.Rejection)-Tolerance:
		return fail("%d bits after shift cannot carry %g dB", in+added-shift, st.Rejection)
	}
	return st, nil
}

// near compares a solver value with its exact counterpart.
func near(got, want float64) bool {
	return math.Abs(got-want) <= Tolerance*math.Max(1, math.Abs(want))
}

// within reports got <= limit up to a relative tolerance.
func within(got, limit, scale float64) bool {
	return got <= limit+Tolerance*math.Max(scale, math.Abs(limit))
}
