package extract_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-fir-cascade/internal/builder"
	"github.com/tphakala/go-fir-cascade/internal/catalog"
	"github.com/tphakala/go-fir-cascade/internal/extract"
	"github.com/tphakala/go-fir-cascade/internal/solver"
	"github.com/tphakala/go-fir-cascade/internal/testutil"
)

// Stage 0 uses F2 (16 taps, 6 bits: adds 10 bits) and shifts by 10;
// stage 1 is a pass-through.
const (
	testShift     = 10
	testStageArea = 16 * (6 + 16)
)

type fixture struct {
	cat    *catalog.Catalog
	layout *builder.Layout
	params builder.Params
}

func newFixture(t *testing.T, encoding builder.Encoding) fixture {
	t.Helper()
	cat := testutil.MustCatalog(t,
		catalog.FilterConfiguration{Method: catalog.MethodLeastSquares, Taps: 8, CoeffWidth: 4, Rejection: 20},
		catalog.FilterConfiguration{Method: catalog.MethodLeastSquares, Taps: 16, CoeffWidth: 6, Rejection: 35},
	)
	params := builder.Params{Stages: 2, Budget: 1e9, Mode: builder.MaximizeRejection, Encoding: encoding}
	_, layout, err := builder.Build(cat, params)
	require.NoError(t, err)
	return fixture{cat: cat, layout: layout, params: params}
}

func (f fixture) solution(t *testing.T) *solver.Solution {
	t.Helper()
	x, err := builder.Assign(f.cat, f.layout, f.params, []int{1, -1}, []int{testShift, 0})
	require.NoError(t, err)
	return &solver.Solution{Status: solver.Optimal, Objective: 35, Values: x}
}

func TestExtract_Consistent(t *testing.T) {
	for _, enc := range []builder.Encoding{builder.EncodingQuadratic, builder.EncodingLinearized} {
		t.Run(enc.String(), func(t *testing.T) {
			f := newFixture(t, enc)

			sel, err := extract.Extract(f.cat, f.layout, f.params, f.solution(t))
			require.NoError(t, err)
			require.Len(t, sel.Stages, 2)

			first := sel.Stages[0]
			assert.Equal(t, 1, first.FilterIndex)
			assert.Same(t, f.cat.At(1), first.Filter)
			assert.InDelta(t, float64(testStageArea), first.Area, 0)
			assert.Equal(t, 16, first.InWidth)
			assert.Equal(t, 10, first.AddedWidth)
			assert.Equal(t, testShift, first.Shift)
			assert.Equal(t, 16, first.OutWidth)

			second := sel.Stages[1]
			assert.True(t, second.PassThrough())
			assert.Equal(t, -1, second.FilterIndex)
			assert.Zero(t, second.Area)
			assert.Zero(t, second.Rejection)
			assert.Zero(t, second.Shift)
			assert.Equal(t, second.InWidth, second.OutWidth)

			assert.InDelta(t, float64(testStageArea), sel.TotalArea, 0)
			assert.InDelta(t, 35.0, sel.TotalRejection, 0)
			assert.Equal(t, 16, sel.FinalWidth)
			assert.Equal(t, 1, sel.Selected())
		})
	}
}

func TestExtract_Idempotent(t *testing.T) {
	f := newFixture(t, builder.EncodingQuadratic)
	sol := f.solution(t)

	first, err := extract.Extract(f.cat, f.layout, f.params, sol)
	require.NoError(t, err)
	second, err := extract.Extract(f.cat, f.layout, f.params, sol)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtract_RoundsNearIntegers(t *testing.T) {
	f := newFixture(t, builder.EncodingQuadratic)
	sol := f.solution(t)
	sol.Values[f.layout.Delta(0, 1)] = 1 - 1e-8
	sol.Values[f.layout.Width(0)] += 1e-8

	sel, err := extract.Extract(f.cat, f.layout, f.params, sol)
	require.NoError(t, err)
	assert.Equal(t, 16, sel.Stages[0].OutWidth)
}

func TestExtract_StatusMapping(t *testing.T) {
	f := newFixture(t, builder.EncodingQuadratic)

	_, err := extract.Extract(f.cat, f.layout, f.params, &solver.Solution{Status: solver.Infeasible})
	require.ErrorIs(t, err, extract.ErrInfeasible)

	_, err = extract.Extract(f.cat, f.layout, f.params, &solver.Solution{Status: solver.Unbounded})
	require.ErrorIs(t, err, extract.ErrUnbounded)

	_, err = extract.Extract(f.cat, f.layout, f.params, nil)
	require.ErrorIs(t, err, extract.ErrNumericInconsistency)
}

func TestExtract_RejectsInconsistentAssignments(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f fixture, sol *solver.Solution)
		params func(p *builder.Params)
	}{
		{
			name: "fractional_selection",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.Delta(0, 1)] = 0.5
			},
		},
		{
			name: "two_filters_in_one_stage",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.Delta(0, 0)] = 1
				sol.Values[f.layout.PiFir(0, 0)] = 7
			},
		},
		{
			name: "pass_through_shift",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.Shift(1)] = 2
				sol.Values[f.layout.Width(1)] = 14
			},
		},
		{
			name: "width_recurrence",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.Width(0)] = 17
				sol.Values[f.layout.Width(1)] = 17
			},
		},
		{
			name: "area_definition",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.Area(0)] = testStageArea - 1
			},
		},
		{
			name: "rejection_definition",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.Rejection(1)] = 3
			},
		},
		{
			name: "added_width",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.PiFir(0, 1)] = 9
			},
		},
		{
			name: "headroom",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.Shift(0)] = 21
				sol.Values[f.layout.Width(0)] = 5
				sol.Values[f.layout.Width(1)] = 5
			},
		},
		{
			name:   "area_ceiling",
			params: func(p *builder.Params) { p.Budget = testStageArea - 1 },
		},
		{
			name:   "rejection_floor",
			params: func(p *builder.Params) { p.Mode, p.Budget = builder.MinimizeArea, 40 },
		},
		{
			name: "objective",
			mutate: func(_ fixture, sol *solver.Solution) {
				sol.Objective = 36
			},
		},
		{
			name: "input_width",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.PiIn()] = 15
			},
		},
		{
			name: "infinite_width",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.Width(1)] = math.Inf(1)
			},
		},
		{
			name: "infinite_shift",
			mutate: func(f fixture, sol *solver.Solution) {
				sol.Values[f.layout.Shift(0)] = math.Inf(-1)
			},
		},
		{
			name: "value_count",
			mutate: func(_ fixture, sol *solver.Solution) {
				sol.Values = sol.Values[:3]
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, builder.EncodingQuadratic)
			sol := f.solution(t)
			if tt.mutate != nil {
				tt.mutate(f, sol)
			}
			if tt.params != nil {
				tt.params(&f.params)
			}

			_, err := extract.Extract(f.cat, f.layout, f.params, sol)
			require.ErrorIs(t, err, extract.ErrNumericInconsistency)
		})
	}
}

func TestExtract_CumulativeHeadroom(t *testing.T) {
	f := newFixture(t, builder.EncodingQuadratic)
	f.params.CumulativeHeadroom = true

	// 35 dB needs 35/6+1+1 = 7.83 bits of width.
	_, err := extract.Extract(f.cat, f.layout, f.params, f.solution(t))
	require.NoError(t, err)

	sol := f.solution(t)
	sol.Values[f.layout.Shift(0)] = 19
	sol.Values[f.layout.Width(0)] = 7
	sol.Values[f.layout.Width(1)] = 7
	_, err = extract.Extract(f.cat, f.layout, f.params, sol)
	require.ErrorIs(t, err, extract.ErrNumericInconsistency)
}
