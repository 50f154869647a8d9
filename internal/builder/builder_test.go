package builder_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-fir-cascade/internal/bitgrowth"
	"github.com/tphakala/go-fir-cascade/internal/builder"
	"github.com/tphakala/go-fir-cascade/internal/catalog"
	"github.com/tphakala/go-fir-cascade/internal/model"
	"github.com/tphakala/go-fir-cascade/internal/testutil"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return testutil.MustCatalog(t,
		catalog.FilterConfiguration{Method: catalog.MethodLeastSquares, Taps: 8, CoeffWidth: 4, Rejection: 20},
		catalog.FilterConfiguration{Method: catalog.MethodLeastSquares, Taps: 16, CoeffWidth: 6, Rejection: 35},
		catalog.FilterConfiguration{Method: catalog.MethodWindowedSinc, Taps: 1, CoeffWidth: 3, Rejection: 6},
	)
}

func constraintIndex(m *model.Model) map[string]*model.Constraint {
	idx := make(map[string]*model.Constraint, len(m.Constraints))
	for i := range m.Constraints {
		idx[m.Constraints[i].Name] = &m.Constraints[i]
	}
	return idx
}

func TestBuild_Shape(t *testing.T) {
	const stages, filters = 3, 3
	tests := []struct {
		encoding   builder.Encoding
		cumulative bool
		rows       int
		quadratic  int
	}{
		{builder.EncodingQuadratic, false, 6*stages + stages*filters + 1, 2 * stages},
		{builder.EncodingQuadratic, true, 7*stages + stages*filters + 1, 2 * stages},
		{builder.EncodingLinearized, false, 6*stages + 7*stages*filters + 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.encoding.String(), func(t *testing.T) {
			p := builder.Params{Stages: stages, Budget: 500, Encoding: tt.encoding, CumulativeHeadroom: tt.cumulative}
			m, l, err := builder.Build(testCatalog(t), p)
			require.NoError(t, err)
			require.NoError(t, m.Validate())

			assert.Len(t, m.Vars, l.NumVars())
			assert.Len(t, m.Constraints, tt.rows)
			assert.Equal(t, tt.quadratic, m.NumQuadratic())
			assert.Equal(t, "cascade_maximize-rejection_3x3", m.Name)

			for col, v := range m.Vars {
				assert.Equal(t, l.Name(col), v.Name)
			}
			assert.Equal(t, model.Binary, m.Vars[l.Delta(2, 1)].Kind)
			assert.Equal(t, model.Integer, m.Vars[l.Shift(0)].Kind)
			assert.Equal(t, model.Continuous, m.Vars[l.Area(0)].Kind)
			assert.True(t, m.Vars[l.PiIn()].Fixed())
			assert.InDelta(t, float64(builder.DefaultInputWidth), m.Vars[l.PiIn()].Lower, 0)
			assert.InDelta(t, 10.0, m.Vars[l.PiFir(0, 1)].Upper, 0, "16 taps of 6 bits add 10 bits")
			assert.InDelta(t, 3.0, m.Vars[l.PiFir(0, 2)].Upper, 0, "a single tap adds its coefficient width")
		})
	}
}

func TestBuild_Rows(t *testing.T) {
	cat := testCatalog(t)
	m, l, err := builder.Build(cat, builder.Params{Stages: 2, Budget: 500})
	require.NoError(t, err)
	rows := constraintIndex(m)

	amo := rows["cstr_nb_fir_1"]
	require.NotNil(t, amo)
	assert.Equal(t, model.LessEqual, amo.Sense)
	assert.InDelta(t, 1.0, amo.RHS, 0)
	assert.Len(t, amo.Linear, cat.Len())

	area := rows["cstr_a_1"]
	require.NotNil(t, area)
	assert.Equal(t, model.Equal, area.Sense)
	require.Len(t, area.Quad, cat.Len())
	for j, q := range area.Quad {
		assert.Equal(t, l.Delta(1, j), q.X)
		assert.Equal(t, l.Width(0), q.Y, "stage 1 reads the width of stage 0")
		assert.InDelta(t, float64(cat.At(j).Taps), q.Coef, 0)
	}

	rec := rows["cstr_pi_0"]
	require.NotNil(t, rec)
	require.Len(t, rec.Quad, cat.Len())
	assert.Equal(t, l.Shift(0), rec.Quad[0].Y)
	assert.InDelta(t, -1.0, rec.Quad[0].Coef, 0)

	head := rows["cstr_pi_s_0"]
	require.NotNil(t, head)
	assert.Equal(t, model.GreaterEqual, head.Sense)

	budget := rows["cstr_A_max"]
	require.NotNil(t, budget)
	assert.InDelta(t, 500.0, budget.RHS, 0)
	assert.Nil(t, rows["cstr_R_min"])
	assert.Equal(t, model.Maximize, m.Objective.Direction)
	assert.Equal(t, []model.Term{{Var: l.Rejection(0), Coef: 1}, {Var: l.Rejection(1), Coef: 1}}, m.Objective.Terms)
}

func TestBuild_MinimizeAreaMode(t *testing.T) {
	m, l, err := builder.Build(testCatalog(t), builder.Params{Stages: 2, Budget: 40, Mode: builder.MinimizeArea})
	require.NoError(t, err)
	rows := constraintIndex(m)

	floor := rows["cstr_R_min"]
	require.NotNil(t, floor)
	assert.Equal(t, model.GreaterEqual, floor.Sense)
	assert.InDelta(t, 40.0, floor.RHS, 0)
	assert.Nil(t, rows["cstr_A_max"])
	assert.Equal(t, model.Minimize, m.Objective.Direction)
	assert.Equal(t, []model.Term{{Var: l.Area(0), Coef: 1}, {Var: l.Area(1), Coef: 1}}, m.Objective.Terms)
}

func TestBuild_LPDumpDeterministic(t *testing.T) {
	for _, enc := range []builder.Encoding{builder.EncodingQuadratic, builder.EncodingLinearized} {
		t.Run(enc.String(), func(t *testing.T) {
			p := builder.Params{Stages: 3, Budget: 250, Encoding: enc}

			var dumps [3]bytes.Buffer
			for k := range dumps {
				m, _, err := builder.Build(testCatalog(t), p)
				require.NoError(t, err)
				require.NoError(t, model.WriteLP(&dumps[k], m))
			}
			assert.Equal(t, dumps[0].String(), dumps[1].String())
			assert.Equal(t, dumps[0].String(), dumps[2].String())

			out := dumps[0].String()
			assert.True(t, strings.HasPrefix(out, "\\ cascade_maximize-rejection_3x3\nMaximize\n obj: r_0 + r_1 + r_2\n"))
			assert.Contains(t, out, " cstr_nb_fir_0: delta_0_0 + delta_0_1 + delta_0_2 <= 1\n")
			assert.Contains(t, out, " cstr_A_max: a_0 + a_1 + a_2 <= 250\n")
			assert.Contains(t, out, "\n PI_IN = 16\n")
			if enc == builder.EncodingQuadratic {
				// Long rows wrap onto indented continuation lines.
				assert.Contains(t, out, " cstr_a_0: - a_0 + 32 delta_0_0 + 96 delta_0_1 + 3 delta_0_2 + [ 8 delta_0_0 * PI_IN\n"+
					"   + 16 delta_0_1 * PI_IN + delta_0_2 * PI_IN ] = 0\n")
			} else {
				assert.Contains(t, out, " cstr_z_1_0_lb: z_1_0 - pi_0 - 256 delta_1_0 >= -256\n")
			}
		})
	}
}

func TestBuild_EdgeCases(t *testing.T) {
	t.Run("empty_catalog", func(t *testing.T) {
		cat := testutil.MustCatalog(t)
		m, l, err := builder.Build(cat, builder.Params{Stages: 2, Budget: 10})
		require.NoError(t, err)
		assert.Equal(t, 4*2+1, l.NumVars())
		require.NoError(t, m.Validate())

		// Every stage is a pass-through: the gate pins the shift to zero.
		x, err := builder.Assign(cat, l, builder.Params{Stages: 2, Budget: 10}, []int{-1, -1}, []int{0, 0})
		require.NoError(t, err)
		ev, err := model.Evaluate(m, x)
		require.NoError(t, err)
		assert.Zero(t, ev.MaxViolation)
	})

	t.Run("zero_stages", func(t *testing.T) {
		m, l, err := builder.Build(testCatalog(t), builder.Params{Stages: 0, Budget: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, l.NumVars())
		assert.Len(t, m.Constraints, 1)
		assert.Empty(t, m.Objective.Terms)
	})

	t.Run("invalid_params", func(t *testing.T) {
		bad := []builder.Params{
			{Stages: -1},
			{Stages: 1, Budget: -1},
			{Stages: 1, Budget: math.NaN()},
			{Stages: 1, Budget: math.Inf(1)},
			{Stages: 1, Mode: builder.Mode(9)},
			{Stages: 1, Encoding: builder.Encoding(9)},
			{Stages: 1, InputWidth: 300},
			{Stages: 1, MaxWidth: -4},
		}
		for _, p := range bad {
			_, _, err := builder.Build(testCatalog(t), p)
			require.ErrorIs(t, err, builder.ErrInvalidParams, "%+v", p)
		}
	})

	t.Run("layout_overflow", func(t *testing.T) {
		_, _, err := builder.Build(testCatalog(t), builder.Params{Stages: math.MaxInt32, Budget: 1})
		require.ErrorIs(t, err, builder.ErrLayoutOverflow)
	})
}

// Every concrete cascade with admissible shifts is a feasible point of
// both encodings, and its derived columns follow the recurrence.
func TestBuild_AssignedCascadesAreFeasible(t *testing.T) {
	cat := testCatalog(t)
	choices := [][]int{
		{-1, -1, -1},
		{0, 1, 2},
		{1, -1, 1},
		{2, 2, 2},
		{-1, 0, -1},
	}

	for _, enc := range []builder.Encoding{builder.EncodingQuadratic, builder.EncodingLinearized} {
		for _, cumulative := range []bool{false, true} {
			p := builder.Params{Stages: 3, Budget: 1e6, Encoding: enc, CumulativeHeadroom: cumulative}
			m, l, err := builder.Build(cat, p)
			require.NoError(t, err)

			for _, choice := range choices {
				shifts := make([]int, len(choice))
				in := builder.DefaultInputWidth
				for i, j := range choice {
					if j < 0 {
						continue
					}
					f := cat.At(j)
					added := f.AddedWidth(p.Growth)
					// Shift back to the input width, never below the headroom.
					shifts[i] = min(added, bitgrowth.MaxShift(in, added, f.Rejection))
					in = bitgrowth.OutputWidth(in, added, shifts[i])
				}

				x, err := builder.Assign(cat, l, p, choice, shifts)
				require.NoError(t, err)
				ev, err := model.Evaluate(m, x)
				require.NoError(t, err)
				assert.LessOrEqual(t, ev.MaxViolation, 1e-9,
					"%s cumulative=%v choice=%v violates %d", enc, cumulative, choice, ev.MaxRow)
			}
		}
	}
}

func TestBuild_ShiftGateRejectsPassThroughShift(t *testing.T) {
	cat := testCatalog(t)
	p := builder.Params{Stages: 1, Budget: 1e6}
	m, l, err := builder.Build(cat, p)
	require.NoError(t, err)

	x, err := builder.Assign(cat, l, p, []int{-1}, []int{0})
	require.NoError(t, err)
	x[l.Shift(0)] = 2
	x[l.Width(0)] = float64(builder.DefaultInputWidth) // recurrence ignores the shift without a filter

	ev, err := model.Evaluate(m, x)
	require.NoError(t, err)
	require.GreaterOrEqual(t, ev.MaxRow, 0)
	assert.Equal(t, "cstr_pi_s_gate_0", m.Constraints[ev.MaxRow].Name)
}

func TestAssign_Validation(t *testing.T) {
	cat := testCatalog(t)
	p := builder.Params{Stages: 2, Budget: 1}
	_, l, err := builder.Build(cat, p)
	require.NoError(t, err)

	_, err = builder.Assign(cat, l, p, []int{0}, []int{0, 0})
	require.ErrorIs(t, err, builder.ErrInvalidParams)
	_, err = builder.Assign(cat, l, p, []int{0, 3}, []int{0, 0})
	require.ErrorIs(t, err, builder.ErrInvalidParams)
	_, err = builder.Assign(cat, l, p, []int{-1, 0}, []int{1, 0})
	require.ErrorIs(t, err, builder.ErrInvalidParams)
}

func TestParseModeAndEncoding(t *testing.T) {
	for _, mode := range []builder.Mode{builder.MaximizeRejection, builder.MinimizeArea} {
		got, err := builder.ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}
	_, err := builder.ParseMode("fastest")
	require.Error(t, err)

	for _, enc := range []builder.Encoding{builder.EncodingQuadratic, builder.EncodingLinearized} {
		got, err := builder.ParseEncoding(enc.String())
		require.NoError(t, err)
		assert.Equal(t, enc, got)
	}
	_, err = builder.ParseEncoding("cubic")
	require.Error(t, err)
}
