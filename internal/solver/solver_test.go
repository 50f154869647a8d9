package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-fir-cascade/internal/model"
)

const solveTolerance = 1e-6

func solve(t *testing.T, m *model.Model, opts ...Option) *Solution {
	t.Helper()
	sol, err := NewBranchAndBound(opts...).Solve(context.Background(), m)
	require.NoError(t, err)
	return sol
}

func TestBranchAndBound_IntegerRounding(t *testing.T) {
	// maximize x + y s.t. 2x + 2y <= 5: the relaxation reaches 2.5.
	m := model.New("round")
	x := m.AddVar("x", model.Integer, 0, 10)
	y := m.AddVar("y", model.Integer, 0, 10)
	m.AddConstraint(model.Constraint{
		Name:   "cap",
		Linear: []model.Term{{Var: x, Coef: 2}, {Var: y, Coef: 2}},
		Sense:  model.LessEqual,
		RHS:    5,
	})
	m.SetObjective(model.Maximize, []model.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}})

	sol := solve(t, m)
	require.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 2.0, sol.Objective, solveTolerance)
	for _, v := range sol.Values {
		assert.Equal(t, math.Round(v), v, "integer columns must be exact")
	}
	assert.Greater(t, sol.Nodes, 1)
}

func TestBranchAndBound_Knapsack(t *testing.T) {
	// maximize 5a + 4b + 3c s.t. 2a + 3b + c <= 5, binary.
	m := model.New("knapsack")
	a := m.AddVar("a", model.Binary, 0, 1)
	b := m.AddVar("b", model.Binary, 0, 1)
	c := m.AddVar("c", model.Binary, 0, 1)
	m.AddConstraint(model.Constraint{
		Name:   "weight",
		Linear: []model.Term{{Var: a, Coef: 2}, {Var: b, Coef: 3}, {Var: c, Coef: 1}},
		Sense:  model.LessEqual,
		RHS:    5,
	})
	m.SetObjective(model.Maximize, []model.Term{{Var: a, Coef: 5}, {Var: b, Coef: 4}, {Var: c, Coef: 3}})

	sol := solve(t, m)
	require.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 9.0, sol.Objective, solveTolerance)
	assert.Equal(t, []float64{1, 1, 0}, sol.Values)
}

func TestBranchAndBound_EqualityAndFloor(t *testing.T) {
	// minimize 3x + 2y s.t. x + y >= 4, x - y = 1. The relaxation optimum
	// (2.5, 1.5) is fractional; the integer optimum is (3, 2).
	m := model.New("equality")
	x := m.AddVar("x", model.Integer, 0, math.Inf(1))
	y := m.AddVar("y", model.Integer, 0, math.Inf(1))
	m.AddConstraint(model.Constraint{
		Name:   "floor",
		Linear: []model.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}},
		Sense:  model.GreaterEqual,
		RHS:    4,
	})
	m.AddConstraint(model.Constraint{
		Name:   "diff",
		Linear: []model.Term{{Var: x, Coef: 1}, {Var: y, Coef: -1}},
		Sense:  model.Equal,
		RHS:    1,
	})
	m.SetObjective(model.Minimize, []model.Term{{Var: x, Coef: 3}, {Var: y, Coef: 2}})

	sol := solve(t, m)
	require.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 13.0, sol.Objective, solveTolerance)
	assert.InDeltaSlice(t, []float64{3, 2}, sol.Values, solveTolerance)
}

func TestBranchAndBound_ContinuousOnly(t *testing.T) {
	m := model.New("lp")
	x := m.AddVar("x", model.Continuous, 0, math.Inf(1))
	y := m.AddVar("y", model.Continuous, 0, math.Inf(1))
	m.AddConstraint(model.Constraint{
		Name:   "floor",
		Linear: []model.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}},
		Sense:  model.GreaterEqual,
		RHS:    4,
	})
	m.AddConstraint(model.Constraint{
		Name:   "diff",
		Linear: []model.Term{{Var: x, Coef: 1}, {Var: y, Coef: -1}},
		Sense:  model.Equal,
		RHS:    1,
	})
	m.SetObjective(model.Minimize, []model.Term{{Var: x, Coef: 3}, {Var: y, Coef: 2}})

	sol := solve(t, m)
	require.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 10.5, sol.Objective, solveTolerance)
	assert.InDeltaSlice(t, []float64{2.5, 1.5}, sol.Values, solveTolerance)
	assert.Equal(t, 1, sol.Nodes)
}

func TestBranchAndBound_Bilinear(t *testing.T) {
	// maximize w s.t. w = b*y, w + 3b <= 9, y integer in [0, 7].
	m := model.New("bilinear")
	b := m.AddVar("b", model.Binary, 0, 1)
	y := m.AddVar("y", model.Integer, 0, 7)
	w := m.AddVar("w", model.Continuous, 0, math.Inf(1))
	m.AddConstraint(model.Constraint{
		Name:   "prod",
		Linear: []model.Term{{Var: w, Coef: -1}},
		Quad:   []model.QuadTerm{{X: y, Y: b, Coef: 1}},
		Sense:  model.Equal,
	})
	m.AddConstraint(model.Constraint{
		Name:   "cap",
		Linear: []model.Term{{Var: w, Coef: 1}, {Var: b, Coef: 3}},
		Sense:  model.LessEqual,
		RHS:    9,
	})
	m.SetObjective(model.Maximize, []model.Term{{Var: w, Coef: 1}})

	sol := solve(t, m)
	require.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 6.0, sol.Objective, solveTolerance)
	assert.InDelta(t, 1.0, sol.Values[b], 0)
	assert.InDelta(t, 6.0, sol.Values[y], 0)

	ev, err := model.Evaluate(m, sol.Values)
	require.NoError(t, err)
	assert.LessOrEqual(t, ev.MaxViolation, solveTolerance)
}

func TestBranchAndBound_Infeasible(t *testing.T) {
	t.Run("bound_conflict", func(t *testing.T) {
		m := model.New("bounds")
		x := m.AddVar("x", model.Binary, 0, 1)
		m.AddConstraint(model.Constraint{
			Name:   "too_big",
			Linear: []model.Term{{Var: x, Coef: 1}},
			Sense:  model.GreaterEqual,
			RHS:    2,
		})
		m.SetObjective(model.Minimize, []model.Term{{Var: x, Coef: 1}})

		sol := solve(t, m)
		assert.Equal(t, Infeasible, sol.Status)
		assert.Nil(t, sol.Values)
	})

	t.Run("conflicting_rows", func(t *testing.T) {
		m := model.New("rows")
		x := m.AddVar("x", model.Continuous, 0, math.Inf(1))
		y := m.AddVar("y", model.Continuous, 0, math.Inf(1))
		both := []model.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}
		m.AddConstraint(model.Constraint{Name: "floor", Linear: both, Sense: model.GreaterEqual, RHS: 3})
		m.AddConstraint(model.Constraint{Name: "ceiling", Linear: both, Sense: model.LessEqual, RHS: 2})
		m.SetObjective(model.Minimize, []model.Term{{Var: x, Coef: 1}})

		assert.Equal(t, Infeasible, solve(t, m).Status)
	})

	t.Run("no_integer_point", func(t *testing.T) {
		// 2x = 1 has only the fractional solution 0.5.
		m := model.New("parity")
		x := m.AddVar("x", model.Integer, 0, 5)
		y := m.AddVar("y", model.Continuous, 0, 5)
		m.AddConstraint(model.Constraint{
			Name:   "half",
			Linear: []model.Term{{Var: x, Coef: 2}, {Var: y, Coef: 0}},
			Sense:  model.Equal,
			RHS:    1,
		})
		m.SetObjective(model.Minimize, []model.Term{{Var: y, Coef: 1}})

		assert.Equal(t, Infeasible, solve(t, m).Status)
	})
}

func TestBranchAndBound_Unbounded(t *testing.T) {
	m := model.New("unbounded")
	x := m.AddVar("x", model.Continuous, 0, math.Inf(1))
	y := m.AddVar("y", model.Continuous, 0, math.Inf(1))
	m.AddConstraint(model.Constraint{
		Name:   "ramp",
		Linear: []model.Term{{Var: y, Coef: 1}, {Var: x, Coef: -1}},
		Sense:  model.GreaterEqual,
	})
	m.SetObjective(model.Maximize, []model.Term{{Var: y, Coef: 1}})

	sol := solve(t, m)
	assert.Equal(t, Unbounded, sol.Status)
}

func TestBranchAndBound_Failures(t *testing.T) {
	fractional := func() *model.Model {
		m := model.New("fractional")
		x := m.AddVar("x", model.Integer, 0, 10)
		m.AddConstraint(model.Constraint{
			Name:   "cap",
			Linear: []model.Term{{Var: x, Coef: 2}},
			Sense:  model.LessEqual,
			RHS:    5,
		})
		y := m.AddVar("y", model.Integer, 0, 10)
		m.AddConstraint(model.Constraint{
			Name:   "pair",
			Linear: []model.Term{{Var: x, Coef: 2}, {Var: y, Coef: 2}},
			Sense:  model.LessEqual,
			RHS:    7,
		})
		m.SetObjective(model.Maximize, []model.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}})
		return m
	}

	t.Run("node_limit", func(t *testing.T) {
		_, err := NewBranchAndBound(WithNodeLimit(1)).Solve(context.Background(), fractional())
		require.ErrorIs(t, err, ErrNodeLimit)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewBranchAndBound().Solve(ctx, fractional())
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unbounded_cofactor", func(t *testing.T) {
		m := model.New("cofactor")
		b := m.AddVar("b", model.Binary, 0, 1)
		y := m.AddVar("y", model.Continuous, 0, math.Inf(1))
		m.AddConstraint(model.Constraint{
			Name:  "prod",
			Quad:  []model.QuadTerm{{X: b, Y: y, Coef: 1}},
			Sense: model.LessEqual,
			RHS:   3,
		})
		m.SetObjective(model.Maximize, []model.Term{{Var: b, Coef: 1}})

		_, err := NewBranchAndBound().Solve(context.Background(), m)
		require.ErrorIs(t, err, ErrUnsupportedTerm)
	})

	t.Run("invalid_model", func(t *testing.T) {
		m := fractional()
		m.Objective.Terms = append(m.Objective.Terms, model.Term{Var: 42, Coef: 1})
		_, err := NewBranchAndBound().Solve(context.Background(), m)
		require.ErrorIs(t, err, model.ErrInvalidModel)
	})
}

func TestBranchAndBound_Deterministic(t *testing.T) {
	build := func() *model.Model {
		m := model.New("ties")
		vars := make([]int, 4)
		terms := make([]model.Term, 4)
		for k := range vars {
			vars[k] = m.AddVar("x", model.Binary, 0, 1)
			terms[k] = model.Term{Var: vars[k], Coef: 1}
		}
		m.AddConstraint(model.Constraint{Name: "two", Linear: terms, Sense: model.LessEqual, RHS: 2.5})
		m.SetObjective(model.Maximize, terms)
		return m
	}

	first := solve(t, build())
	for range 3 {
		again := solve(t, build())
		assert.Equal(t, first.Values, again.Values)
		assert.Equal(t, first.Nodes, again.Nodes)
	}
	assert.InDelta(t, 2.0, first.Objective, solveTolerance)
}

func TestPresolve_SingletonRowsBecomeBounds(t *testing.T) {
	p := &problem{
		n:     2,
		kinds: []model.Kind{model.Integer, model.Continuous},
		lo:    []float64{0, 0},
		hi:    []float64{10, math.Inf(1)},
		cost:  []float64{0, 0},
	}
	p.addRow([]int{0}, []float64{2}, model.LessEqual, 7)            // x <= 3.5 -> 3
	p.addRow([]int{1, 0}, []float64{1, 0}, model.GreaterEqual, 1.5) // y >= 1.5
	p.addRow([]int{0, 1, 0}, []float64{1, 1, 1}, model.LessEqual, 9)

	require.True(t, p.presolve(DefaultTolerance, DefaultIntegralityTolerance))
	assert.InDelta(t, 3.0, p.hi[0], 0)
	assert.InDelta(t, 1.5, p.lo[1], 0)
	require.Len(t, p.rows, 1)
	assert.Equal(t, []int{0, 1}, p.rows[0].cols)
	assert.Equal(t, []float64{2, 1}, p.rows[0].coefs, "duplicate columns must merge")
}

func TestImpliedUpper(t *testing.T) {
	// d0 + d1 <= 1 implies both binary bounds; z <= 8*d0 then uses d0's
	// bound and locks it.
	p := &problem{
		n:     3,
		kinds: []model.Kind{model.Binary, model.Binary, model.Continuous},
		lo:    []float64{0, 0, 0},
		hi:    []float64{1, 1, 8},
		cost:  []float64{0, 0, 0},
	}
	p.addRow([]int{0, 1}, []float64{1, 1}, model.LessEqual, 1)
	p.addRow([]int{2, 0}, []float64{1, -8}, model.LessEqual, 0)

	implied := p.impliedUpper([]int{0, 1, 2}, DefaultTolerance)
	assert.Equal(t, []bool{true, true, true}, implied)

	// A looser envelope does not imply the bound.
	p.hi[2] = 4
	implied = p.impliedUpper([]int{0, 1, 2}, DefaultTolerance)
	assert.False(t, implied[2])
}
