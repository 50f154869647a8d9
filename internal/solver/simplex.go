package solver

import (
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// pivotTol is the smallest tableau entry accepted as a pivot.
	pivotTol = 1e-9

	// blandAfter is the number of consecutive degenerate pivots after
	// which the entering column is chosen by Bland's rule.
	blandAfter = 20

	// pivotsPerDim bounds the pivots of one phase to pivotsPerDim times
	// the number of rows and columns.
	pivotsPerDim = 50
)

// tableau is a dense simplex tableau over a standard form. The last
// column of each row holds the basic value and d holds the reduced costs,
// with d[n] the negated objective.
type tableau struct {
	rows   [][]float64
	m, n   int
	d      []float64
	basic  []int
	barred []bool // columns that may not enter the basis
}

func newTableau(sf *standardForm) *tableau {
	m, n := sf.a.NRows, sf.a.NCols
	dense := mat.NewDense(m, n+1, nil)
	dense.Slice(0, m, 0, n).(*mat.Dense).Copy(sf.a.Dense())
	tb := &tableau{
		rows:   make([][]float64, m),
		m:      m,
		n:      n,
		d:      make([]float64, n+1),
		basic:  slices.Clone(sf.basic),
		barred: make([]bool, n),
	}
	for i := range m {
		tb.rows[i] = dense.RawRowView(i)
		tb.rows[i][n] = sf.b[i]
	}
	return tb
}

// price sets the reduced costs of c against the current basis.
func (tb *tableau) price(c []float64) {
	copy(tb.d, c)
	tb.d[tb.n] = 0
	for i, j := range tb.basic {
		if c[j] != 0 {
			floats.AddScaled(tb.d, -c[j], tb.rows[i])
		}
	}
}

// objective is the cost of the current basic solution.
func (tb *tableau) objective() float64 {
	return -tb.d[tb.n]
}

func (tb *tableau) pivot(r, e int) {
	pr := tb.rows[r]
	floats.Scale(1/pr[e], pr)
	pr[e] = 1
	for i, row := range tb.rows {
		if i != r && row[e] != 0 {
			floats.AddScaled(row, -row[e], pr)
			row[e] = 0
		}
	}
	if tb.d[e] != 0 {
		floats.AddScaled(tb.d, -tb.d[e], pr)
		tb.d[e] = 0
	}
	tb.basic[r] = e
}

// entering picks the column with the most negative reduced cost, or the
// lowest-indexed improving column when bland is set. It returns -1 at an
// optimum.
func (tb *tableau) entering(optTol float64, bland bool) int {
	col, best := -1, -optTol
	for j, dj := range tb.d[:tb.n] {
		if tb.barred[j] || dj >= best {
			continue
		}
		if bland {
			return j
		}
		col, best = j, dj
	}
	return col
}

// leaving runs the ratio test on column e, breaking ties by the lowest
// basic column. It returns -1 when the column is unbounded.
func (tb *tableau) leaving(e int) (int, float64) {
	r, best := -1, math.Inf(1)
	for i, row := range tb.rows {
		a := row[e]
		if a <= pivotTol {
			continue
		}
		ratio := math.Max(row[tb.n], 0) / a
		slack := 1e-12 * (1 + ratio)
		switch {
		case r < 0 || ratio < best-slack:
			r, best = i, ratio
		case ratio <= best+slack && tb.basic[i] < tb.basic[r]:
			r, best = i, min(best, ratio)
		}
	}
	return r, best
}

// run pivots until no column improves the objective. It fails with
// ErrNumerical when the pivot limit is reached and returns the context
// error when ctx is done.
func (tb *tableau) run(ctx context.Context, optTol float64) (Status, error) {
	limit := pivotsPerDim * (tb.m + tb.n)
	degenerate := 0
	for range limit {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		e := tb.entering(optTol, degenerate > blandAfter)
		if e < 0 {
			return Optimal, nil
		}
		r, step := tb.leaving(e)
		if r < 0 {
			return Unbounded, nil
		}
		if step*math.Abs(tb.d[e]) <= optTol {
			degenerate++
		} else {
			degenerate = 0
		}
		tb.pivot(r, e)
	}
	return 0, fmt.Errorf("%w: no simplex optimum after %d pivots", ErrNumerical, limit)
}

// dropArtificials bars the artificial columns from entering and pivots
// the ones still basic out of the basis. A row whose only nonzero entry
// is its artificial is redundant and keeps it basic at zero.
func (tb *tableau) dropArtificials(artificial []int) {
	for _, k := range artificial {
		tb.barred[k] = true
	}
	for i := range tb.basic {
		if !tb.barred[tb.basic[i]] {
			continue
		}
		row := tb.rows[i]
		row[tb.n] = 0
		for e := range tb.n {
			if !tb.barred[e] && math.Abs(row[e]) > pivotTol {
				tb.pivot(i, e)
				break
			}
		}
	}
}

// values returns the basic solution over all standard form columns.
func (tb *tableau) values() []float64 {
	xs := make([]float64, tb.n)
	for i, j := range tb.basic {
		xs[j] = math.Max(tb.rows[i][tb.n], 0)
	}
	return xs
}

// simplex solves the standard form of p over the active columns with a
// two-phase tableau simplex and writes their values into x.
func (s *BranchAndBound) simplex(ctx context.Context, p *problem, active []int, x []float64) (Status, error) {
	sf := p.standardForm(active, s.tol)
	tb := newTableau(sf)

	if len(sf.artificial) > 0 {
		phaseOne := make([]float64, tb.n)
		for _, k := range sf.artificial {
			phaseOne[k] = 1
		}
		tb.price(phaseOne)
		status, err := tb.run(ctx, s.tol)
		if err != nil {
			return 0, err
		}
		if status != Optimal {
			return 0, fmt.Errorf("%w: phase one ended %s", ErrNumerical, status)
		}
		if tb.objective() > artificialTol*math.Max(1, sf.artScale) {
			return Infeasible, nil
		}
		tb.dropArtificials(sf.artificial)
	}

	costScale := 1.0
	for _, c := range sf.c {
		costScale = math.Max(costScale, math.Abs(c))
	}
	tb.price(sf.c)
	status, err := tb.run(ctx, s.tol*costScale)
	if err != nil || status != Optimal {
		return status, err
	}

	xs := tb.values()
	for k, j := range active {
		x[j] = min(p.lo[j]+xs[k], p.hi[j])
	}
	return Optimal, nil
}
