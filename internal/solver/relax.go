package solver

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/go-fir-cascade/internal/model"
)

// artificialTol is the largest phase-one residual, relative to the
// right-hand sides of the artificial rows, accepted as zero.
const artificialTol = 1e-7

// lpRow is one linear row with strictly increasing column indices and no
// zero coefficients.
type lpRow struct {
	cols  []int
	coefs []float64
	sense model.Sense
	rhs   float64
}

// relaxation is the outcome of one node LP. x covers the model columns
// only and obj is the minimization-form objective at x.
type relaxation struct {
	status Status
	x      []float64
	obj    float64
}

// problem is the working LP of one node: the model columns followed by
// the product auxiliaries introduced for the node's bilinear terms.
type problem struct {
	n      int // model columns
	kinds  []model.Kind
	lo, hi []float64
	cost   []float64 // minimization form
	rows   []lpRow
}

// linearize builds the node LP of m under the node bounds lo and hi.
// sign is +1 for minimization and -1 for maximization.
func linearize(m *model.Model, lo, hi []float64, sign float64) (*problem, error) {
	n := len(m.Vars)
	p := &problem{
		n:     n,
		kinds: make([]model.Kind, n),
		lo:    slices.Clone(lo),
		hi:    slices.Clone(hi),
		cost:  make([]float64, n),
		rows:  make([]lpRow, 0, len(m.Constraints)),
	}
	for j, v := range m.Vars {
		p.kinds[j] = v.Kind
	}
	for _, t := range m.Objective.Terms {
		p.cost[t.Var] += sign * t.Coef
	}

	aux := make(map[[2]int]int)
	for i := range m.Constraints {
		c := &m.Constraints[i]
		cols := make([]int, 0, len(c.Linear)+len(c.Quad))
		coefs := make([]float64, 0, len(c.Linear)+len(c.Quad))
		for _, t := range c.Linear {
			cols = append(cols, t.Var)
			coefs = append(coefs, t.Coef)
		}
		for _, q := range c.Quad {
			col, coef, err := p.product(m, q, aux)
			if err != nil {
				return nil, fmt.Errorf("%w in row %s", err, c.Name)
			}
			cols = append(cols, col)
			coefs = append(coefs, coef)
		}
		p.addRow(cols, coefs, c.Sense, c.RHS)
	}
	return p, nil
}

// product returns the linear stand-in for q at the node: the co-factor
// when the binary is fixed, the binary when the co-factor is fixed, or a
// McCormick auxiliary column shared by every occurrence of the pair.
func (p *problem) product(m *model.Model, q model.QuadTerm, aux map[[2]int]int) (int, float64, error) {
	b, y := q.X, q.Y
	if m.Vars[b].Kind != model.Binary {
		b, y = y, b
	}
	if m.Vars[b].Kind != model.Binary {
		return 0, 0, fmt.Errorf("%w: %s*%s has no binary factor", ErrUnsupportedTerm, m.Vars[q.X].Name, m.Vars[q.Y].Name)
	}

	switch {
	case p.lo[b] == p.hi[b]:
		return y, q.Coef * p.lo[b], nil
	case p.lo[y] == p.hi[y]:
		return b, q.Coef * p.lo[y], nil
	}

	ly, uy := p.lo[y], p.hi[y]
	if ly < 0 || math.IsInf(uy, 1) {
		return 0, 0, fmt.Errorf("%w: co-factor %s has bounds [%g, %g]", ErrUnsupportedTerm, m.Vars[y].Name, ly, uy)
	}

	key := [2]int{b, y}
	if z, ok := aux[key]; ok {
		return z, q.Coef, nil
	}

	z := len(p.lo)
	p.kinds = append(p.kinds, model.Continuous)
	p.lo = append(p.lo, 0)
	p.hi = append(p.hi, uy)
	p.cost = append(p.cost, 0)
	aux[key] = z

	// z <= uy*b, z <= y - ly*(1-b), z >= ly*b, z >= y - uy*(1-b)
	p.addRow([]int{z, b}, []float64{1, -uy}, model.LessEqual, 0)
	p.addRow([]int{z, y, b}, []float64{1, -1, -ly}, model.LessEqual, -ly)
	p.addRow([]int{z, b}, []float64{1, -ly}, model.GreaterEqual, 0)
	p.addRow([]int{z, y, b}, []float64{1, -1, -uy}, model.GreaterEqual, -uy)
	return z, q.Coef, nil
}

func (p *problem) addRow(cols []int, coefs []float64, sense model.Sense, rhs float64) {
	order := make([]int, len(cols))
	for k := range order {
		order[k] = k
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(cols[a], cols[b]) })

	r := lpRow{
		cols:  make([]int, 0, len(cols)),
		coefs: make([]float64, 0, len(cols)),
		sense: sense,
		rhs:   rhs,
	}
	for _, k := range order {
		if last := len(r.cols) - 1; last >= 0 && r.cols[last] == cols[k] {
			r.coefs[last] += coefs[k]
			continue
		}
		r.cols = append(r.cols, cols[k])
		r.coefs = append(r.coefs, coefs[k])
	}
	p.rows = append(p.rows, r.compact())
}

// compact drops zero coefficients in place.
func (r lpRow) compact() lpRow {
	w := 0
	for k := range r.cols {
		if r.coefs[k] == 0 {
			continue
		}
		r.cols[w], r.coefs[w] = r.cols[k], r.coefs[k]
		w++
	}
	r.cols, r.coefs = r.cols[:w], r.coefs[:w]
	return r
}

// presolve substitutes fixed columns and turns single-column rows into
// bounds until a fixpoint. It returns false when a row or a bound pair
// cannot be satisfied.
func (p *problem) presolve(tol, intTol float64) bool {
	for {
		changed := false
		kept := p.rows[:0]
		for _, r := range p.rows {
			r = p.substituteFixed(r)
			switch len(r.cols) {
			case 0:
				if !holds(0, r.sense, r.rhs, tol) {
					return false
				}
			case 1:
				ok, tightened := p.tighten(r, tol, intTol)
				if !ok {
					return false
				}
				changed = changed || tightened
			default:
				kept = append(kept, r)
			}
		}
		p.rows = kept
		if !changed {
			return true
		}
	}
}

func (p *problem) substituteFixed(r lpRow) lpRow {
	w := 0
	for k, j := range r.cols {
		if p.lo[j] == p.hi[j] {
			r.rhs -= r.coefs[k] * p.lo[j]
			continue
		}
		r.cols[w], r.coefs[w] = j, r.coefs[k]
		w++
	}
	r.cols, r.coefs = r.cols[:w], r.coefs[:w]
	return r
}

// tighten applies a single-column row as a bound. Integer columns are
// rounded inward.
func (p *problem) tighten(r lpRow, tol, intTol float64) (feasible, changed bool) {
	j, a := r.cols[0], r.coefs[0]
	v := r.rhs / a

	var upper, lower bool
	switch r.sense {
	case model.LessEqual:
		upper, lower = a > 0, a < 0
	case model.GreaterEqual:
		upper, lower = a < 0, a > 0
	default:
		upper, lower = true, true
	}

	lo, hi := p.lo[j], p.hi[j]
	if upper && v < hi {
		hi = v
	}
	if lower && v > lo {
		lo = v
	}
	if p.kinds[j] != model.Continuous {
		lo, hi = math.Ceil(lo-intTol), math.Floor(hi+intTol)
	}
	if lo > hi {
		if lo-hi > tol*math.Max(1, math.Abs(lo)) {
			return false, false
		}
		hi = lo
	}

	changed = lo != p.lo[j] || hi != p.hi[j]
	p.lo[j], p.hi[j] = lo, hi
	return true, changed
}

func holds(lhs float64, sense model.Sense, rhs, tol float64) bool {
	slack := tol * math.Max(1, math.Abs(rhs))
	switch sense {
	case model.LessEqual:
		return lhs <= rhs+slack
	case model.GreaterEqual:
		return lhs >= rhs-slack
	default:
		return math.Abs(lhs-rhs) <= slack
	}
}

// impliedUpper marks the columns whose finite upper bound already follows
// from one row together with bounds that stay enforced, so the bound needs
// no row of its own. Columns whose upper bound is used in a derivation are
// locked and keep their own bound row.
func (p *problem) impliedUpper(active []int, tol float64) []bool {
	implied := make([]bool, len(p.lo))
	locked := make([]bool, len(p.lo))
	byCol := make([][]int, len(p.lo))
	for i, r := range p.rows {
		for _, j := range r.cols {
			byCol[j] = append(byCol[j], i)
		}
	}

	for _, j := range active {
		if math.IsInf(p.hi[j], 1) || locked[j] {
			continue
		}
		for _, i := range byCol[j] {
			r := &p.rows[i]
			if (r.sense != model.GreaterEqual && p.derives(r, j, 1, tol, locked)) ||
				(r.sense != model.LessEqual && p.derives(r, j, -1, tol, locked)) {
				implied[j] = true
				break
			}
		}
	}
	return implied
}

// derives reports whether sign*row <= sign*rhs bounds column j by hi[j].
func (p *problem) derives(r *lpRow, j int, sign, tol float64, locked []bool) bool {
	var aj, rest float64
	var used []int
	for k, col := range r.cols {
		a := sign * r.coefs[k]
		switch {
		case col == j:
			aj = a
		case a >= 0:
			rest += a * p.lo[col]
		case math.IsInf(p.hi[col], 1):
			return false
		default:
			rest += a * p.hi[col]
			used = append(used, col)
		}
	}
	if aj <= 0 || (sign*r.rhs-rest)/aj > p.hi[j]+tol {
		return false
	}
	for _, col := range used {
		locked[col] = true
	}
	return true
}

// solve presolves p and runs the simplex on what remains.
func (s *BranchAndBound) solve(ctx context.Context, p *problem) (relaxation, error) {
	if !p.presolve(s.tol, s.intTol) {
		return relaxation{status: Infeasible}, nil
	}

	x := make([]float64, len(p.lo))
	inRows := make([]bool, len(p.lo))
	for _, r := range p.rows {
		for _, j := range r.cols {
			inRows[j] = true
		}
	}

	active := make([]int, 0, len(p.lo))
	for j := range p.lo {
		switch {
		case p.lo[j] == p.hi[j]:
			x[j] = p.lo[j]
		case inRows[j]:
			active = append(active, j)
		case p.cost[j] >= 0:
			x[j] = p.lo[j]
		case math.IsInf(p.hi[j], 1):
			return relaxation{status: Unbounded}, nil
		default:
			x[j] = p.hi[j]
		}
	}

	if len(active) > 0 {
		status, err := s.simplex(ctx, p, active, x)
		if err != nil || status != Optimal {
			return relaxation{status: status}, err
		}
	}

	x = x[:p.n]
	return relaxation{status: Optimal, x: x, obj: floats.Dot(p.cost[:p.n], x)}, nil
}

// standardForm is Ax = b, x >= 0 over the shifted active columns, their
// slacks and the artificial columns, with basic as the identity basis.
type standardForm struct {
	a          *model.Triplets
	b, c       []float64
	basic      []int
	artificial []int
	artScale   float64 // largest right-hand side of a row with an artificial
}

func (p *problem) standardForm(active []int, tol float64) *standardForm {
	implied := p.impliedUpper(active, tol)

	type rowForm struct {
		cols  []int
		coefs []float64
		slack float64
		b     float64
	}
	pos := make([]int, len(p.lo))
	for k, j := range active {
		pos[j] = k
	}

	forms := make([]rowForm, 0, len(p.rows)+len(active))
	for _, r := range p.rows {
		f := rowForm{cols: make([]int, len(r.cols)), coefs: slices.Clone(r.coefs), b: r.rhs}
		for k, j := range r.cols {
			f.cols[k] = pos[j]
			f.b -= r.coefs[k] * p.lo[j]
		}
		switch r.sense {
		case model.LessEqual:
			f.slack = 1
		case model.GreaterEqual:
			f.slack = -1
		}
		if f.b < 0 {
			floats.Scale(-1, f.coefs)
			f.slack, f.b = -f.slack, -f.b
		}
		forms = append(forms, f)
	}
	for k, j := range active {
		if math.IsInf(p.hi[j], 1) || implied[j] {
			continue
		}
		forms = append(forms, rowForm{cols: []int{k}, coefs: []float64{1}, slack: 1, b: p.hi[j] - p.lo[j]})
	}

	nSlack, nArt := 0, 0
	for _, f := range forms {
		if f.slack != 0 {
			nSlack++
		}
		if f.slack != 1 {
			nArt++
		}
	}

	m, nAct := len(forms), len(active)
	ncol := nAct + nSlack + nArt
	sf := &standardForm{
		a:          model.NewTriplets(m, ncol, 0),
		b:          make([]float64, m),
		c:          make([]float64, ncol),
		basic:      make([]int, m),
		artificial: make([]int, 0, nArt),
	}

	for k, j := range active {
		sf.c[k] = p.cost[j]
	}

	slack, art := nAct, nAct+nSlack
	for i, f := range forms {
		for k, col := range f.cols {
			sf.a.Add(i, col, f.coefs[k])
		}
		sf.b[i] = f.b
		if f.slack != 0 {
			sf.a.Add(i, slack, f.slack)
			if f.slack == 1 {
				sf.basic[i] = slack
			}
			slack++
		}
		if f.slack != 1 {
			sf.a.Add(i, art, 1)
			sf.artScale = math.Max(sf.artScale, f.b)
			sf.basic[i] = art
			sf.artificial = append(sf.artificial, art)
			art++
		}
	}
	return sf
}
