package model

import (
	"fmt"
	"math"

	"github.com/tphakala/go-fir-cascade/internal/simdops"
)

// Evaluation holds the objective and every row activity of a model at a
// point.
type Evaluation struct {
	Objective  float64
	Activities []float64

	// MaxViolation is the largest constraint violation, MaxRow its row
	// (-1 when every row holds exactly).
	MaxViolation float64
	MaxRow       int
}

// Evaluate computes row activities, violations and the objective of m at x.
func Evaluate(m *Model, x []float64) (*Evaluation, error) {
	if len(x) != len(m.Vars) {
		return nil, fmt.Errorf("%w: point has %d values for %d columns", ErrInvalidModel, len(x), len(m.Vars))
	}

	ev := &Evaluation{
		Activities: make([]float64, len(m.Constraints)),
		MaxRow:     -1,
	}

	var (
		coef    []float64
		idx     []int
		scratch []float64
	)
	dot := func(terms []Term) float64 {
		coef, idx = coef[:0], idx[:0]
		for _, t := range terms {
			coef = append(coef, t.Coef)
			idx = append(idx, t.Var)
		}
		var v float64
		v, scratch = simdops.SparseDot(coef, idx, x, scratch)
		return v
	}

	ev.Objective = dot(m.Objective.Terms)
	for i := range m.Constraints {
		c := &m.Constraints[i]
		lhs := dot(c.Linear)
		for _, q := range c.Quad {
			lhs += q.Coef * x[q.X] * x[q.Y]
		}
		ev.Activities[i] = lhs

		var viol float64
		switch c.Sense {
		case LessEqual:
			viol = lhs - c.RHS
		case GreaterEqual:
			viol = c.RHS - lhs
		default:
			viol = math.Abs(lhs - c.RHS)
		}
		if viol > ev.MaxViolation {
			ev.MaxViolation, ev.MaxRow = viol, i
		}
	}
	return ev, nil
}
