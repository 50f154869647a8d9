package solver

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/go-fir-cascade/internal/model"
)

// node is one subproblem: the model with tightened column bounds.
type node struct {
	lo, hi []float64
	depth  int
}

// Solve runs the branch-and-bound search on m. The returned Values are
// exact integers on integer and binary columns.
func (s *BranchAndBound) Solve(ctx context.Context, m *model.Model) (*Solution, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	sign := 1.0
	if m.Objective.Direction == model.Maximize {
		sign = -1
	}

	root := node{lo: make([]float64, len(m.Vars)), hi: make([]float64, len(m.Vars))}
	for j, v := range m.Vars {
		root.lo[j], root.hi[j] = v.Lower, v.Upper
		if v.Kind != model.Continuous {
			root.lo[j] = math.Ceil(v.Lower - s.intTol)
			root.hi[j] = math.Floor(v.Upper + s.intTol)
			if root.lo[j] > root.hi[j] {
				return &Solution{Status: Infeasible}, nil
			}
		}
	}

	var (
		stack   = []node{root}
		best    []float64
		bestObj = math.Inf(1)
		nodes   int
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if nodes >= s.nodeLimit {
			return nil, fmt.Errorf("%w: %d nodes explored", ErrNodeLimit, nodes)
		}

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		p, err := linearize(m, nd.lo, nd.hi, sign)
		if err != nil {
			return nil, err
		}
		r, err := s.solve(ctx, p)
		if err != nil {
			return nil, err
		}

		switch r.status {
		case Infeasible:
			continue
		case Unbounded:
			s.log.WithFields(logrus.Fields{"model": m.Name, "node": nodes, "depth": nd.depth}).
				Debug("relaxation unbounded")
			return &Solution{Status: Unbounded, Nodes: nodes}, nil
		}
		if best != nil && r.obj >= bestObj-s.tol*math.Max(1, math.Abs(bestObj)) {
			continue
		}

		j := s.branchColumn(m, r.x)
		if j < 0 {
			best = s.roundIntegers(m, r.x)
			bestObj = sign * m.ObjectiveValue(best)
			s.log.WithFields(logrus.Fields{
				"model":     m.Name,
				"node":      nodes,
				"depth":     nd.depth,
				"objective": sign * bestObj,
			}).Debug("new incumbent")
			continue
		}

		v := r.x[j]
		down := node{lo: nd.lo, hi: slices.Clone(nd.hi), depth: nd.depth + 1}
		down.hi[j] = math.Floor(v)
		up := node{lo: slices.Clone(nd.lo), hi: nd.hi, depth: nd.depth + 1}
		up.lo[j] = math.Ceil(v)

		// The child on the side the relaxation leans toward is explored
		// first; it is pushed last.
		if v-math.Floor(v) >= 0.5 {
			stack = append(stack, down, up)
		} else {
			stack = append(stack, up, down)
		}
	}

	s.log.WithFields(logrus.Fields{"model": m.Name, "nodes": nodes, "found": best != nil}).
		Debug("search finished")

	if best == nil {
		return &Solution{Status: Infeasible, Nodes: nodes}, nil
	}
	return &Solution{
		Status:    Optimal,
		Objective: m.ObjectiveValue(best),
		Values:    best,
		Nodes:     nodes,
	}, nil
}

// branchColumn returns the most fractional integer column of x, the
// lowest index on ties, or -1 when x is integral.
func (s *BranchAndBound) branchColumn(m *model.Model, x []float64) int {
	col, worst := -1, s.intTol
	for j, v := range m.Vars {
		if v.Kind == model.Continuous {
			continue
		}
		f := x[j] - math.Floor(x[j])
		if d := math.Min(f, 1-f); d > worst {
			col, worst = j, d
		}
	}
	return col
}

func (s *BranchAndBound) roundIntegers(m *model.Model, x []float64) []float64 {
	out := slices.Clone(x)
	for j, v := range m.Vars {
		if v.Kind != model.Continuous {
			out[j] = math.Round(out[j])
		}
	}
	return out
}
