// Package solver solves model.Model programs.
//
// BranchAndBound is a depth-first branch-and-bound over LP relaxations.
// Each relaxation is brought into the standard form
//
//	minimize cᵀx  s.t.  Ax = b, x >= 0
//
// by substituting fixed columns, turning single-column rows into bounds,
// shifting every column by its lower bound, emitting the remaining finite
// upper bounds as rows and giving every row a slack or artificial column,
// so the starting basis is the identity. A two-phase tableau simplex then
// drives the artificials to zero before optimizing the true cost. Every
// phase is bounded in pivots and observes the context between pivots, so
// a node LP either finishes, fails with ErrNumerical or returns the
// context error. Bilinear terms with a binary
// factor are linear once either factor is fixed at a node and are relaxed
// through their McCormick envelope otherwise; the envelope is exact at
// integral binaries, so accepted incumbents satisfy the bilinear rows.
//
// Infeasible and unbounded programs are reported as a Solution status, not
// as errors. Errors are reserved for solver failures.
package solver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/go-fir-cascade/internal/model"
)

// Solver failures.
var (
	// ErrNodeLimit reports that the search stopped before proving
	// optimality.
	ErrNodeLimit = errors.New("solver: node limit reached")

	// ErrNumerical reports a relaxation the simplex could not solve
	// reliably.
	ErrNumerical = errors.New("solver: numerical failure")

	// ErrUnsupportedTerm reports a bilinear term the relaxation cannot
	// envelope (no binary factor, or an unbounded or negative co-factor).
	ErrUnsupportedTerm = errors.New("solver: unsupported bilinear term")
)

// Status is the outcome of a solve.
type Status int

const (
	Optimal Status = iota
	Infeasible
	Unbounded
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Solution is the result of a solve. Values and Objective are set only
// when Status is Optimal; Values has one entry per model column.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
}

// Solver is implemented by every backend.
type Solver interface {
	Solve(ctx context.Context, m *model.Model) (*Solution, error)
}

// Defaults for BranchAndBound.
const (
	DefaultTolerance            = 1e-9
	DefaultIntegralityTolerance = 1e-6
	DefaultNodeLimit            = 100000
)

// Option configures a BranchAndBound.
type Option func(*BranchAndBound)

// WithTolerance sets the simplex optimality tolerance and the feasibility
// tolerance of presolve checks.
func WithTolerance(tol float64) Option {
	return func(s *BranchAndBound) {
		if tol > 0 {
			s.tol = tol
		}
	}
}

// WithIntegralityTolerance sets how far an integer column may sit from
// the nearest integer and still count as integral.
func WithIntegralityTolerance(tol float64) Option {
	return func(s *BranchAndBound) {
		if tol > 0 {
			s.intTol = tol
		}
	}
}

// WithNodeLimit caps the number of relaxations solved. Zero or negative
// keeps the default.
func WithNodeLimit(n int) Option {
	return func(s *BranchAndBound) {
		if n > 0 {
			s.nodeLimit = n
		}
	}
}

// WithLogger sets the logger receiving search progress at debug level.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *BranchAndBound) {
		if l != nil {
			s.log = l
		}
	}
}

// BranchAndBound is a deterministic depth-first branch-and-bound solver.
// It holds configuration only, so one value may serve concurrent solves.
type BranchAndBound struct {
	tol       float64
	intTol    float64
	nodeLimit int
	log       logrus.FieldLogger
}

// NewBranchAndBound returns a solver with the given options applied over
// the defaults.
func NewBranchAndBound(opts ...Option) *BranchAndBound {
	s := &BranchAndBound{
		tol:       DefaultTolerance,
		intTol:    DefaultIntegralityTolerance,
		nodeLimit: DefaultNodeLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		s.log = discard
	}
	return s
}
