// Package model is a solver-agnostic representation of a mixed-integer
// program with optional bilinear constraint terms: a variable list, a
// constraint list and a linear objective.
//
// Builders append variables and constraints in a fixed order, so a model
// built twice from the same inputs serializes to identical bytes.
package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidModel indicates a structurally broken model.
var ErrInvalidModel = errors.New("invalid model")

// Kind is the domain of a variable.
type Kind int

const (
	Continuous Kind = iota
	Integer
	Binary
)

func (k Kind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sense is the relation of a constraint row.
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Direction is the optimization direction of the objective.
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

// Variable is one column of the model.
type Variable struct {
	Name  string
	Kind  Kind
	Lower float64
	Upper float64 // math.Inf(1) when unbounded
}

// Fixed reports whether the variable's bounds pin it to a single value.
func (v Variable) Fixed() bool {
	return v.Lower == v.Upper
}

// Term is Coef * x[Var].
type Term struct {
	Var  int
	Coef float64
}

// QuadTerm is Coef * x[X] * x[Y]. At least one of X and Y must be binary.
type QuadTerm struct {
	X, Y int
	Coef float64
}

// Constraint is Σ Linear + Σ Quad (Sense) RHS.
type Constraint struct {
	Name   string
	Linear []Term
	Quad   []QuadTerm
	Sense  Sense
	RHS    float64
}

// IsQuadratic reports whether the row has bilinear terms.
func (c *Constraint) IsQuadratic() bool {
	return len(c.Quad) > 0
}

// Objective is a linear objective.
type Objective struct {
	Direction Direction
	Terms     []Term
}

// Model is the complete program handed to a solver.
type Model struct {
	Name        string
	Vars        []Variable
	Constraints []Constraint
	Objective   Objective
}

// New creates an empty model.
func New(name string) *Model {
	return &Model{Name: name}
}

// AddVar appends a variable and returns its column index.
func (m *Model) AddVar(name string, kind Kind, lower, upper float64) int {
	if kind == Binary {
		lower, upper = math.Max(lower, 0), math.Min(upper, 1)
	}
	m.Vars = append(m.Vars, Variable{Name: name, Kind: kind, Lower: lower, Upper: upper})
	return len(m.Vars) - 1
}

// AddConstraint appends a row and returns its index.
func (m *Model) AddConstraint(c Constraint) int {
	m.Constraints = append(m.Constraints, c)
	return len(m.Constraints) - 1
}

// SetObjective replaces the objective.
func (m *Model) SetObjective(dir Direction, terms []Term) {
	m.Objective = Objective{Direction: dir, Terms: terms}
}

// NumQuadratic returns the number of rows carrying bilinear terms.
func (m *Model) NumQuadratic() int {
	n := 0
	for i := range m.Constraints {
		if m.Constraints[i].IsQuadratic() {
			n++
		}
	}
	return n
}

// Validate checks column references, bounds and the shape of bilinear
// terms.
func (m *Model) Validate() error {
	n := len(m.Vars)
	for j, v := range m.Vars {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || v.Lower > v.Upper {
			return fmt.Errorf("%w: variable %s has bounds [%g, %g]", ErrInvalidModel, v.Name, v.Lower, v.Upper)
		}
		if math.IsInf(v.Lower, 0) {
			return fmt.Errorf("%w: variable %d (%s) needs a finite lower bound", ErrInvalidModel, j, v.Name)
		}
	}

	checkTerms := func(where string, terms []Term) error {
		for _, t := range terms {
			if t.Var < 0 || t.Var >= n {
				return fmt.Errorf("%w: %s references column %d of %d", ErrInvalidModel, where, t.Var, n)
			}
		}
		return nil
	}

	for i := range m.Constraints {
		c := &m.Constraints[i]
		if err := checkTerms(c.Name, c.Linear); err != nil {
			return err
		}
		for _, q := range c.Quad {
			if q.X < 0 || q.X >= n || q.Y < 0 || q.Y >= n {
				return fmt.Errorf("%w: %s references column out of range", ErrInvalidModel, c.Name)
			}
			if m.Vars[q.X].Kind != Binary && m.Vars[q.Y].Kind != Binary {
				return fmt.Errorf("%w: %s: product %s*%s has no binary factor",
					ErrInvalidModel, c.Name, m.Vars[q.X].Name, m.Vars[q.Y].Name)
			}
		}
	}
	return checkTerms("objective", m.Objective.Terms)
}

// ObjectiveValue evaluates the objective at x.
func (m *Model) ObjectiveValue(x []float64) float64 {
	var sum float64
	for _, t := range m.Objective.Terms {
		sum += t.Coef * x[t.Var]
	}
	return sum
}

// Activity evaluates the left-hand side of constraint i at x.
func (m *Model) Activity(i int, x []float64) float64 {
	c := &m.Constraints[i]
	var sum float64
	for _, t := range c.Linear {
		sum += t.Coef * x[t.Var]
	}
	for _, q := range c.Quad {
		sum += q.Coef * x[q.X] * x[q.Y]
	}
	return sum
}

// Violation returns how far constraint i is from being satisfied at x
// (0 when satisfied).
func (m *Model) Violation(i int, x []float64) float64 {
	c := &m.Constraints[i]
	lhs := m.Activity(i, x)
	switch c.Sense {
	case LessEqual:
		return math.Max(0, lhs-c.RHS)
	case GreaterEqual:
		return math.Max(0, c.RHS-lhs)
	default:
		return math.Abs(lhs - c.RHS)
	}
}
