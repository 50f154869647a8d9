package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Triplets is a coordinate-format sparse matrix: entry k is
// Vals[k] at (Rows[k], Cols[k]). Duplicate coordinates add up.
type Triplets struct {
	NRows, NCols int
	Rows         []int
	Cols         []int
	Vals         []float64
}

// NewTriplets creates an empty r×c matrix with room for nnz entries.
func NewTriplets(r, c, nnz int) *Triplets {
	return &Triplets{
		NRows: r,
		NCols: c,
		Rows:  make([]int, 0, nnz),
		Cols:  make([]int, 0, nnz),
		Vals:  make([]float64, 0, nnz),
	}
}

// Add appends one entry. Zero values are skipped.
func (t *Triplets) Add(r, c int, v float64) {
	if r < 0 || r >= t.NRows || c < 0 || c >= t.NCols {
		panic(fmt.Sprintf("model: triplet (%d, %d) outside %dx%d", r, c, t.NRows, t.NCols))
	}
	if v == 0 {
		return
	}
	t.Rows = append(t.Rows, r)
	t.Cols = append(t.Cols, c)
	t.Vals = append(t.Vals, v)
}

// Len returns the number of stored entries.
func (t *Triplets) Len() int {
	return len(t.Vals)
}

// Dense materializes the matrix.
func (t *Triplets) Dense() *mat.Dense {
	d := mat.NewDense(max(t.NRows, 1), max(t.NCols, 1), nil)
	for k, v := range t.Vals {
		r, c := t.Rows[k], t.Cols[k]
		d.Set(r, c, d.At(r, c)+v)
	}
	return d
}

// LinearTriplets returns the linear part of every constraint as a sparse
// matrix, one row per constraint in model order.
func (m *Model) LinearTriplets() *Triplets {
	nnz := 0
	for i := range m.Constraints {
		nnz += len(m.Constraints[i].Linear)
	}
	t := NewTriplets(len(m.Constraints), len(m.Vars), nnz)
	for i := range m.Constraints {
		for _, term := range m.Constraints[i].Linear {
			t.Add(i, term.Var, term.Coef)
		}
	}
	return t
}
