package builder

import (
	"fmt"

	"github.com/tphakala/go-fir-cascade/internal/bitgrowth"
	"github.com/tphakala/go-fir-cascade/internal/catalog"
)

// Assign returns the model point describing a concrete cascade: choices[i]
// is the catalog index used at stage i (-1 for pass-through) and shifts[i]
// its right shift. Every defined column (area, rejection, width, product
// auxiliaries) is derived, so the point satisfies all definition rows;
// whether it also meets headroom and budget is left to the model.
func Assign(cat *catalog.Catalog, l *Layout, p Params, choices, shifts []int) ([]float64, error) {
	p = p.WithDefaults()
	if len(choices) != l.Stages() || len(shifts) != l.Stages() {
		return nil, fmt.Errorf("%w: %d choices and %d shifts for %d stages",
			ErrInvalidParams, len(choices), len(shifts), l.Stages())
	}
	if l.Filters() != cat.Len() {
		return nil, fmt.Errorf("%w: layout has %d filters, catalog %d", ErrInvalidParams, l.Filters(), cat.Len())
	}

	x := make([]float64, l.NumVars())
	x[l.PiIn()] = float64(p.InputWidth)

	in := p.InputWidth
	for i, j := range choices {
		if j < -1 || j >= cat.Len() {
			return nil, fmt.Errorf("%w: stage %d uses filter %d of %d", ErrInvalidParams, i, j, cat.Len())
		}
		if j < 0 {
			if shifts[i] != 0 {
				return nil, fmt.Errorf("%w: pass-through stage %d shifts by %d", ErrInvalidParams, i, shifts[i])
			}
			x[l.Width(i)] = float64(in)
			continue
		}

		f := cat.At(j)
		added := f.AddedWidth(p.Growth)
		x[l.Delta(i, j)] = 1
		x[l.PiFir(i, j)] = float64(added)
		x[l.Shift(i)] = float64(shifts[i])
		x[l.Area(i)] = bitgrowth.StageArea(f.Taps, f.CoeffWidth, in)
		x[l.Rejection(i)] = f.Rejection
		if l.Linearized() {
			x[l.Z(i, j)] = float64(in)
			x[l.SZ(i, j)] = float64(shifts[i])
		}

		in = bitgrowth.OutputWidth(in, added, shifts[i])
		x[l.Width(i)] = float64(in)
	}
	return x, nil
}
