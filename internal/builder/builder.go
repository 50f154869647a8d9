// Package builder turns a filter catalog, a stage count and a budget into a
// mixed-integer program selecting at most one filter per cascade stage.
//
// The program follows the cascade word width through every stage:
//
//	width[i] = inWidth(i) + Σ_j piFir[i][j] - Σ_j delta[i][j]*shift[i]
//
// where inWidth(0) is the fixed input width and inWidth(i) = width[i-1].
// Area and the applied shift are products of a binary selection and a
// bounded integer width. They are emitted either as native bilinear terms or
// through an exact McCormick envelope, selected by Params.Encoding; both
// encodings have the same feasible set on integral selections.
package builder

import (
	"errors"
	"fmt"
	"math"

	"github.com/tphakala/go-fir-cascade/internal/bitgrowth"
	"github.com/tphakala/go-fir-cascade/internal/catalog"
	"github.com/tphakala/go-fir-cascade/internal/model"
)

// Default fixed-point parameters.
const (
	DefaultInputWidth = 16  // PI_IN, PRN input
	DefaultMaxWidth   = 256 // PiMax
)

// ErrInvalidParams indicates parameters the builder cannot encode.
var ErrInvalidParams = errors.New("invalid model parameters")

// Mode selects which quantity is optimized and which one is budgeted.
type Mode int

const (
	// MaximizeRejection maximizes Σ rejection[i] under the area ceiling
	// Σ area[i] <= Budget.
	MaximizeRejection Mode = iota

	// MinimizeArea minimizes Σ area[i] under the rejection floor
	// Σ rejection[i] >= Budget.
	MinimizeArea
)

func (m Mode) String() string {
	switch m {
	case MaximizeRejection:
		return "maximize-rejection"
	case MinimizeArea:
		return "minimize-area"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a flag value back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "maximize-rejection", "max-rejection", "rejection":
		return MaximizeRejection, nil
	case "minimize-area", "min-area", "area":
		return MinimizeArea, nil
	default:
		return 0, fmt.Errorf("unknown objective mode %q", s)
	}
}

// Encoding selects how binary×integer products are represented.
type Encoding int

const (
	// EncodingQuadratic emits the products as bilinear constraint terms for
	// solvers that accept quadratically-constrained programs.
	EncodingQuadratic Encoding = iota

	// EncodingLinearized introduces z = delta*w auxiliaries bounded by
	// z <= PiMax*delta, z <= w, z >= w - PiMax*(1-delta).
	EncodingLinearized
)

func (e Encoding) String() string {
	switch e {
	case EncodingQuadratic:
		return "quadratic"
	case EncodingLinearized:
		return "linearized"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// ParseEncoding maps a flag value back to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "quadratic", "qcp", "":
		return EncodingQuadratic, nil
	case "linearized", "linear", "mccormick":
		return EncodingLinearized, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q", s)
	}
}

// Params configures one model.
type Params struct {
	Stages     int     // N
	Budget     float64 // area ceiling or rejection floor, per Mode
	Mode       Mode
	InputWidth int // PI_IN; 0 selects DefaultInputWidth
	MaxWidth   int // PiMax; 0 selects DefaultMaxWidth
	Encoding   Encoding
	Growth     bitgrowth.Rule

	// CumulativeHeadroom additionally requires
	// width[i] >= Σ_{s<=i} (rejection[s]/6 + 1) + 1, reserving a sign bit
	// per stage and one guard bit.
	CumulativeHeadroom bool
}

// WithDefaults returns p with zero widths replaced by the defaults.
func (p Params) WithDefaults() Params {
	if p.InputWidth == 0 {
		p.InputWidth = DefaultInputWidth
	}
	if p.MaxWidth == 0 {
		p.MaxWidth = DefaultMaxWidth
	}
	return p
}

// Validate checks the parameters after defaults are applied.
func (p Params) Validate() error {
	p = p.WithDefaults()
	if p.Stages < 0 {
		return fmt.Errorf("%w: stage count must be >= 0, got %d", ErrInvalidParams, p.Stages)
	}
	if math.IsNaN(p.Budget) || math.IsInf(p.Budget, 0) || p.Budget < 0 {
		return fmt.Errorf("%w: budget must be a finite value >= 0, got %g", ErrInvalidParams, p.Budget)
	}
	if p.Mode != MaximizeRejection && p.Mode != MinimizeArea {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidParams, int(p.Mode))
	}
	if p.Encoding != EncodingQuadratic && p.Encoding != EncodingLinearized {
		return fmt.Errorf("%w: unknown encoding %d", ErrInvalidParams, int(p.Encoding))
	}
	if p.MaxWidth < 1 {
		return fmt.Errorf("%w: max width must be positive, got %d", ErrInvalidParams, p.MaxWidth)
	}
	if p.InputWidth < 1 || p.InputWidth > p.MaxWidth {
		return fmt.Errorf("%w: input width %d outside [1, %d]", ErrInvalidParams, p.InputWidth, p.MaxWidth)
	}
	return nil
}

// Build emits the complete model for cat and p. The returned Layout maps
// model columns back to stages and catalog entries.
//
// Emission order is fixed: variables, at-most-one rows, area rows,
// rejection rows, width-added rows, width recurrence with the shift
// coupling, headroom rows, budget row, objective. Identical inputs always
// yield identical models.
func Build(cat *catalog.Catalog, p Params) (*model.Model, *Layout, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	p = p.WithDefaults()

	layout, err := NewLayout(p.Stages, cat.Len(), p.Encoding == EncodingLinearized)
	if err != nil {
		return nil, nil, err
	}

	b := &emitter{
		m:      model.New(fmt.Sprintf("cascade_%s_%dx%d", p.Mode, p.Stages, cat.Len())),
		l:      layout,
		cat:    cat,
		p:      p,
		bigM:   float64(p.MaxWidth),
		widths: make([]int, cat.Len()),
	}
	for j := range b.widths {
		b.widths[j] = cat.At(j).AddedWidth(p.Growth)
	}

	b.variables()
	for i := range p.Stages {
		b.atMostOne(i)
	}
	for i := range p.Stages {
		b.area(i)
	}
	for i := range p.Stages {
		b.rejection(i)
	}
	for i := range p.Stages {
		b.widthAdded(i)
	}
	for i := range p.Stages {
		b.recurrence(i)
	}
	for i := range p.Stages {
		b.headroom(i)
	}
	b.budgetAndObjective()

	return b.m, layout, nil
}

// emitter holds the state of one Build call. It is never shared.
type emitter struct {
	m      *model.Model
	l      *Layout
	cat    *catalog.Catalog
	p      Params
	bigM   float64
	widths []int // added width per catalog entry
}

func (b *emitter) variables() {
	n, mCount := b.p.Stages, b.cat.Len()
	maxW := float64(b.p.MaxWidth)

	add := func(want int, kind model.Kind, lower, upper float64) {
		got := b.m.AddVar(b.l.Name(want), kind, lower, upper)
		if got != want {
			panic(fmt.Sprintf("builder: column %d emitted at %d", want, got))
		}
	}

	for i := range n {
		for j := range mCount {
			add(b.l.Delta(i, j), model.Binary, 0, 1)
		}
	}
	for i := range n {
		for j := range mCount {
			add(b.l.PiFir(i, j), model.Integer, 0, float64(b.widths[j]))
		}
	}
	for i := range n {
		add(b.l.Shift(i), model.Integer, 0, maxW)
	}
	for i := range n {
		add(b.l.Area(i), model.Continuous, 0, math.Inf(1))
	}
	for i := range n {
		add(b.l.Rejection(i), model.Continuous, 0, math.Inf(1))
	}
	for i := range n {
		add(b.l.Width(i), model.Integer, 0, maxW)
	}
	add(b.l.PiIn(), model.Integer, float64(b.p.InputWidth), float64(b.p.InputWidth))

	if !b.l.Linearized() {
		return
	}
	for i := range n {
		for j := range mCount {
			add(b.l.Z(i, j), model.Continuous, 0, maxW)
		}
	}
	for i := range n {
		for j := range mCount {
			add(b.l.SZ(i, j), model.Continuous, 0, maxW)
		}
	}
}

// atMostOne: Σ_j delta[i][j] <= 1.
func (b *emitter) atMostOne(i int) {
	terms := make([]model.Term, 0, b.cat.Len())
	for j := range b.cat.Len() {
		terms = append(terms, model.Term{Var: b.l.Delta(i, j), Coef: 1})
	}
	b.m.AddConstraint(model.Constraint{
		Name:   fmt.Sprintf("cstr_nb_fir_%d", i),
		Linear: terms,
		Sense:  model.LessEqual,
		RHS:    1,
	})
}

// area: area[i] = Σ_j delta[i][j] * cardC_j * (piC_j + inWidth(i)).
func (b *emitter) area(i int) {
	in := b.l.InWidth(i)
	row := model.Constraint{
		Name:   fmt.Sprintf("cstr_a_%d", i),
		Linear: []model.Term{{Var: b.l.Area(i), Coef: -1}},
		Sense:  model.Equal,
	}

	for j := range b.cat.Len() {
		f := b.cat.At(j)
		taps := float64(f.Taps)
		row.Linear = append(row.Linear, model.Term{Var: b.l.Delta(i, j), Coef: taps * float64(f.CoeffWidth)})
		if b.l.Linearized() {
			z := b.l.Z(i, j)
			b.envelope(fmt.Sprintf("cstr_z_%d_%d", i, j), z, b.l.Delta(i, j), in)
			row.Linear = append(row.Linear, model.Term{Var: z, Coef: taps})
		} else {
			row.Quad = append(row.Quad, model.QuadTerm{X: b.l.Delta(i, j), Y: in, Coef: taps})
		}
	}
	b.m.AddConstraint(row)
}

// envelope emits the exact McCormick rows for z = delta*w with
// 0 <= w <= PiMax and delta binary:
//
//	z - PiMax*delta <= 0
//	z - w <= 0
//	z - w - PiMax*delta >= -PiMax
//
// z >= 0 is carried by the variable bound.
func (b *emitter) envelope(name string, z, delta, w int) {
	b.m.AddConstraint(model.Constraint{
		Name:   name + "_ub_delta",
		Linear: []model.Term{{Var: z, Coef: 1}, {Var: delta, Coef: -b.bigM}},
		Sense:  model.LessEqual,
	})
	b.m.AddConstraint(model.Constraint{
		Name:   name + "_ub_w",
		Linear: []model.Term{{Var: z, Coef: 1}, {Var: w, Coef: -1}},
		Sense:  model.LessEqual,
	})
	b.m.AddConstraint(model.Constraint{
		Name:   name + "_lb",
		Linear: []model.Term{{Var: z, Coef: 1}, {Var: w, Coef: -1}, {Var: delta, Coef: -b.bigM}},
		Sense:  model.GreaterEqual,
		RHS:    -b.bigM,
	})
}

// rejection: rejection[i] = Σ_j delta[i][j] * noiseLevel_j.
func (b *emitter) rejection(i int) {
	row := model.Constraint{
		Name:  fmt.Sprintf("cstr_r_%d", i),
		Sense: model.Equal,
	}
	for j := range b.cat.Len() {
		row.Linear = append(row.Linear, model.Term{Var: b.l.Delta(i, j), Coef: b.cat.At(j).Rejection})
	}
	row.Linear = append(row.Linear, model.Term{Var: b.l.Rejection(i), Coef: -1})
	b.m.AddConstraint(row)
}

// widthAdded: piFir[i][j] = delta[i][j] * addedWidth_j.
func (b *emitter) widthAdded(i int) {
	for j := range b.cat.Len() {
		b.m.AddConstraint(model.Constraint{
			Name: fmt.Sprintf("cstr_pi_fir_%d_%d", i, j),
			Linear: []model.Term{
				{Var: b.l.Delta(i, j), Coef: float64(b.widths[j])},
				{Var: b.l.PiFir(i, j), Coef: -1},
			},
			Sense: model.Equal,
		})
	}
}

// recurrence: width[i] = inWidth(i) + Σ_j piFir[i][j] - Σ_j delta[i][j]*shift[i],
// followed by the pass-through gate shift[i] <= PiMax * Σ_j delta[i][j]
// which pins the shift of a stage without a filter to zero.
func (b *emitter) recurrence(i int) {
	shift := b.l.Shift(i)
	row := model.Constraint{
		Name: fmt.Sprintf("cstr_pi_%d", i),
		Linear: []model.Term{
			{Var: b.l.Width(i), Coef: -1},
			{Var: b.l.InWidth(i), Coef: 1},
		},
		Sense: model.Equal,
	}
	for j := range b.cat.Len() {
		row.Linear = append(row.Linear, model.Term{Var: b.l.PiFir(i, j), Coef: 1})
		if b.l.Linearized() {
			sz := b.l.SZ(i, j)
			b.envelope(fmt.Sprintf("cstr_sz_%d_%d", i, j), sz, b.l.Delta(i, j), shift)
			row.Linear = append(row.Linear, model.Term{Var: sz, Coef: -1})
		} else {
			row.Quad = append(row.Quad, model.QuadTerm{X: b.l.Delta(i, j), Y: shift, Coef: -1})
		}
	}
	b.m.AddConstraint(row)

	gate := model.Constraint{
		Name:   fmt.Sprintf("cstr_pi_s_gate_%d", i),
		Linear: []model.Term{{Var: shift, Coef: 1}},
		Sense:  model.LessEqual,
	}
	for j := range b.cat.Len() {
		gate.Linear = append(gate.Linear, model.Term{Var: b.l.Delta(i, j), Coef: -b.bigM})
	}
	b.m.AddConstraint(gate)
}

// headroom: inWidth(i) + Σ_j piFir[i][j] - shift[i] - rejection[i]/6 >= 0,
// i.e. the shifted output keeps enough bits to carry the stage's rejection.
func (b *emitter) headroom(i int) {
	row := model.Constraint{
		Name:  fmt.Sprintf("cstr_pi_s_%d", i),
		Sense: model.GreaterEqual,
	}
	row.Linear = append(row.Linear, model.Term{Var: b.l.Shift(i), Coef: -1})
	for j := range b.cat.Len() {
		row.Linear = append(row.Linear, model.Term{Var: b.l.PiFir(i, j), Coef: 1})
	}
	row.Linear = append(row.Linear,
		model.Term{Var: b.l.Rejection(i), Coef: -1 / bitgrowth.DBPerBit},
		model.Term{Var: b.l.InWidth(i), Coef: 1},
	)
	b.m.AddConstraint(row)

	if !b.p.CumulativeHeadroom {
		return
	}
	cum := model.Constraint{
		Name:   fmt.Sprintf("cstr_pi_i_min_%d", i),
		Linear: []model.Term{{Var: b.l.Width(i), Coef: 1}},
		Sense:  model.GreaterEqual,
		RHS:    float64(i + 2),
	}
	for s := 0; s <= i; s++ {
		cum.Linear = append(cum.Linear, model.Term{Var: b.l.Rejection(s), Coef: -1 / bitgrowth.DBPerBit})
	}
	b.m.AddConstraint(cum)
}

func (b *emitter) budgetAndObjective() {
	areas := make([]model.Term, 0, b.p.Stages)
	rejections := make([]model.Term, 0, b.p.Stages)
	for i := range b.p.Stages {
		areas = append(areas, model.Term{Var: b.l.Area(i), Coef: 1})
		rejections = append(rejections, model.Term{Var: b.l.Rejection(i), Coef: 1})
	}

	switch b.p.Mode {
	case MaximizeRejection:
		b.m.AddConstraint(model.Constraint{
			Name:   "cstr_A_max",
			Linear: areas,
			Sense:  model.LessEqual,
			RHS:    b.p.Budget,
		})
		b.m.SetObjective(model.Maximize, rejections)
	case MinimizeArea:
		b.m.AddConstraint(model.Constraint{
			Name:   "cstr_R_min",
			Linear: rejections,
			Sense:  model.GreaterEqual,
			RHS:    b.p.Budget,
		})
		b.m.SetObjective(model.Minimize, areas)
	}
}
