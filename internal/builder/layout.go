package builder

import (
	"errors"
	"fmt"
	"math"
)

// ErrLayoutOverflow indicates a stage/filter count whose column numbering
// would not fit the index range supported by solver backends.
var ErrLayoutOverflow = errors.New("model layout overflow")

// maxColumns bounds the column count so that every index fits an int32,
// the widest index type flat-array solver interfaces accept.
const maxColumns = math.MaxInt32

// Block identifies a family of model variables.
type Block int

const (
	BlockDelta Block = iota
	BlockPiFir
	BlockShift
	BlockArea
	BlockRejection
	BlockWidth
	BlockPiIn
	BlockZ
	BlockSZ
)

var blockNames = [...]string{"delta", "pi_fir", "pi_s", "a", "r", "pi", "PI_IN", "z", "sz"}

func (b Block) String() string {
	if b < 0 || int(b) >= len(blockNames) {
		return fmt.Sprintf("Block(%d)", int(b))
	}
	return blockNames[b]
}

// Layout is the column numbering scheme of a cascade model. All methods are
// pure functions of (stage, filter); two layouts with the same dimensions
// number every variable identically.
//
// Column order:
//
//	delta[N][M] | piFir[N][M] | shift[N] | area[N] | rejection[N] | width[N] | PI_IN | z[N][M] | sz[N][M]
//
// The z and sz blocks exist only for the linearized encoding.
type Layout struct {
	stages     int
	filters    int
	linearized bool

	nm int // stages*filters
}

// NewLayout validates the dimensions and returns the numbering scheme.
func NewLayout(stages, filters int, linearized bool) (*Layout, error) {
	if stages < 0 || filters < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%d", ErrLayoutOverflow, stages, filters)
	}
	if stages > (maxColumns-1)/4 || (filters > 0 && stages > maxColumns/filters) {
		return nil, fmt.Errorf("%w: %d stages x %d filters", ErrLayoutOverflow, stages, filters)
	}

	nm := stages * filters
	pairBlocks := 2
	if linearized {
		pairBlocks = 4
	}
	// pairBlocks*nm + 4*stages + 1 <= maxColumns
	if nm > (maxColumns-1)/pairBlocks || 4*stages > maxColumns-1-pairBlocks*nm {
		return nil, fmt.Errorf("%w: %d stages x %d filters", ErrLayoutOverflow, stages, filters)
	}

	return &Layout{stages: stages, filters: filters, linearized: linearized, nm: nm}, nil
}

// Stages returns N.
func (l *Layout) Stages() int { return l.stages }

// Filters returns M.
func (l *Layout) Filters() int { return l.filters }

// Linearized reports whether the auxiliary product blocks are present.
func (l *Layout) Linearized() bool { return l.linearized }

// NumVars returns the total number of columns.
func (l *Layout) NumVars() int {
	n := 2*l.nm + 4*l.stages + 1
	if l.linearized {
		n += 2 * l.nm
	}
	return n
}

func (l *Layout) pair(base, i, j int) int {
	if i < 0 || i >= l.stages || j < 0 || j >= l.filters {
		panic(fmt.Sprintf("builder: index (%d, %d) outside %dx%d layout", i, j, l.stages, l.filters))
	}
	return base + i*l.filters + j
}

func (l *Layout) single(base, i int) int {
	if i < 0 || i >= l.stages {
		panic(fmt.Sprintf("builder: stage %d outside %d stages", i, l.stages))
	}
	return base + i
}

// Delta is the column of delta[i][j].
func (l *Layout) Delta(i, j int) int { return l.pair(0, i, j) }

// PiFir is the column of piFir[i][j].
func (l *Layout) PiFir(i, j int) int { return l.pair(l.nm, i, j) }

// Shift is the column of shift[i].
func (l *Layout) Shift(i int) int { return l.single(2*l.nm, i) }

// Area is the column of area[i].
func (l *Layout) Area(i int) int { return l.single(2*l.nm+l.stages, i) }

// Rejection is the column of rejection[i].
func (l *Layout) Rejection(i int) int { return l.single(2*l.nm+2*l.stages, i) }

// Width is the column of width[i].
func (l *Layout) Width(i int) int { return l.single(2*l.nm+3*l.stages, i) }

// PiIn is the column of the fixed input width.
func (l *Layout) PiIn() int { return 2*l.nm + 4*l.stages }

// InWidth is the column carrying the width entering stage i.
func (l *Layout) InWidth(i int) int {
	if i == 0 {
		return l.PiIn()
	}
	return l.Width(i - 1)
}

// Z is the column of the area product auxiliary z[i][j].
func (l *Layout) Z(i, j int) int {
	l.mustLinearized()
	return l.pair(l.PiIn()+1, i, j)
}

// SZ is the column of the shift product auxiliary sz[i][j].
func (l *Layout) SZ(i, j int) int {
	l.mustLinearized()
	return l.pair(l.PiIn()+1+l.nm, i, j)
}

func (l *Layout) mustLinearized() {
	if !l.linearized {
		panic("builder: auxiliary block requested from a quadratic layout")
	}
}

// Decode maps a column back to its block and indices. filter is -1 for
// per-stage blocks and both are -1 for PI_IN. ok is false for columns
// outside the layout.
func (l *Layout) Decode(col int) (block Block, stage, filter int, ok bool) {
	if col < 0 || col >= l.NumVars() {
		return 0, -1, -1, false
	}

	piIn := l.PiIn()
	switch {
	case col < 2*l.nm:
		block = BlockDelta
		if col >= l.nm {
			block, col = BlockPiFir, col-l.nm
		}
		return block, col / l.filters, col % l.filters, true
	case col < piIn:
		off := col - 2*l.nm
		return BlockShift + Block(off/l.stages), off % l.stages, -1, true
	case col == piIn:
		return BlockPiIn, -1, -1, true
	default:
		off := col - piIn - 1
		block = BlockZ
		if off >= l.nm {
			block, off = BlockSZ, off-l.nm
		}
		return block, off / l.filters, off % l.filters, true
	}
}

// Name returns the model variable name of a column.
func (l *Layout) Name(col int) string {
	block, i, j, ok := l.Decode(col)
	switch {
	case !ok:
		return fmt.Sprintf("x%d", col)
	case block == BlockPiIn:
		return block.String()
	case j < 0:
		return fmt.Sprintf("%s_%d", block, i)
	default:
		return fmt.Sprintf("%s_%d_%d", block, i, j)
	}
}
