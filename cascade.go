package cascade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tphakala/go-fir-cascade/internal/bitgrowth"
	"github.com/tphakala/go-fir-cascade/internal/builder"
	"github.com/tphakala/go-fir-cascade/internal/catalog"
	"github.com/tphakala/go-fir-cascade/internal/extract"
	"github.com/tphakala/go-fir-cascade/internal/model"
	"github.com/tphakala/go-fir-cascade/internal/solver"
)

// Mode selects the optimized quantity and the budgeted one.
type Mode = builder.Mode

const (
	// MaximizeRejection maximizes the total rejection under the area
	// ceiling Config.Budget.
	MaximizeRejection = builder.MaximizeRejection

	// MinimizeArea minimizes the total area under the rejection floor
	// Config.Budget.
	MinimizeArea = builder.MinimizeArea
)

// Encoding selects how binary×width products reach the solver.
type Encoding = builder.Encoding

const (
	EncodingQuadratic  = builder.EncodingQuadratic
	EncodingLinearized = builder.EncodingLinearized
)

// GrowthRule selects how the width a filter adds is derived.
type GrowthRule = bitgrowth.Rule

const (
	// GrowthWorstCase adds coeffWidth + ceil(log2(taps)) bits.
	GrowthWorstCase = bitgrowth.RuleWorstCase

	// GrowthCoefficientOnly adds coeffWidth bits.
	GrowthCoefficientOnly = bitgrowth.RuleCoefficientOnly
)

// Catalog is an ordered, immutable collection of filter configurations.
type Catalog = catalog.Catalog

// Filter is one characterized filter configuration.
type Filter = catalog.FilterConfiguration

// Selection and SelectedFilter describe an extracted cascade.
type (
	Selection      = extract.Selection
	SelectedFilter = extract.SelectedFilter
)

// Errors returned by Optimize.
var (
	// ErrInvalidConfig indicates invalid configuration parameters.
	ErrInvalidConfig = errors.New("invalid cascade configuration")

	// ErrCatalogUnavailable indicates a catalog or manifest file that could
	// not be read.
	ErrCatalogUnavailable = catalog.ErrCatalogUnavailable

	// ErrInfeasible indicates that no cascade satisfies the budget.
	ErrInfeasible = extract.ErrInfeasible

	// ErrUnbounded indicates an unbounded model.
	ErrUnbounded = extract.ErrUnbounded

	// ErrNumericInconsistency indicates a solver assignment that failed
	// re-verification.
	ErrNumericInconsistency = extract.ErrNumericInconsistency

	// ErrNodeLimit indicates that the search stopped at Config.NodeLimit
	// before proving optimality.
	ErrNodeLimit = solver.ErrNodeLimit
)

// Config holds the cascade optimization parameters.
type Config struct {
	// ManifestPath names a YAML or JSON manifest mapping design methods to
	// catalog files. Ignored when Catalog is set.
	ManifestPath string

	// Catalog is an already loaded catalog.
	Catalog *Catalog

	// Stages is the number of cascade stages N.
	Stages int

	// Budget is the area ceiling in MaximizeRejection mode and the
	// rejection floor, in dB, in MinimizeArea mode.
	Budget float64

	// Mode selects the objective.
	Mode Mode

	// InputWidth is the cascade input width PI_IN in bits.
	// Set to 0 to use DefaultInputWidth.
	InputWidth int

	// MaxWidth bounds every stage width and shift.
	// Set to 0 to use DefaultMaxWidth. Smaller values tighten the model.
	MaxWidth int

	// Encoding selects quadratic or linearized area products.
	Encoding Encoding

	// Growth selects the bit-growth rule.
	Growth GrowthRule

	// CumulativeHeadroom additionally reserves a sign bit per stage and
	// one guard bit on the accumulated rejection.
	CumulativeHeadroom bool

	// NodeLimit caps the branch-and-bound search.
	// Set to 0 to use the solver default.
	NodeLimit int

	// Logger receives build and solve progress. Nil keeps Optimize silent.
	Logger logrus.FieldLogger
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Catalog == nil && c.ManifestPath == "" {
		return fmt.Errorf("%w: a catalog or a manifest path is required", ErrInvalidConfig)
	}

	if c.Stages < 0 || c.Stages > maxStages {
		return fmt.Errorf("%w: stage count must be 0-%d, got %d", ErrInvalidConfig, maxStages, c.Stages)
	}

	if math.IsNaN(c.Budget) || math.IsInf(c.Budget, 0) || c.Budget < 0 {
		return fmt.Errorf("%w: budget must be a finite value >= 0, got %g", ErrInvalidConfig, c.Budget)
	}

	if c.InputWidth < 0 || c.MaxWidth < 0 {
		return fmt.Errorf("%w: widths must not be negative", ErrInvalidConfig)
	}

	if c.NodeLimit < 0 {
		return fmt.Errorf("%w: node limit must not be negative", ErrInvalidConfig)
	}

	if c.Growth != GrowthWorstCase && c.Growth != GrowthCoefficientOnly {
		return fmt.Errorf("%w: unknown growth rule %d", ErrInvalidConfig, int(c.Growth))
	}

	if err := c.params().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

func (c *Config) params() builder.Params {
	return builder.Params{
		Stages:             c.Stages,
		Budget:             c.Budget,
		Mode:               c.Mode,
		InputWidth:         c.InputWidth,
		MaxWidth:           c.MaxWidth,
		Encoding:           c.Encoding,
		Growth:             c.Growth,
		CumulativeHeadroom: c.CumulativeHeadroom,
	}.WithDefaults()
}

func (c *Config) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (c *Config) catalog() (*Catalog, error) {
	if c.Catalog != nil {
		return c.Catalog, nil
	}
	return LoadCatalog(c.ManifestPath)
}

// Result is an optimized cascade.
type Result struct {
	Selection

	// Params are the effective model parameters, defaults applied.
	Params builder.Params

	// Model is the program that was solved, for LP dumps and auditing.
	Model *model.Model

	// Nodes is the number of branch-and-bound nodes explored.
	Nodes int

	// Elapsed is the wall time spent building, solving and extracting.
	Elapsed time.Duration
}

// WriteLP writes the solved model in LP text format.
func (r *Result) WriteLP(w io.Writer) error {
	return model.WriteLP(w, r.Model)
}

// Optimize builds the cascade model for cfg, solves it and returns the
// verified selection. The context is checked between branch-and-bound
// nodes and between the simplex pivots of every node.
func Optimize(ctx context.Context, cfg *Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.logger()
	start := time.Now()

	cat, err := cfg.catalog()
	if err != nil {
		return nil, err
	}

	params := cfg.params()
	m, layout, err := builder.Build(cat, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	log.WithFields(logrus.Fields{
		fieldStages:   params.Stages,
		fieldFilters:  cat.Len(),
		fieldMode:     params.Mode.String(),
		fieldEncoding: params.Encoding.String(),
		fieldBudget:   params.Budget,
		fieldVars:     len(m.Vars),
		fieldRows:     len(m.Constraints),
	}).Info("cascade model built")

	bb := solver.NewBranchAndBound(solver.WithNodeLimit(cfg.NodeLimit), solver.WithLogger(log))
	sol, err := bb.Solve(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("solve %s: %w", m.Name, err)
	}

	sel, err := extract.Extract(cat, layout, params, sol)
	if err != nil {
		log.WithFields(logrus.Fields{fieldNodes: sol.Nodes, "status": sol.Status.String()}).
			WithError(err).Warn("no cascade extracted")
		return nil, err
	}

	res := &Result{
		Selection: *sel,
		Params:    params,
		Model:     m,
		Nodes:     sol.Nodes,
		Elapsed:   time.Since(start),
	}
	log.WithFields(logrus.Fields{
		fieldObjective: res.Objective,
		fieldNodes:     res.Nodes,
		fieldElapsed:   res.Elapsed,
	}).Info("cascade optimized")
	return res, nil
}
