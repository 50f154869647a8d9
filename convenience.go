package cascade

import (
	"context"
	"fmt"

	"github.com/tphakala/go-fir-cascade/internal/bitgrowth"
	"github.com/tphakala/go-fir-cascade/internal/builder"
	"github.com/tphakala/go-fir-cascade/internal/catalog"
)

// Design methods found in catalog manifests.
const (
	// MethodLeastSquares marks least-squares designed filters.
	MethodLeastSquares = catalog.MethodLeastSquares

	// MethodWindowedSinc marks windowed-sinc (fir1) designed filters.
	MethodWindowedSinc = catalog.MethodWindowedSinc
)

// LoadCatalog reads a manifest and every catalog file it names, in
// manifest order.
func LoadCatalog(manifestPath string) (*Catalog, error) {
	return catalog.LoadManifest(manifestPath)
}

// NewCatalog builds an in-memory catalog from filters, in order.
func NewCatalog(filters ...Filter) (*Catalog, error) {
	return catalog.New(filters...)
}

// MaximizeRejectionWithin finds the cascade with the highest total
// rejection whose area stays within areaMax, using default widths and the
// linearized encoding.
func MaximizeRejectionWithin(ctx context.Context, cat *Catalog, stages int, areaMax float64) (*Result, error) {
	return Optimize(ctx, &Config{
		Catalog:  cat,
		Stages:   stages,
		Budget:   areaMax,
		Mode:     MaximizeRejection,
		Encoding: EncodingLinearized,
	})
}

// MinimizeAreaFor finds the smallest cascade reaching at least
// rejectionMin dB, using default widths and the linearized encoding.
func MinimizeAreaFor(ctx context.Context, cat *Catalog, stages int, rejectionMin float64) (*Result, error) {
	return Optimize(ctx, &Config{
		Catalog:  cat,
		Stages:   stages,
		Budget:   rejectionMin,
		Mode:     MinimizeArea,
		Encoding: EncodingLinearized,
	})
}

// ParseMode maps a flag value such as "maximize-rejection" or
// "minimize-area" to a Mode.
func ParseMode(s string) (Mode, error) {
	m, err := builder.ParseMode(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return m, nil
}

// ParseEncoding maps "quadratic" or "linearized" to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	e, err := builder.ParseEncoding(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return e, nil
}

// ParseGrowthRule maps "worst-case" or "coefficient-only" to a GrowthRule.
func ParseGrowthRule(s string) (GrowthRule, error) {
	r, err := bitgrowth.ParseRule(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return r, nil
}
