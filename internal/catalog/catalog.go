// Package catalog loads the pre-characterized FIR filter configurations the
// cascade optimizer chooses from.
//
// A catalog file is a flat sequence of little-endian records:
//
//	uint16  tap count          (cardC)
//	uint16  coefficient width  (piC, bits)
//	float64 rejection          (dB)
//
// repeated until end of file. A manifest maps generation-method names to
// catalog files; all methods are concatenated, in manifest order, into one
// flat index used by the optimization model.
package catalog

import (
	"errors"
	"fmt"
	"math"

	"github.com/tphakala/go-fir-cascade/internal/bitgrowth"
)

// Method names the algorithm that produced a filter's coefficients. The set
// is open-ended: any manifest key is a valid method.
type Method string

// Well-known generation methods.
const (
	MethodLeastSquares Method = "firls"
	MethodWindowedSinc Method = "fir1"
)

// Errors returned by the loaders.
var (
	// ErrCatalogUnavailable indicates a catalog or manifest file could not be
	// opened or read. The caller may retry with a corrected path.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrInvalidManifest indicates a manifest that is not a flat
	// method-to-path mapping.
	ErrInvalidManifest = errors.New("invalid catalog manifest")

	// ErrInvalidRecord indicates a record whose fields are out of range.
	ErrInvalidRecord = errors.New("invalid catalog record")
)

// FilterConfiguration is one characterized filter. Values are immutable once
// loaded; the model references them by flat index.
type FilterConfiguration struct {
	Method     Method
	Taps       int     // cardC
	CoeffWidth int     // piC, bits
	Rejection  float64 // dB, >= 0
}

// AddedWidth returns the width this filter adds to its input under rule.
func (f FilterConfiguration) AddedWidth(rule bitgrowth.Rule) int {
	return bitgrowth.AddedWidth(rule, f.Taps, f.CoeffWidth)
}

// Name is the canonical file-style name of the configuration, e.g.
// "firls_063_int12".
func (f FilterConfiguration) Name() string {
	return fmt.Sprintf("%s_%03d_int%02d", f.Method, f.Taps, f.CoeffWidth)
}

func (f FilterConfiguration) String() string {
	return fmt.Sprintf("fir('%s', C:%d, PiC:%d, %g dB)", f.Method, f.Taps, f.CoeffWidth, f.Rejection)
}

func (f FilterConfiguration) validate() error {
	if f.Taps < 1 {
		return fmt.Errorf("%w: tap count must be positive, got %d", ErrInvalidRecord, f.Taps)
	}
	if f.CoeffWidth < 1 {
		return fmt.Errorf("%w: coefficient width must be positive, got %d", ErrInvalidRecord, f.CoeffWidth)
	}
	if !(f.Rejection >= 0) || math.IsInf(f.Rejection, 1) {
		return fmt.Errorf("%w: rejection must be finite and >= 0 dB, got %g", ErrInvalidRecord, f.Rejection)
	}
	return nil
}

// span is the half-open range [start, end) of one method in the flat index.
type span struct {
	method     Method
	start, end int
}

// Catalog is the flat, ordered collection of filter configurations.
type Catalog struct {
	filters []FilterConfiguration
	spans   []span
}

// New builds an in-memory catalog. Consecutive entries sharing a method form
// one sub-collection.
func New(entries ...FilterConfiguration) (*Catalog, error) {
	c := &Catalog{}
	for _, f := range entries {
		if err := f.validate(); err != nil {
			return nil, err
		}
		c.append(f.Method, []FilterConfiguration{f})
	}
	return c, nil
}

func (c *Catalog) append(method Method, filters []FilterConfiguration) {
	start := len(c.filters)
	c.filters = append(c.filters, filters...)
	if n := len(c.spans); n > 0 && c.spans[n-1].method == method && c.spans[n-1].end == start {
		c.spans[n-1].end = len(c.filters)
		return
	}
	c.spans = append(c.spans, span{method: method, start: start, end: len(c.filters)})
}

// Len returns the number of configurations M.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.filters)
}

// At returns the configuration at flat index j.
func (c *Catalog) At(j int) *FilterConfiguration {
	return &c.filters[j]
}

// Filters returns a copy of the flat configuration list.
func (c *Catalog) Filters() []FilterConfiguration {
	if c == nil {
		return nil
	}
	out := make([]FilterConfiguration, len(c.filters))
	copy(out, c.filters)
	return out
}

// Methods returns the generation methods in catalog order.
func (c *Catalog) Methods() []Method {
	if c == nil {
		return nil
	}
	methods := make([]Method, 0, len(c.spans))
	for _, s := range c.spans {
		methods = append(methods, s.method)
	}
	return methods
}

// Range returns the flat index range [start, end) of a method's
// sub-collection. ok is false when the method is absent.
func (c *Catalog) Range(method Method) (start, end int, ok bool) {
	if c == nil {
		return 0, 0, false
	}
	for _, s := range c.spans {
		if s.method == method {
			return s.start, s.end, true
		}
	}
	return 0, 0, false
}
