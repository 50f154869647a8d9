// Command catalog-info lists the filters of a catalog manifest with their
// bit growth, area at a given input width and, optionally, the stopband
// attenuation of the coefficients cascade-sim would synthesize for them.
package main

import (
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	cascade "github.com/tphakala/go-fir-cascade"
	"github.com/tphakala/go-fir-cascade/internal/bitgrowth"
	"github.com/tphakala/go-fir-cascade/internal/filter"
)

const (
	defaultManifest = "filters.yaml"

	// Display limits
	maxRowsDefault = 0 // 0 lists every entry
)

func main() {
	if err := run(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	var (
		manifest = flag.String("manifest", defaultManifest, "Filter catalog manifest (YAML or JSON)")
		inWidth  = flag.Int("in-width", cascade.DefaultInputWidth, "Input width used for the area column")
		synth    = flag.Bool("synth", false, "Synthesize each filter and measure its stopband attenuation")
		maxRows  = flag.Int("n", maxRowsDefault, "Maximum number of entries to list (0 = all)")
	)
	flag.Parse()

	cat, err := cascade.LoadCatalog(*manifest)
	if err != nil {
		return err
	}

	fmt.Printf("=== %s: %d filters ===\n", *manifest, cat.Len())
	for _, m := range cat.Methods() {
		start, end, _ := cat.Range(m)
		fmt.Printf("  %-6s entries %d..%d\n", m, start, end-1)
	}
	fmt.Println()

	fmt.Printf("%5s  %-18s %5s %4s %8s %6s %6s %9s", "j", "name", "taps", "piC", "rej(dB)", "+w", "+w(c)", "area")
	if *synth {
		fmt.Printf(" %9s", "synth(dB)")
	}
	fmt.Println()

	for j, f := range cat.Filters() {
		if *maxRows > 0 && j >= *maxRows {
			fmt.Printf("  ... (%d more filters)\n", cat.Len()-j)
			break
		}
		fmt.Printf("%5d  %-18s %5d %4d %8.2f %6d %6d %9.0f",
			j, f.Name(), f.Taps, f.CoeffWidth, f.Rejection,
			f.AddedWidth(bitgrowth.RuleWorstCase),
			f.AddedWidth(bitgrowth.RuleCoefficientOnly),
			bitgrowth.StageArea(f.Taps, f.CoeffWidth, *inWidth))
		if *synth {
			att, err := synthesizedAttenuation(f)
			if err != nil {
				return err
			}
			fmt.Printf(" %9.2f", att)
		}
		fmt.Println()
	}
	return nil
}

// synthesizedAttenuation designs the quantized stand-in for f and measures
// its attenuation beyond the design's stopband edge.
func synthesizedAttenuation(f cascade.Filter) (float64, error) {
	q, err := filter.DesignQuantized(f.Taps, f.CoeffWidth, f.Rejection)
	if err != nil {
		return 0, fmt.Errorf("synthesize %s: %w", f.Name(), err)
	}
	return filter.StopbandAttenuation(q.Float(), q.StopbandEdge), nil
}
