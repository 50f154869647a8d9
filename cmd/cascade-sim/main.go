// Command cascade-sim replays a FIR cascade on a WAV file with fixed-point
// arithmetic and reports the word widths each stage actually needed.
//
// Usage:
//
//	cascade-sim -manifest filters.yaml -in data_prn.wav -out simu.wav firls_016_int06:3:19 fir1_032_int08:6:24
//	cascade-sim -manifest filters.yaml -in data_prn.wav -stages 2 -budget 5000
//
// Stage arguments use the NAME:SHIFT:WIDTH form printed by cascade-solve.
// Without stage arguments the cascade is optimized first, using -stages,
// -budget and -mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	cascade "github.com/tphakala/go-fir-cascade"
	"github.com/tphakala/go-fir-cascade/internal/pipeline"
	"github.com/tphakala/go-fir-cascade/internal/report"
)

// errUnknownFilter indicates a stage argument naming no catalog entry.
var errUnknownFilter = errors.New("unknown filter")

// errOverflow is returned with -strict when a stage outgrew its width.
var errOverflow = errors.New("stage overflow")

func main() {
	if err := run(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	var (
		manifest = flag.String("manifest", defaultManifest, "Filter catalog manifest (YAML or JSON)")
		inPath   = flag.String("in", report.DefaultSimInput, "Input WAV file")
		outPath  = flag.String("out", "", "Output WAV file (default simu_<N>_stage.wav)")
		inWidth  = flag.Int("in-width", cascade.DefaultInputWidth, "Cascade input width PI_IN in bits")
		outBits  = flag.Int("out-bits", defaultOutBits, "Output WAV bit depth: 16, 24, 32")
		stages   = flag.Int("stages", defaultStages, "Stages to optimize when no stage arguments are given")
		budget   = flag.Float64("budget", defaultBudget, "Budget to optimize with when no stage arguments are given")
		mode     = flag.String("mode", defaultMode, "Objective to optimize with: maximize-rejection, minimize-area")
		parallel = flag.Bool("parallel", true, "Process channels concurrently")
		strict   = flag.Bool("strict", false, "Fail when a stage needs more bits than modelled")
		logLevel = flag.String("log-level", defaultLogLevel, "Log level: debug, info, warning, error")
	)
	flag.Parse()

	lvl, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *outBits != bitsPerSample16 && *outBits != bitsPerSample24 && *outBits != bitsPerSample32 {
		return fmt.Errorf("unsupported output bit depth %d", *outBits)
	}

	cat, err := cascade.LoadCatalog(*manifest)
	if err != nil {
		return err
	}

	var specs []pipeline.StageSpec
	if flag.NArg() > 0 {
		specs, err = resolveStages(cat, flag.Args())
	} else {
		specs, err = optimizeStages(cat, *stages, *budget, *mode, *inWidth, logger)
	}
	if err != nil {
		return err
	}

	if *outPath == "" {
		*outPath = fmt.Sprintf("simu_%d_stage.wav", len(specs))
	}

	start := time.Now()
	stats, err := simulate(simOptions{
		inputPath:  *inPath,
		outputPath: *outPath,
		inWidth:    *inWidth,
		outBits:    *outBits,
		stages:     specs,
		parallel:   *parallel,
	}, logger)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("Simulated %s -> %s\n", filepath.Base(*inPath), filepath.Base(*outPath))
	fmt.Printf("  %d Hz, %d channels, %d-bit in, %d-bit out\n", stats.rate, stats.channels, stats.bitDepth, *outBits)
	fmt.Printf("  %d frames in %.2fs\n", stats.frames, elapsed.Seconds())
	printStageStats(stats)

	if over := stats.overflows(); len(over) > 0 {
		logger.WithField("stages", over).Warn("observed width exceeds modelled width")
		if *strict {
			return fmt.Errorf("%w: %v", errOverflow, over)
		}
	}
	return nil
}

// optimizeStages solves for a cascade and converts it to pipeline stages.
func optimizeStages(cat *cascade.Catalog, stages int, budget float64, mode string, inWidth int, log logrus.FieldLogger) ([]pipeline.StageSpec, error) {
	m, err := cascade.ParseMode(mode)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := cascade.Optimize(ctx, &cascade.Config{
		Catalog:    cat,
		Stages:     stages,
		Budget:     budget,
		Mode:       m,
		InputWidth: inWidth,
		Encoding:   cascade.EncodingLinearized,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"objective": res.Objective,
		"area":      res.TotalArea,
		"rejection": res.TotalRejection,
		"selected":  res.Selected(),
	}).Info("cascade optimized")
	return stagesFromSelection(&res.Selection)
}

func printStageStats(stats *simStats) {
	for ch, stages := range stats.stages {
		fmt.Printf("  Channel %d:\n", ch)
		for i, st := range stages {
			mark := ""
			if st.Overflow() {
				mark = "  OVERFLOW"
			}
			fmt.Printf("    #%d %-18s fir %2d bits, out %2d bits (modelled %2d)%s\n",
				i, st.Name, st.FIRWidth, st.OutWidth, st.ModelWidth, mark)
		}
	}
}
