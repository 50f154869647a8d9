// Command cascade-solve chooses the filters of a fixed-point FIR cascade.
//
// Usage:
//
//	cascade-solve -manifest filters.yaml -stages 3 -budget 5000
//	cascade-solve -mode minimize-area -budget 90 -stages 2
//	cascade-solve -encoding quadratic -lp model.lp -o results.txt
//
// The results sheet lists the selected filter, widths and shift of every
// stage and ends with the cascade-sim command replaying the cascade.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	cascade "github.com/tphakala/go-fir-cascade"
	"github.com/tphakala/go-fir-cascade/internal/report"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	var (
		manifest   = flag.String("manifest", defaultManifest, "Filter catalog manifest (YAML or JSON)")
		stages     = flag.Int("stages", defaultStages, "Number of cascade stages")
		budget     = flag.Float64("budget", defaultBudget, "Area ceiling, or rejection floor in dB with -mode minimize-area")
		mode       = flag.String("mode", defaultMode, "Objective: maximize-rejection, minimize-area")
		encoding   = flag.String("encoding", defaultEncoding, "Product encoding: quadratic, linearized")
		growth     = flag.String("growth", defaultGrowth, "Bit-growth rule: worst-case, coefficient-only")
		inWidth    = flag.Int("in-width", cascade.DefaultInputWidth, "Cascade input width PI_IN in bits")
		maxWidth   = flag.Int("max-width", cascade.DefaultMaxWidth, "Upper bound on every stage width")
		cumulative = flag.Bool("cumulative", false, "Reserve a sign bit per stage and a guard bit on accumulated rejection")
		nodeLimit  = flag.Int("node-limit", 0, "Branch-and-bound node limit (0 = solver default)")
		lpPath     = flag.String("lp", "", "Write the model in LP format to this file")
		outPath    = flag.String("o", "", "Write the results sheet to this file instead of stdout")
		simInput   = flag.String("sim-input", report.DefaultSimInput, "Input WAV named in the simulator command")
		logLevel   = flag.String("log-level", defaultLogLevel, "Log level: debug, info, warning, error")
	)
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		return err
	}

	cfg := &cascade.Config{
		ManifestPath:       *manifest,
		Stages:             *stages,
		Budget:             *budget,
		InputWidth:         *inWidth,
		MaxWidth:           *maxWidth,
		CumulativeHeadroom: *cumulative,
		NodeLimit:          *nodeLimit,
		Logger:             logger,
	}
	if cfg.Mode, err = cascade.ParseMode(*mode); err != nil {
		return err
	}
	if cfg.Encoding, err = cascade.ParseEncoding(*encoding); err != nil {
		return err
	}
	if cfg.Growth, err = cascade.ParseGrowthRule(*growth); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := cascade.Optimize(ctx, cfg)
	switch {
	case errors.Is(err, cascade.ErrInfeasible):
		return fmt.Errorf("no cascade of %d stages meets budget %g: %w", cfg.Stages, cfg.Budget, err)
	case err != nil:
		return err
	}

	if *lpPath != "" {
		if err := writeFile(*lpPath, res.WriteLP); err != nil {
			return fmt.Errorf("write LP model: %w", err)
		}
		logger.WithField("path", *lpPath).Info("model written")
	}

	info := report.Info{
		Mode:         res.Params.Mode,
		Nodes:        res.Nodes,
		Elapsed:      res.Elapsed,
		ManifestPath: *manifest,
		SimInput:     *simInput,
	}
	write := func(w io.Writer) error { return report.Write(w, &res.Selection, info) }
	if *outPath == "" {
		return write(os.Stdout)
	}
	return writeFile(*outPath, write)
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}

// writeFile creates path and hands it to fn, reporting close errors on the
// success path.
func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFileMode)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return fn(f)
}
