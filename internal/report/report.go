// Package report renders an optimized cascade as the plain-text results
// sheet and builds the matching simulator command line.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/go-fir-cascade/internal/bitgrowth"
	"github.com/tphakala/go-fir-cascade/internal/builder"
	"github.com/tphakala/go-fir-cascade/internal/extract"
)

// Simulator defaults used in the generated command line.
const (
	SimulatorBinary = "cascade-sim"
	DefaultSimInput = "data_prn.wav"
)

// ErrInvalidStageSpec indicates a malformed NAME:SHIFT:WIDTH argument.
var ErrInvalidStageSpec = errors.New("invalid stage spec")

// Info carries the run metadata printed next to the selection.
type Info struct {
	Mode    builder.Mode
	Nodes   int
	Elapsed time.Duration

	// ManifestPath is passed to the simulator. An empty path omits the
	// simulator section.
	ManifestPath string

	// SimInput is the simulator input file; empty selects DefaultSimInput.
	SimInput string
}

// Write renders sel to w.
func Write(w io.Writer, sel *extract.Selection, info Info) error {
	var b bytes.Buffer

	b.WriteString("\n")
	fmt.Fprintf(&b, "Computation Time = %.3f seconds\n", info.Elapsed.Seconds())
	fmt.Fprintf(&b, "Nodes = %d\n", info.Nodes)

	b.WriteString("\n### Main criteria ###\n")
	fmt.Fprintf(&b, "Objective = %g (%s)\n", sel.Objective, info.Mode)
	fmt.Fprintf(&b, "Area = %g\n", sel.TotalArea)
	fmt.Fprintf(&b, "Rejection = %g\n", sel.TotalRejection)
	fmt.Fprintf(&b, "Last pi_i = %d\n", sel.FinalWidth)

	b.WriteString("\n### Selected filters ###\n")
	for _, st := range sel.Stages {
		fmt.Fprintf(&b, "Stage #%d\n", st.Stage)
		if st.PassThrough() {
			b.WriteString("pass-through\n")
		} else {
			fmt.Fprintf(&b, "%s\n", st.Filter)
		}
		fmt.Fprintf(&b, "pi_in: %d\n", st.InWidth)
		fmt.Fprintf(&b, "pi_fir: %d\n", st.AddedWidth)
		fmt.Fprintf(&b, "pi_out: %d\n", st.OutWidth)
		fmt.Fprintf(&b, "r_i: %g\n", st.Rejection)
		fmt.Fprintf(&b, "r_i/6: %.4g\n", bitgrowth.HeadroomBits(st.Rejection))
		fmt.Fprintf(&b, "With shift: %d\n", st.Shift)
		fmt.Fprintf(&b, "Stage area: %g\n", st.Area)
	}

	if info.ManifestPath != "" {
		b.WriteString("\n### Command for the simulator ###\n")
		b.WriteString(SimulatorCommand(sel, info.ManifestPath, info.SimInput))
		b.WriteString("\n")
	}

	_, err := w.Write(b.Bytes())
	return err
}

// SimulatorCommand returns the cascade-sim invocation replaying sel.
// Pass-through stages are left out.
func SimulatorCommand(sel *extract.Selection, manifest, input string) string {
	if input == "" {
		input = DefaultSimInput
	}
	parts := []string{
		SimulatorBinary,
		"-manifest", manifest,
		"-in", input,
		"-out", fmt.Sprintf("simu_%d_stage.wav", len(sel.Stages)),
	}
	for _, st := range sel.Stages {
		if !st.PassThrough() {
			parts = append(parts, StageSpec(st))
		}
	}
	return strings.Join(parts, " ")
}

// StageSpec formats a selected stage as NAME:SHIFT:WIDTH, where WIDTH is
// the modelled output width.
func StageSpec(st extract.SelectedFilter) string {
	return fmt.Sprintf("%s:%d:%d", st.Filter.Name(), st.Shift, st.OutWidth)
}

// ParseStageSpec splits a NAME:SHIFT:WIDTH argument.
func ParseStageSpec(s string) (name string, shift, width int, err error) {
	fields := strings.Split(s, ":")
	if len(fields) != 3 || fields[0] == "" {
		return "", 0, 0, fmt.Errorf("%w: %q, want NAME:SHIFT:WIDTH", ErrInvalidStageSpec, s)
	}
	shift, err = strconv.Atoi(fields[1])
	if err != nil || shift < 0 {
		return "", 0, 0, fmt.Errorf("%w: %q: shift must be a non-negative integer", ErrInvalidStageSpec, s)
	}
	width, err = strconv.Atoi(fields[2])
	if err != nil || width < 1 {
		return "", 0, 0, fmt.Errorf("%w: %q: width must be a positive integer", ErrInvalidStageSpec, s)
	}
	return fields[0], shift, width, nil
}
