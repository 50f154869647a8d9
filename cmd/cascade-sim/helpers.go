package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"

	cascade "github.com/tphakala/go-fir-cascade"
	"github.com/tphakala/go-fir-cascade/internal/filter"
	"github.com/tphakala/go-fir-cascade/internal/pipeline"
	"github.com/tphakala/go-fir-cascade/internal/report"
)

// wavInputInfo holds validated input file information.
type wavInputInfo struct {
	file     *os.File
	decoder  *wav.Decoder
	rate     int
	channels int
	bitDepth int
	format   *audio.Format
}

// openWAVInput opens and validates a WAV file, returning format information.
func openWAVInput(path string) (*wavInputInfo, error) {
	inputFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	decoder := wav.NewDecoder(inputFile)
	if !decoder.IsValidFile() {
		_ = inputFile.Close()
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	format := decoder.Format()
	info := &wavInputInfo{
		file:     inputFile,
		decoder:  decoder,
		rate:     format.SampleRate,
		channels: format.NumChannels,
		bitDepth: int(decoder.BitDepth),
		format:   format,
	}
	if info.channels < 1 || info.bitDepth < 1 || info.bitDepth > maxWAVBits {
		_ = inputFile.Close()
		return nil, fmt.Errorf("unsupported WAV format: %d channels, %d-bit", info.channels, info.bitDepth)
	}
	return info, nil
}

// Close closes the input file.
func (w *wavInputInfo) Close() error {
	return w.file.Close()
}

// wavOutputWriter wraps the output file and its encoder.
type wavOutputWriter struct {
	file    *os.File
	encoder *wav.Encoder
	format  *audio.Format
	bits    int
}

// createWAVOutput creates the output file and encoder.
func createWAVOutput(path string, sampleRate, bitDepth, channels int) (*wavOutputWriter, error) {
	outputFile, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &wavOutputWriter{
		file:    outputFile,
		encoder: wav.NewEncoder(outputFile, sampleRate, bitDepth, channels, wavFormatPCM),
		format:  &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		bits:    bitDepth,
	}, nil
}

// WriteSamples writes interleaved samples.
func (w *wavOutputWriter) WriteSamples(samples []int) error {
	return w.encoder.Write(&audio.IntBuffer{
		Format:         w.format,
		Data:           samples,
		SourceBitDepth: w.bits,
	})
}

// Close finalizes the WAV header and closes the file.
func (w *wavOutputWriter) Close() error {
	if err := w.encoder.Close(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// requantize moves a sample from a fromBits-wide signed word to a
// toBits-wide one: truncating shifts when narrowing, left shifts when
// widening.
func requantize(v int64, fromBits, toBits int) int64 {
	switch {
	case fromBits > toBits:
		return v >> (fromBits - toBits)
	case fromBits < toBits:
		return v << (toBits - fromBits)
	default:
		return v
	}
}

// clampToWidth saturates v to a signed bits-wide range.
func clampToWidth(v int64, bits int) int64 {
	hi := int64(1)<<(bits-1) - 1
	return min(max(v, -hi-1), hi)
}

// resolveStages turns NAME:SHIFT:WIDTH arguments into pipeline stages,
// synthesizing each filter's coefficients from its catalog entry.
func resolveStages(cat *cascade.Catalog, args []string) ([]pipeline.StageSpec, error) {
	byName := make(map[string]cascade.Filter, cat.Len())
	for _, f := range cat.Filters() {
		if _, dup := byName[f.Name()]; !dup {
			byName[f.Name()] = f
		}
	}

	specs := make([]pipeline.StageSpec, 0, len(args))
	for _, arg := range args {
		name, shift, width, err := report.ParseStageSpec(arg)
		if err != nil {
			return nil, err
		}
		f, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: no catalog filter named %q", errUnknownFilter, name)
		}
		spec, err := stageFor(f, shift, width)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// stagesFromSelection builds the pipeline of an optimized cascade.
// Pass-through stages have no filter and are skipped.
func stagesFromSelection(sel *cascade.Selection) ([]pipeline.StageSpec, error) {
	specs := make([]pipeline.StageSpec, 0, len(sel.Stages))
	for _, st := range sel.Stages {
		if st.PassThrough() {
			continue
		}
		spec, err := stageFor(*st.Filter, st.Shift, st.OutWidth)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func stageFor(f cascade.Filter, shift, width int) (pipeline.StageSpec, error) {
	q, err := filter.DesignQuantized(f.Taps, f.CoeffWidth, f.Rejection)
	if err != nil {
		return pipeline.StageSpec{}, fmt.Errorf("synthesize %s: %w", f.Name(), err)
	}
	return pipeline.StageSpec{Name: f.Name(), Coeffs: q.Coeffs, Shift: shift, Width: width}, nil
}

// simOptions describes one simulation run.
type simOptions struct {
	inputPath  string
	outputPath string
	inWidth    int // PI_IN; input samples are requantized to this width
	outBits    int // output WAV bit depth
	stages     []pipeline.StageSpec
	parallel   bool
}

// simStats summarizes a simulation.
type simStats struct {
	rate     int
	channels int
	bitDepth int
	frames   int64

	// stages holds per-channel pipeline statistics.
	stages [][]pipeline.StageStats
}

// overflows returns the names of stages that overflowed on any channel.
func (s *simStats) overflows() []string {
	var names []string
	if len(s.stages) == 0 {
		return names
	}
	for i := range s.stages[0] {
		for ch := range s.stages {
			if s.stages[ch][i].Overflow() {
				names = append(names, s.stages[ch][i].Name)
				break
			}
		}
	}
	return names
}

// finalWidth is the word width leaving the last stage.
func finalWidth(inWidth int, stages []pipeline.StageSpec) int {
	w := inWidth
	for _, st := range stages {
		if st.Width > 0 {
			w = st.Width
		}
	}
	return w
}

// simulate streams the input WAV through one pipeline per channel and
// writes the requantized result.
func simulate(opts simOptions, log logrus.FieldLogger) (stats *simStats, err error) {
	input, err := openWAVInput(opts.inputPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = input.Close() }()

	pipes := make([]*pipeline.Pipeline, input.channels)
	for ch := range pipes {
		if pipes[ch], err = pipeline.New(opts.inWidth, opts.stages); err != nil {
			return nil, err
		}
	}

	output, err := createWAVOutput(opts.outputPath, input.rate, opts.outBits, input.channels)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := output.Close(); err == nil {
			err = closeErr
		}
	}()

	log.WithFields(logrus.Fields{
		"rate":      input.rate,
		"channels":  input.channels,
		"bit_depth": input.bitDepth,
		"stages":    len(opts.stages),
	}).Info("simulating cascade")

	outWidth := finalWidth(opts.inWidth, opts.stages)
	buf := &audio.IntBuffer{Data: make([]int, bufferFrames*input.channels), Format: input.format}
	channelBufs := make([][]int64, input.channels)
	interleaved := make([]int, 0, len(buf.Data))
	stats = &simStats{rate: input.rate, channels: input.channels, bitDepth: input.bitDepth}

	for {
		n, readErr := input.decoder.PCMBuffer(buf)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, fmt.Errorf("failed to read audio data: %w", readErr)
		}
		frames := n / input.channels
		if frames == 0 {
			break
		}
		stats.frames += int64(frames)

		for ch := range channelBufs {
			channelBufs[ch] = channelBufs[ch][:0]
		}
		for i := range frames {
			for ch := range input.channels {
				v := requantize(int64(buf.Data[i*input.channels+ch]), input.bitDepth, opts.inWidth)
				channelBufs[ch] = append(channelBufs[ch], clampToWidth(v, opts.inWidth))
			}
		}

		filtered, err := processChannels(pipes, channelBufs, opts.parallel)
		if err != nil {
			return nil, err
		}

		interleaved = interleaved[:0]
		for i := range frames {
			for ch := range input.channels {
				v := requantize(filtered[ch][i], outWidth, opts.outBits)
				interleaved = append(interleaved, int(clampToWidth(v, opts.outBits)))
			}
		}
		if err := output.WriteSamples(interleaved); err != nil {
			return nil, fmt.Errorf("failed to write audio data: %w", err)
		}
	}

	stats.stages = make([][]pipeline.StageStats, len(pipes))
	for ch, p := range pipes {
		stats.stages[ch] = p.Stats()
	}
	return stats, nil
}

// processChannels runs every channel through its pipeline, concurrently
// when parallel is set.
func processChannels(pipes []*pipeline.Pipeline, channelBufs [][]int64, parallel bool) ([][]int64, error) {
	out := make([][]int64, len(pipes))
	if !parallel || len(pipes) == 1 {
		for ch, p := range pipes {
			y, err := p.Process(channelBufs[ch])
			if err != nil {
				return nil, fmt.Errorf("channel %d: %w", ch, err)
			}
			out[ch] = y
		}
		return out, nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(pipes))
	for ch, p := range pipes {
		wg.Go(func() {
			y, err := p.Process(channelBufs[ch])
			if err != nil {
				errs[ch] = fmt.Errorf("channel %d: %w", ch, err)
				return
			}
			out[ch] = y
		})
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}
