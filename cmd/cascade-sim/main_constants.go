package main

// Default command-line flag values
const (
	defaultManifest = "filters.yaml"
	defaultOutBits  = 24
	defaultStages   = 2
	defaultBudget   = 1000.0
	defaultMode     = "maximize-rejection"
	defaultLogLevel = "warning"
)

// Sample format constants
const (
	bitsPerSample16 = 16
	bitsPerSample24 = 24
	bitsPerSample32 = 32
	maxWAVBits      = 32

	wavFormatPCM = 1 // WAVE_FORMAT_PCM
)

// Frames read per chunk
const (
	bufferFrames = 16384
)
