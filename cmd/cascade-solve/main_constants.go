package main

// Default command-line flag values
const (
	defaultManifest = "filters.yaml"
	defaultStages   = 2
	defaultBudget   = 1000.0 // area ceiling, or rejection floor in dB with -mode minimize-area
	defaultMode     = "maximize-rejection"
	defaultEncoding = "linearized"
	defaultGrowth   = "worst-case"
	defaultLogLevel = "warning"
)

// Output file permissions
const (
	outputFileMode = 0o644
)
