package cascade

import "github.com/tphakala/go-fir-cascade/internal/builder"

// Fixed-point defaults
const (
	DefaultInputWidth = builder.DefaultInputWidth // PI_IN when Config.InputWidth is 0
	DefaultMaxWidth   = builder.DefaultMaxWidth   // word width ceiling when Config.MaxWidth is 0
)

// Configuration limits
const (
	maxStages = 64 // Longest cascade Optimize accepts
)

// Log field names
const (
	fieldStages    = "stages"
	fieldFilters   = "filters"
	fieldMode      = "mode"
	fieldEncoding  = "encoding"
	fieldBudget    = "budget"
	fieldVars      = "vars"
	fieldRows      = "rows"
	fieldNodes     = "nodes"
	fieldObjective = "objective"
	fieldElapsed   = "elapsed"
)
