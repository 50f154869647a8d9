// Package cascade selects FIR filters for the stages of a fixed-point
// filter cascade.
//
// A catalog of characterized filters (tap count, coefficient width and
// stopband rejection) is turned into a mixed-integer program that picks at
// most one filter per stage, chooses a right shift after every stage and
// tracks the resulting word width through the cascade. The program is
// solved by a built-in branch-and-bound solver and the assignment is
// re-verified before it is returned.
//
// # Quick Start
//
// Maximize the total rejection of a three-stage cascade under an area
// ceiling:
//
//	res, err := cascade.Optimize(ctx, &cascade.Config{
//	    ManifestPath: "filters.yaml",
//	    Stages:       3,
//	    Budget:       5000,
//	    Mode:         cascade.MaximizeRejection,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, st := range res.Stages {
//	    fmt.Println(st.Stage, st.Filter, st.Shift, st.OutWidth)
//	}
//
// Switching Mode to [MinimizeArea] turns Budget into a rejection floor and
// minimizes the total area instead.
//
// # Catalogs
//
// Filters come either from a manifest naming one binary catalog file per
// design method ([LoadCatalog], Config.ManifestPath) or from an in-memory
// catalog ([NewCatalog], Config.Catalog). A catalog file is a sequence of
// 12-byte little-endian records: uint16 tap count, uint16 coefficient
// width, float64 rejection in dB.
//
// # Model
//
// For stage i with input width in(i) (the input width PI_IN for stage 0,
// the previous stage's output otherwise) the model enforces
//
//	width[i]     = in(i) + Σ_j delta[i][j]*added[j] - shift[i]
//	area[i]      = Σ_j delta[i][j]*taps[j]*(coeffWidth[j] + in(i))
//	rejection[i] = Σ_j delta[i][j]*rejection[j]
//	in(i) + Σ_j piFir[i][j] - shift[i] >= rejection[i]/6
//
// A stage with no selected filter is a pass-through: zero area, zero
// rejection and zero shift. An area ceiling of zero is therefore feasible
// and yields an all-pass-through cascade.
//
// The area products may be emitted as native bilinear terms
// ([EncodingQuadratic]) or through an exact McCormick envelope
// ([EncodingLinearized]); both give the same optimum.
//
// # Errors
//
// [Optimize] reports [ErrCatalogUnavailable] when a catalog file cannot be
// read, [ErrInfeasible] when no cascade meets the budget, [ErrUnbounded]
// for an unbounded model and [ErrNumericInconsistency] when the solver
// assignment fails re-verification. Use errors.Is to test for them.
//
// # Thread Safety
//
// Optimize keeps no shared state. Concurrent calls are safe, including
// calls sharing one [Catalog].
package cascade
