// Package testutil provides reusable test helpers for the cascade packages.
package testutil

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-fir-cascade/internal/catalog"
)

// Default tolerances for solver-backed assertions.
const (
	DefaultTolerance   = 1e-9
	SolverTolerance    = 1e-6
	ObjectiveTolerance = 1e-6
)

// File permissions for fixtures.
const fixtureFileMode = 0o644

// WriteCatalogFile encodes filters into dir/name and returns the path.
func WriteCatalogFile(t *testing.T, dir, name string, filters []catalog.FilterConfiguration) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, catalog.Write(&buf, filters))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), fixtureFileMode))
	return path
}

// WriteManifest writes a YAML manifest listing method/file pairs in order.
// pairs alternates method name and relative path.
func WriteManifest(t *testing.T, dir string, pairs ...string) string {
	t.Helper()
	require.Zero(t, len(pairs)%2, "pairs must alternate method and path")
	var sb strings.Builder
	for i := 0; i < len(pairs); i += 2 {
		sb.WriteString(pairs[i])
		sb.WriteString(": ")
		sb.WriteString(pairs[i+1])
		sb.WriteString("\n")
	}
	path := filepath.Join(dir, "filters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), fixtureFileMode))
	return path
}

// MustCatalog builds an in-memory catalog or fails the test.
func MustCatalog(t *testing.T, filters ...catalog.FilterConfiguration) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(filters...)
	require.NoError(t, err)
	return c
}

// AssertIntegral verifies that v is within tolerance of an integer.
func AssertIntegral(t *testing.T, v, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	return assert.InDelta(t, math.Round(v), v, tolerance, msgAndArgs...)
}

// AssertInRange verifies that a value is within [min, max].
func AssertInRange(t *testing.T, value, minVal, maxVal float64, msgAndArgs ...any) bool {
	t.Helper()
	if value < minVal || value > maxVal {
		return assert.Fail(t, "value out of range",
			"value %f is outside range [%f, %f]", value, minVal, maxVal)
	}
	return true
}

// AssertRelativeError verifies that the relative error between actual and expected is within tolerance.
func AssertRelativeError(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	if expected == 0 {
		return assert.InDelta(t, expected, actual, tolerance, msgAndArgs...)
	}
	relError := math.Abs(actual-expected) / math.Abs(expected)
	return assert.LessOrEqual(t, relError, tolerance,
		"relative error %e exceeds tolerance %e (expected=%f, actual=%f)",
		relError, tolerance, expected, actual)
}
