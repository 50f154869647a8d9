package catalog_test

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-fir-cascade/internal/bitgrowth"
	"github.com/tphakala/go-fir-cascade/internal/catalog"
	"github.com/tphakala/go-fir-cascade/internal/testutil"
)

var (
	firlsEntries = []catalog.FilterConfiguration{
		{Method: catalog.MethodLeastSquares, Taps: 8, CoeffWidth: 4, Rejection: 20},
		{Method: catalog.MethodLeastSquares, Taps: 16, CoeffWidth: 6, Rejection: 35},
	}
	fir1Entries = []catalog.FilterConfiguration{
		{Method: catalog.MethodWindowedSinc, Taps: 63, CoeffWidth: 12, Rejection: 61.5},
	}
)

func TestReadWrite_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, catalog.Write(&buf, firlsEntries))
	assert.Equal(t, 24, buf.Len(), "two 12-byte records")

	got, err := catalog.Read(&buf, catalog.MethodLeastSquares)
	require.NoError(t, err)
	assert.Equal(t, firlsEntries, got)
}

func TestRead_PartialTrailingRecord(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, catalog.Write(&buf, firlsEntries))
	data := buf.Bytes()

	for cut := 1; cut < 12; cut++ {
		got, err := catalog.Read(bytes.NewReader(data[:len(data)-cut]), catalog.MethodLeastSquares)
		require.NoError(t, err, "cut=%d", cut)
		assert.Len(t, got, 1, "partial record must end the stream, cut=%d", cut)
	}
}

func TestRead_Empty(t *testing.T) {
	got, err := catalog.Read(bytes.NewReader(nil), catalog.MethodLeastSquares)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRead_InvalidRecord(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, catalog.Write(&buf, []catalog.FilterConfiguration{{Taps: 0, CoeffWidth: 4, Rejection: 10}}))

	_, err := catalog.Read(&buf, catalog.MethodLeastSquares)
	require.ErrorIs(t, err, catalog.ErrInvalidRecord)
}

func TestNew_RejectsInvalidRejection(t *testing.T) {
	tests := []struct {
		name      string
		rejection float64
	}{
		{"negative", -1},
		{"nan", math.NaN()},
		{"positive_infinity", math.Inf(1)},
		{"negative_infinity", math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.New(catalog.FilterConfiguration{
				Method: catalog.MethodLeastSquares, Taps: 8, CoeffWidth: 4, Rejection: tt.rejection,
			})
			require.ErrorIs(t, err, catalog.ErrInvalidRecord)
		})
	}

	var buf bytes.Buffer
	require.NoError(t, catalog.Write(&buf, []catalog.FilterConfiguration{{Taps: 8, CoeffWidth: 4, Rejection: math.Inf(1)}}))
	_, err := catalog.Read(&buf, catalog.MethodLeastSquares)
	require.ErrorIs(t, err, catalog.ErrInvalidRecord, "an infinite record must not load")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := catalog.Load(filepath.Join(t.TempDir(), "missing.bin"), catalog.MethodLeastSquares)
	require.ErrorIs(t, err, catalog.ErrCatalogUnavailable)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadManifest_ConcatenatesInDocumentOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "data"), 0o755))
	testutil.WriteCatalogFile(t, filepath.Join(dir, "data"), "fir1.bin", fir1Entries)
	testutil.WriteCatalogFile(t, dir, "firls.bin", firlsEntries)

	// fir1 listed first although it sorts after firls
	manifest := testutil.WriteManifest(t, dir, "fir1", "data/fir1.bin", "firls", "firls.bin")

	c, err := catalog.LoadManifest(manifest)
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())

	assert.Equal(t, []catalog.Method{catalog.MethodWindowedSinc, catalog.MethodLeastSquares}, c.Methods())
	assert.Equal(t, catalog.MethodWindowedSinc, c.At(0).Method)
	assert.Equal(t, 16, c.At(2).Taps)

	start, end, ok := c.Range(catalog.MethodLeastSquares)
	require.True(t, ok)
	assert.Equal(t, 1, start)
	assert.Equal(t, 3, end)

	_, _, ok = c.Range("kaiser")
	assert.False(t, ok)
}

func TestLoadManifest_JSON(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCatalogFile(t, dir, "firls.bin", firlsEntries)
	manifest := filepath.Join(dir, "filters.json")
	require.NoError(t, os.WriteFile(manifest, []byte(`{"firls": "firls.bin"}`), 0o644))

	c, err := catalog.LoadManifest(manifest)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing_manifest", func(t *testing.T) {
		_, err := catalog.LoadManifest(filepath.Join(dir, "nope.yaml"))
		require.ErrorIs(t, err, catalog.ErrCatalogUnavailable)
	})

	t.Run("missing_catalog", func(t *testing.T) {
		manifest := testutil.WriteManifest(t, dir, "firls", "absent.bin")
		_, err := catalog.LoadManifest(manifest)
		require.ErrorIs(t, err, catalog.ErrCatalogUnavailable)
	})

	t.Run("not_a_mapping", func(t *testing.T) {
		path := filepath.Join(dir, "list.yaml")
		require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o644))
		_, err := catalog.LoadManifest(path)
		require.ErrorIs(t, err, catalog.ErrInvalidManifest)
	})

	t.Run("nested_value", func(t *testing.T) {
		path := filepath.Join(dir, "nested.yaml")
		require.NoError(t, os.WriteFile(path, []byte("firls:\n  path: x.bin\n"), 0o644))
		_, err := catalog.LoadManifest(path)
		require.ErrorIs(t, err, catalog.ErrInvalidManifest)
	})
}

func TestNew_GroupsConsecutiveMethods(t *testing.T) {
	c := testutil.MustCatalog(t, append(append([]catalog.FilterConfiguration{}, firlsEntries...), fir1Entries...)...)
	assert.Equal(t, 3, c.Len())
	assert.Len(t, c.Methods(), 2)

	_, err := catalog.New(catalog.FilterConfiguration{Taps: 4, CoeffWidth: 0})
	require.ErrorIs(t, err, catalog.ErrInvalidRecord)
}

func TestFilterConfiguration_Derived(t *testing.T) {
	f := fir1Entries[0]
	assert.Equal(t, 18, f.AddedWidth(bitgrowth.RuleWorstCase))
	assert.Equal(t, 12, f.AddedWidth(bitgrowth.RuleCoefficientOnly))
	assert.Equal(t, "fir1_063_int12", f.Name())
	assert.Contains(t, f.String(), "C:63")
}
