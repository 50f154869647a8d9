package catalog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// recordSize is the encoded size of one record: two uint16 and a float64.
const recordSize = 2 + 2 + 8

// Read decodes records from r until end of input. A trailing partial record
// marks the end of the stream and is not an error.
func Read(r io.Reader, method Method) ([]FilterConfiguration, error) {
	var (
		filters []FilterConfiguration
		buf     [recordSize]byte
	)

	br := bufio.NewReader(r)
	for {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return filters, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
		}

		f := FilterConfiguration{
			Method:     method,
			Taps:       int(binary.LittleEndian.Uint16(buf[0:2])),
			CoeffWidth: int(binary.LittleEndian.Uint16(buf[2:4])),
			Rejection:  math.Float64frombits(binary.LittleEndian.Uint64(buf[4:12])),
		}
		if err := f.validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", len(filters), err)
		}
		filters = append(filters, f)
	}
}

// Load reads a catalog file produced for the given generation method.
func Load(path string, method Method) ([]FilterConfiguration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	filters, err := Read(f, method)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return filters, nil
}

// Write encodes configurations in the catalog file layout. Tap count and
// coefficient width must fit in 16 bits.
func Write(w io.Writer, filters []FilterConfiguration) error {
	var buf [recordSize]byte
	for i, f := range filters {
		if f.Taps < 0 || f.Taps > math.MaxUint16 || f.CoeffWidth < 0 || f.CoeffWidth > math.MaxUint16 {
			return fmt.Errorf("%w: record %d does not fit 16-bit fields", ErrInvalidRecord, i)
		}
		binary.LittleEndian.PutUint16(buf[0:2], uint16(f.Taps))
		binary.LittleEndian.PutUint16(buf[2:4], uint16(f.CoeffWidth))
		binary.LittleEndian.PutUint64(buf[4:12], math.Float64bits(f.Rejection))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// LoadManifest reads a manifest mapping method names to catalog files and
// loads every entry, in document order, into one flat catalog. Relative
// paths are resolved against the manifest's directory. The manifest may be
// YAML or JSON.
func LoadManifest(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	entries, err := parseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	c := &Catalog{}
	for _, e := range entries {
		file := e.path
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		filters, err := Load(file, e.method)
		if err != nil {
			return nil, err
		}
		c.append(e.method, filters)
	}
	return c, nil
}

type manifestEntry struct {
	method Method
	path   string
}

// parseManifest decodes into a yaml.Node rather than a map so the key order
// of the document survives.
func parseManifest(data []byte) ([]manifestEntry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if doc.Kind == 0 {
		return nil, nil
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrInvalidManifest)
	}

	root := doc.Content[0]
	seen := make(map[string]bool, len(root.Content)/2)
	entries := make([]manifestEntry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode || val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d: entries must map a method name to a path", ErrInvalidManifest, key.Line)
		}
		if key.Value == "" || val.Value == "" {
			return nil, fmt.Errorf("%w: line %d: empty method or path", ErrInvalidManifest, key.Line)
		}
		if seen[key.Value] {
			return nil, fmt.Errorf("%w: duplicate method %q", ErrInvalidManifest, key.Value)
		}
		seen[key.Value] = true
		entries = append(entries, manifestEntry{method: Method(key.Value), path: val.Value})
	}
	return entries, nil
}
