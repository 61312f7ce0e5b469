package normalize

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/maruel/natural"

	"github.com/pable/go-hll-metrics/internal/model"
)

// Source file suffixes understood by LoadFile.
var sourceSuffixes = []string{".json", ".json.gz", ".json.zst"}

// IsSourceFile reports whether name looks like an event file.
func IsSourceFile(name string) bool {
	for _, s := range sourceSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// ListFiles returns the event files in dir in natural order, so that
// "logs_2.json" sorts before "logs_10.json".
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsSourceFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool { return natural.Less(names[i], names[j]) })

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// LoadFile opens, decompresses and decodes one event file.
func LoadFile(path string) ([]model.RawEvent, []RecordError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: gzip %s: %w", ErrDecode, path, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: zstd %s: %w", ErrDecode, path, err)
		}
		defer zr.Close()
		r = zr
	}
	return Decode(r)
}
