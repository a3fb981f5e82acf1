package tablestore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openhep/tensorprep"
)

// Format identifies the on-disk storage format of a source directory.
type Format int

const (
	// FormatArrow files are Arrow IPC containers supporting row-range reads.
	FormatArrow Format = iota + 1
	// FormatGob files are gob bundles that must be decoded wholesale.
	FormatGob
)

const (
	arrowExt = ".arrow"
	gobExt   = ".gob"
)

func (f Format) String() string {
	switch f {
	case FormatArrow:
		return "arrow"
	case FormatGob:
		return "gob"
	default:
		return "unknown"
	}
}

// Store reads tables from one source file. Implementations are not safe for
// concurrent use; the engine opens a store, reads one window, and closes it
// before moving on.
type Store interface {
	// Path returns the file this store reads.
	Path() string
	// Tables returns the sorted table names present in the file.
	Tables() []string
	// NumValues returns the per-entry row-count index table.
	NumValues() (*Table, error)
	// Select returns rows [start, stop) of the named table. The arrow
	// implementation only touches the record batches overlapping the range;
	// the gob implementation has already paid for the whole file at Open.
	Select(table string, start, stop int) (*Table, error)
	// Close releases the underlying file handle.
	Close() error
}

// ListDir lists the source files of dir in sorted order and detects their
// format. A directory must hold exactly one format; mixing .arrow and .gob
// files would make the concatenated entry index ambiguous.
func ListDir(dir string) ([]string, Format, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, 0, tensorprep.NotFoundf(dir, "directory does not exist")
	}
	arrowFiles, err := filepath.Glob(filepath.Join(dir, "*"+arrowExt))
	if err != nil {
		return nil, 0, err
	}
	gobFiles, err := filepath.Glob(filepath.Join(dir, "*"+gobExt))
	if err != nil {
		return nil, 0, err
	}
	switch {
	case len(arrowFiles) > 0 && len(gobFiles) > 0:
		return nil, 0, tensorprep.Configf(
			"directory %s mixes %s and %s files; use a single format per directory",
			dir, arrowExt, gobExt)
	case len(arrowFiles) > 0:
		sort.Strings(arrowFiles)
		return arrowFiles, FormatArrow, nil
	case len(gobFiles) > 0:
		sort.Strings(gobFiles)
		return gobFiles, FormatGob, nil
	default:
		return nil, 0, tensorprep.Corruptf(dir, "no %s or %s files to read", arrowExt, gobExt)
	}
}

// Open opens a single source file, picking the implementation from its
// extension.
func Open(path string) (Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case arrowExt:
		return openArrow(path)
	case gobExt:
		return openGob(path)
	default:
		return nil, tensorprep.Configf("unsupported table file %s: want %s or %s", path, arrowExt, gobExt)
	}
}
