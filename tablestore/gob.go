package tablestore

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/openhep/tensorprep"
)

// gobBundle is the on-disk form of a .gob source file: every table of the
// file in one encoded blob. The format is self-describing but has no random
// access; reading anything means decoding everything.
type gobBundle struct {
	Tables map[string]*Table
}

type gobStore struct {
	path   string
	bundle gobBundle
}

func openGob(path string) (*gobStore, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tensorprep.NotFoundf(path, "table file does not exist")
		}
		return nil, err
	}
	defer f.Close()

	// Unavoidable with this format: gob streams cannot be sliced, so the
	// whole bundle is decoded up front. Prefer .arrow sources for large
	// campaigns.
	log.Warn().Str("file", path).Msg("bulk reading gob bundle; range reads unsupported for this format")

	s := &gobStore{path: path}
	if err := gob.NewDecoder(f).Decode(&s.bundle); err != nil {
		return nil, tensorprep.Corruptf(path, "cannot decode gob bundle: %v", err)
	}
	if len(s.bundle.Tables) == 0 {
		return nil, tensorprep.Corruptf(path, "bundle holds no tables")
	}
	return s, nil
}

func (s *gobStore) Path() string { return s.path }

func (s *gobStore) Tables() []string {
	names := make([]string, 0, len(s.bundle.Tables))
	for name := range s.bundle.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *gobStore) Close() error { return nil }

func (s *gobStore) NumValues() (*Table, error) {
	t, ok := s.bundle.Tables[NumValuesTable]
	if !ok {
		return nil, tensorprep.Corruptf(s.path, "missing %s index table", NumValuesTable)
	}
	return t, nil
}

func (s *gobStore) Select(table string, start, stop int) (*Table, error) {
	t, ok := s.bundle.Tables[table]
	if !ok {
		return nil, tensorprep.Corruptf(s.path, "missing expected table %q", table)
	}
	if start < 0 || stop < start || stop > len(t.Rows) {
		return nil, tensorprep.Corruptf(s.path, "row range [%d, %d) out of bounds for table %q with %d rows",
			start, stop, table, len(t.Rows))
	}
	return t.Slice(start, stop), nil
}

// WriteGob writes tables as a single .gob bundle at path, using an atomic
// temp-file-then-rename so readers never see a partial bundle.
func WriteGob(path string, tables map[string]*Table) error {
	if _, ok := tables[NumValuesTable]; !ok {
		return tensorprep.Configf("cannot write %s: table set is missing %s", path, NumValuesTable)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".gob-write-*")
	if err != nil {
		return fmt.Errorf("create temp bundle file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(gobBundle{Tables: tables}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode bundle to temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp bundle file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp bundle to target: %w", err)
	}
	return nil
}
