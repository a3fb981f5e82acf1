package tablestore

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/openhep/tensorprep"
)

// fixtureTables builds a NumValues index plus one object table with nRows
// rows. Row r of the object table holds (entry, float64(r), float64(r)*10)
// so reads are easy to verify.
func fixtureTables(t *testing.T, name string, countsPerEntry []int) map[string]*Table {
	t.Helper()
	nv := NewTable(name)
	obj := NewTable("Entry", "E", "Px")
	r := 0
	for entry, n := range countsPerEntry {
		if err := nv.Append(float64(n)); err != nil {
			t.Fatalf("append NumValues row: %v", err)
		}
		for i := 0; i < n; i++ {
			if err := obj.Append(float64(entry), float64(r), float64(r)*10); err != nil {
				t.Fatalf("append object row: %v", err)
			}
			r++
		}
	}
	return map[string]*Table{NumValuesTable: nv, name: obj}
}

func TestListDir_FormatDetection(t *testing.T) {
	dir := t.TempDir()
	tables := fixtureTables(t, "Tracks", []int{2, 1})
	if err := WriteArrow(filepath.Join(dir, "b.arrow"), tables); err != nil {
		t.Fatalf("WriteArrow failed: %v", err)
	}
	if err := WriteArrow(filepath.Join(dir, "a.arrow"), tables); err != nil {
		t.Fatalf("WriteArrow failed: %v", err)
	}

	files, format, err := ListDir(dir)
	if err != nil {
		t.Fatalf("ListDir failed: %v", err)
	}
	if format != FormatArrow {
		t.Fatalf("format = %v, want arrow", format)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.arrow" {
		t.Fatalf("files not sorted: %v", files)
	}
}

func TestListDir_MixedFormatsRejected(t *testing.T) {
	dir := t.TempDir()
	tables := fixtureTables(t, "Tracks", []int{1})
	if err := WriteArrow(filepath.Join(dir, "a.arrow"), tables); err != nil {
		t.Fatalf("WriteArrow failed: %v", err)
	}
	if err := WriteGob(filepath.Join(dir, "b.gob"), tables); err != nil {
		t.Fatalf("WriteGob failed: %v", err)
	}
	_, _, err := ListDir(dir)
	var cfg *tensorprep.ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError for mixed formats, got %v", err)
	}
}

func TestListDir_MissingDir(t *testing.T) {
	_, _, err := ListDir(filepath.Join(t.TempDir(), "nope"))
	var nf *tensorprep.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestListDir_EmptyDir(t *testing.T) {
	_, _, err := ListDir(t.TempDir())
	var corrupt *tensorprep.CorruptDataError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptDataError for empty dir, got %v", err)
	}
}

func TestArrowStore_SelectRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.arrow")
	if err := WriteArrow(path, fixtureTables(t, "Tracks", []int{3, 2, 4})); err != nil {
		t.Fatalf("WriteArrow failed: %v", err)
	}

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	nv, err := store.NumValues()
	if err != nil {
		t.Fatalf("NumValues failed: %v", err)
	}
	if nv.NumRows() != 3 {
		t.Fatalf("NumValues has %d rows, want 3", nv.NumRows())
	}

	// Rows [3, 7) are entry 1's two rows plus entry 2's first two.
	got, err := store.Select("Tracks", 3, 7)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got.NumRows() != 4 {
		t.Fatalf("Select returned %d rows, want 4", got.NumRows())
	}
	for i, row := range got.Rows {
		wantE := float64(3 + i)
		if row[1] != wantE || row[2] != wantE*10 {
			t.Fatalf("row %d = %v, want E=%v Px=%v", i, row, wantE, wantE*10)
		}
	}
}

func TestArrowStore_SelectOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.arrow")
	if err := WriteArrow(path, fixtureTables(t, "Tracks", []int{2})); err != nil {
		t.Fatalf("WriteArrow failed: %v", err)
	}
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	_, err = store.Select("Tracks", 0, 5)
	var corrupt *tensorprep.CorruptDataError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptDataError for out-of-range read, got %v", err)
	}
}

func TestArrowStore_MissingTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.arrow")
	if err := WriteArrow(path, fixtureTables(t, "Tracks", []int{1})); err != nil {
		t.Fatalf("WriteArrow failed: %v", err)
	}
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	_, err = store.Select("Clusters", 0, 1)
	var corrupt *tensorprep.CorruptDataError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptDataError for missing table, got %v", err)
	}
	if corrupt.File != path {
		t.Fatalf("error names %q, want %q", corrupt.File, path)
	}
}

func TestArrowStore_RangeAcrossBatches(t *testing.T) {
	// Enough rows for several record batches, to exercise batch skipping.
	nRows := arrowBatchRows*2 + 50
	dir := t.TempDir()
	path := filepath.Join(dir, "big.arrow")
	if err := WriteArrow(path, fixtureTables(t, "Tracks", []int{nRows})); err != nil {
		t.Fatalf("WriteArrow failed: %v", err)
	}
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	start, stop := arrowBatchRows-5, arrowBatchRows+5
	got, err := store.Select("Tracks", start, stop)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got.NumRows() != 10 {
		t.Fatalf("Select returned %d rows, want 10", got.NumRows())
	}
	for i, row := range got.Rows {
		if row[1] != float64(start+i) {
			t.Fatalf("row %d = %v, want E=%d", i, row, start+i)
		}
	}
}

func TestGobStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.gob")
	if err := WriteGob(path, fixtureTables(t, "Tracks", []int{2, 3})); err != nil {
		t.Fatalf("WriteGob failed: %v", err)
	}
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	nv, err := store.NumValues()
	if err != nil {
		t.Fatalf("NumValues failed: %v", err)
	}
	if nv.NumRows() != 2 {
		t.Fatalf("NumValues has %d rows, want 2", nv.NumRows())
	}
	got, err := store.Select("Tracks", 2, 5)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if got.NumRows() != 3 {
		t.Fatalf("Select returned %d rows, want 3", got.NumRows())
	}
	if got.Rows[0][1] != 2 {
		t.Fatalf("unexpected first row: %v", got.Rows[0])
	}
	want := []string{"NumValues", "Tracks"}
	tables := store.Tables()
	if fmt.Sprint(tables) != fmt.Sprint(want) {
		t.Fatalf("Tables = %v, want %v", tables, want)
	}
}

func TestWrite_RequiresNumValues(t *testing.T) {
	dir := t.TempDir()
	bad := map[string]*Table{"Tracks": NewTable("Entry", "E", "Px")}
	if err := WriteArrow(filepath.Join(dir, "x.arrow"), bad); err == nil {
		t.Fatalf("WriteArrow should reject a table set without NumValues")
	}
	if err := WriteGob(filepath.Join(dir, "x.gob"), bad); err == nil {
		t.Fatalf("WriteGob should reject a table set without NumValues")
	}
}
