package tablestore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/openhep/tensorprep"
)

// An .arrow container holds one Arrow IPC file per table, back to back,
// followed by a JSON footer that maps table names to byte sections and
// per-record-batch row counts. The trailer is:
//
//	[table sections][footer JSON][uint64 footer length][8-byte magic]
//
// The per-batch row counts let Select read only the record batches that
// overlap a requested row range.

var arrowMagic = [8]byte{'E', 'V', 'T', 'A', 'R', 'R', '0', '1'}

// arrowBatchRows is the record-batch size used by WriteArrow. Smaller
// batches give finer-grained range reads at the cost of more IPC framing.
const arrowBatchRows = 256

type arrowSection struct {
	Offset    int64    `json:"offset"`
	Length    int64    `json:"length"`
	Columns   []string `json:"columns"`
	BatchRows []int    `json:"batch_rows"`
}

type arrowFooter struct {
	Tables map[string]arrowSection `json:"tables"`
}

type arrowStore struct {
	path   string
	f      *os.File
	footer arrowFooter
}

func openArrow(path string) (*arrowStore, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tensorprep.NotFoundf(path, "table file does not exist")
		}
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() < 16 {
		f.Close()
		return nil, tensorprep.Corruptf(path, "file too short to hold a container trailer")
	}
	var trailer [16]byte
	if _, err := f.ReadAt(trailer[:], st.Size()-16); err != nil {
		f.Close()
		return nil, tensorprep.Corruptf(path, "cannot read container trailer: %v", err)
	}
	if [8]byte(trailer[8:]) != arrowMagic {
		f.Close()
		return nil, tensorprep.Corruptf(path, "bad container magic; file is not an arrow table container")
	}
	footerLen := int64(binary.LittleEndian.Uint64(trailer[:8]))
	if footerLen <= 0 || footerLen > st.Size()-16 {
		f.Close()
		return nil, tensorprep.Corruptf(path, "implausible footer length %d", footerLen)
	}
	raw := make([]byte, footerLen)
	if _, err := f.ReadAt(raw, st.Size()-16-footerLen); err != nil {
		f.Close()
		return nil, tensorprep.Corruptf(path, "cannot read container footer: %v", err)
	}
	s := &arrowStore{path: path, f: f}
	if err := json.Unmarshal(raw, &s.footer); err != nil {
		f.Close()
		return nil, tensorprep.Corruptf(path, "cannot decode container footer: %v", err)
	}
	if len(s.footer.Tables) == 0 {
		f.Close()
		return nil, tensorprep.Corruptf(path, "container holds no tables")
	}
	return s, nil
}

func (s *arrowStore) Path() string { return s.path }

func (s *arrowStore) Tables() []string {
	names := make([]string, 0, len(s.footer.Tables))
	for name := range s.footer.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *arrowStore) Close() error { return s.f.Close() }

func (s *arrowStore) NumValues() (*Table, error) {
	sec, ok := s.footer.Tables[NumValuesTable]
	if !ok {
		return nil, tensorprep.Corruptf(s.path, "missing %s index table", NumValuesTable)
	}
	return s.readRange(NumValuesTable, sec, 0, totalRows(sec))
}

func (s *arrowStore) Select(table string, start, stop int) (*Table, error) {
	sec, ok := s.footer.Tables[table]
	if !ok {
		return nil, tensorprep.Corruptf(s.path, "missing expected table %q", table)
	}
	if total := totalRows(sec); start < 0 || stop < start || stop > total {
		return nil, tensorprep.Corruptf(s.path, "row range [%d, %d) out of bounds for table %q with %d rows",
			start, stop, table, total)
	}
	return s.readRange(table, sec, start, stop)
}

// readRange reads rows [start, stop) of one table section, touching only
// the record batches that overlap the range.
func (s *arrowStore) readRange(name string, sec arrowSection, start, stop int) (*Table, error) {
	out := NewTable(sec.Columns...)
	out.Rows = make([][]float64, 0, stop-start)
	if start == stop {
		return out, nil
	}

	r, err := ipc.NewFileReader(io.NewSectionReader(s.f, sec.Offset, sec.Length))
	if err != nil {
		return nil, tensorprep.Corruptf(s.path, "cannot open table %q: %v", name, err)
	}
	defer r.Close()

	base := 0
	for i, n := range sec.BatchRows {
		batchStart, batchStop := base, base+n
		base = batchStop
		if batchStop <= start {
			continue
		}
		if batchStart >= stop {
			break
		}
		rec, err := r.Record(i)
		if err != nil {
			return nil, tensorprep.Corruptf(s.path, "cannot read batch %d of table %q: %v", i, name, err)
		}
		lo := max(start, batchStart) - batchStart
		hi := min(stop, batchStop) - batchStart
		cols := make([]*array.Float64, rec.NumCols())
		for c := 0; c < int(rec.NumCols()); c++ {
			f64, ok := rec.Column(c).(*array.Float64)
			if !ok {
				return nil, tensorprep.Corruptf(s.path, "table %q column %d is not float64", name, c)
			}
			cols[c] = f64
		}
		for row := lo; row < hi; row++ {
			vals := make([]float64, len(cols))
			for c, col := range cols {
				vals[c] = col.Value(row)
			}
			out.Rows = append(out.Rows, vals)
		}
	}
	return out, nil
}

func totalRows(sec arrowSection) int {
	n := 0
	for _, b := range sec.BatchRows {
		n += b
	}
	return n
}

// WriteArrow writes tables into a single .arrow container at path. The
// table set must include the NumValues index.
func WriteArrow(path string, tables map[string]*Table) error {
	if _, ok := tables[NumValuesTable]; !ok {
		return tensorprep.Configf("cannot write %s: table set is missing %s", path, NumValuesTable)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	pool := memory.NewGoAllocator()
	footer := arrowFooter{Tables: make(map[string]arrowSection, len(tables))}
	offset := int64(0)
	for _, name := range names {
		t := tables[name]
		var buf seekBuffer
		batchRows, err := writeIPCTable(&buf, pool, t)
		if err != nil {
			return fmt.Errorf("write table %q to %s: %w", name, path, err)
		}
		if _, err := f.Write(buf.data); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		footer.Tables[name] = arrowSection{
			Offset:    offset,
			Length:    int64(len(buf.data)),
			Columns:   t.Columns,
			BatchRows: batchRows,
		}
		offset += int64(len(buf.data))
	}

	raw, err := json.Marshal(footer)
	if err != nil {
		return err
	}
	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	var trailer [16]byte
	binary.LittleEndian.PutUint64(trailer[:8], uint64(len(raw)))
	copy(trailer[8:], arrowMagic[:])
	if _, err := f.Write(trailer[:]); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// writeIPCTable writes one table as an Arrow IPC file, chunked into record
// batches of at most arrowBatchRows rows. Returns the per-batch row counts.
func writeIPCTable(w io.WriteSeeker, pool memory.Allocator, t *Table) ([]int, error) {
	fields := make([]arrow.Field, len(t.Columns))
	for i, c := range t.Columns {
		fields[i] = arrow.Field{Name: c, Type: arrow.PrimitiveTypes.Float64}
	}
	schema := arrow.NewSchema(fields, nil)

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err != nil {
		return nil, err
	}

	var batchRows []int
	for base := 0; base < len(t.Rows) || base == 0; base += arrowBatchRows {
		n := min(arrowBatchRows, len(t.Rows)-base)
		if n < 0 {
			n = 0
		}
		cols := make([]arrow.Array, len(t.Columns))
		for c := range t.Columns {
			b := array.NewFloat64Builder(pool)
			for row := base; row < base+n; row++ {
				b.Append(t.Rows[row][c])
			}
			cols[c] = b.NewFloat64Array()
			b.Release()
		}
		rec := array.NewRecord(schema, cols, int64(n))
		err := fw.Write(rec)
		rec.Release()
		for _, col := range cols {
			col.Release()
		}
		if err != nil {
			fw.Close()
			return nil, err
		}
		batchRows = append(batchRows, n)
		if len(t.Rows) == 0 {
			break
		}
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return batchRows, nil
}

// seekBuffer is a minimal in-memory io.WriteSeeker; the IPC file writer
// needs seeking to patch up its own footer.
type seekBuffer struct {
	data []byte
	pos  int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + int64(len(p)); need > int64(len(b.data)) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += int64(len(p))
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = offset
	case io.SeekCurrent:
		b.pos += offset
	case io.SeekEnd:
		b.pos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("bad seek whence %d", whence)
	}
	if b.pos < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	return b.pos, nil
}
