package export

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/tensor"
)

// Binary layout, all little-endian: 4-byte magic, uint32 rank, rank int64
// dimensions, then the float64 values in row-major order.

var binaryMagic = [4]byte{'T', 'P', 'B', '1'}

func writeBinaryTensor(path string, t *tensor.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(binaryMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(t.Dims))); err != nil {
		return err
	}
	for _, d := range t.Dims {
		if err := binary.Write(w, binary.LittleEndian, int64(d)); err != nil {
			return err
		}
	}
	var scratch [8]byte
	for _, v := range t.Values {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
		if _, err := w.Write(scratch[:]); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func readBinaryTensor(path string) (*tensor.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tensorprep.NotFoundf(path, "array file does not exist")
		}
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, tensorprep.Corruptf(path, "cannot read magic: %v", err)
	}
	if magic != binaryMagic {
		return nil, tensorprep.Corruptf(path, "bad magic; not a tensor file")
	}
	var rank uint32
	if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
		return nil, tensorprep.Corruptf(path, "cannot read rank: %v", err)
	}
	if rank == 0 || rank > 8 {
		return nil, tensorprep.Corruptf(path, "implausible tensor rank %d", rank)
	}
	dims := make([]int, rank)
	for i := range dims {
		var d int64
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return nil, tensorprep.Corruptf(path, "cannot read dimension %d: %v", i, err)
		}
		if d < 0 {
			return nil, tensorprep.Corruptf(path, "negative dimension %d", d)
		}
		dims[i] = int(d)
	}
	t := tensor.New(dims...)
	var scratch [8]byte
	for i := range t.Values {
		if _, err := io.ReadFull(r, scratch[:]); err != nil {
			return nil, tensorprep.Corruptf(path, "truncated values at %d of %d: %v", i, len(t.Values), err)
		}
		t.Values[i] = math.Float64frombits(binary.LittleEndian.Uint64(scratch[:]))
	}
	return t, nil
}
