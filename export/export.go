// Package export bulk-copies preprocessed (X, Y) tensor sets to and from
// plain directories, for hand-off to tooling outside this module. Two
// interchangeable encodings are provided: human-readable CSV files with a
// leading shape header, and a dense little-endian binary format. Both lay
// the data out as one file per array under X/ and Y/ subdirectories.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/tensor"
)

const (
	xSubdir = "X"
	ySubdir = "Y"
)

// WriteCSVDir writes X and Y under dir as CSV files with a "#Shape:" header
// line, creating directories as needed.
func WriteCSVDir(dir string, X []*tensor.Dense, Y *tensor.Dense) error {
	return writeDir(dir, X, Y, ".csv", writeCSVTensor)
}

// ReadCSVDir reads back a directory written by WriteCSVDir.
func ReadCSVDir(dir string) ([]*tensor.Dense, *tensor.Dense, error) {
	return readDir(dir, ".csv", readCSVTensor)
}

// WriteBinaryDir writes X and Y under dir in the dense binary format,
// creating directories as needed.
func WriteBinaryDir(dir string, X []*tensor.Dense, Y *tensor.Dense) error {
	return writeDir(dir, X, Y, ".bin", writeBinaryTensor)
}

// ReadBinaryDir reads back a directory written by WriteBinaryDir.
func ReadBinaryDir(dir string) ([]*tensor.Dense, *tensor.Dense, error) {
	return readDir(dir, ".bin", readBinaryTensor)
}

func writeDir(dir string, X []*tensor.Dense, Y *tensor.Dense, ext string,
	write func(path string, t *tensor.Dense) error) error {

	xDir := filepath.Join(dir, xSubdir)
	yDir := filepath.Join(dir, ySubdir)
	for _, d := range []string{xDir, yDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create export directory %s: %w", d, err)
		}
	}
	for i, x := range X {
		path := filepath.Join(xDir, fmt.Sprintf("X_%d%s", i, ext))
		if err := write(path, x); err != nil {
			return err
		}
	}
	return write(filepath.Join(yDir, fmt.Sprintf("Y_%d%s", 0, ext)), Y)
}

func readDir(dir, ext string, read func(path string) (*tensor.Dense, error)) ([]*tensor.Dense, *tensor.Dense, error) {
	xDir := filepath.Join(dir, xSubdir)
	yDir := filepath.Join(dir, ySubdir)
	for _, d := range []string{xDir, yDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			return nil, nil, tensorprep.NotFoundf(dir, "export directory does not contain %s/ and %s/", xSubdir, ySubdir)
		}
	}
	xFiles, err := sortedFiles(xDir, ext)
	if err != nil {
		return nil, nil, err
	}
	yFiles, err := sortedFiles(yDir, ext)
	if err != nil {
		return nil, nil, err
	}
	if len(xFiles) == 0 || len(yFiles) == 0 {
		return nil, nil, tensorprep.NotFoundf(dir, "no %s arrays under %s/ or %s/", ext, xSubdir, ySubdir)
	}
	X := make([]*tensor.Dense, len(xFiles))
	for i, f := range xFiles {
		if X[i], err = read(f); err != nil {
			return nil, nil, err
		}
	}
	Y, err := read(yFiles[0])
	if err != nil {
		return nil, nil, err
	}
	return X, Y, nil
}

func sortedFiles(dir, ext string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
