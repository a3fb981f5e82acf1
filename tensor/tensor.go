// Package tensor holds the dense numeric arrays produced by preprocessing.
//
// A Dense keeps a contiguous float64 buffer along with shape metadata, the
// same layout the training code ultimately wants. Conversion into gomlx
// tensors is a small, well-defined edge step (see ToGomlx); keeping the core
// on flat buffers avoids a hard dependency on a particular gomlx API in the
// preprocessing path.
package tensor

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Dense is a row-major float64 tensor. The first dimension is always the
// sample axis. Fields are exported so Dense values gob-encode directly for
// disk staging.
type Dense struct {
	Dims   []int
	Values []float64
}

// New allocates a zero-filled Dense with the given dimensions.
func New(dims ...int) *Dense {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return &Dense{Dims: append([]int(nil), dims...), Values: make([]float64, n)}
}

// FromSamples stacks per-sample flat buffers into a Dense of shape
// (len(samples), sampleDims...). Every sample must have exactly
// prod(sampleDims) values.
func FromSamples(sampleDims []int, samples [][]float64) (*Dense, error) {
	want := 1
	for _, d := range sampleDims {
		want *= d
	}
	dims := append([]int{len(samples)}, sampleDims...)
	out := New(dims...)
	for i, s := range samples {
		if len(s) != want {
			return nil, fmt.Errorf("sample %d has %d values, expected %d", i, len(s), want)
		}
		copy(out.Values[i*want:], s)
	}
	return out, nil
}

// NumSamples returns the size of the sample axis.
func (d *Dense) NumSamples() int {
	if len(d.Dims) == 0 {
		return 0
	}
	return d.Dims[0]
}

// SampleLen returns the number of values in one sample.
func (d *Dense) SampleLen() int {
	n := 1
	for _, dim := range d.Dims[1:] {
		n *= dim
	}
	return n
}

// Sample returns a view of sample i's values.
func (d *Dense) Sample(i int) []float64 {
	n := d.SampleLen()
	return d.Values[i*n : (i+1)*n]
}

// SliceSamples copies samples [start, stop) into a new Dense with the same
// trailing dimensions.
func (d *Dense) SliceSamples(start, stop int) *Dense {
	n := d.SampleLen()
	dims := append([]int{stop - start}, d.Dims[1:]...)
	out := &Dense{Dims: dims, Values: make([]float64, (stop-start)*n)}
	copy(out.Values, d.Values[start*n:stop*n])
	return out
}

// Permute reorders samples so that output sample i is input sample perm[i].
// perm must be a permutation of [0, NumSamples).
func (d *Dense) Permute(perm []int) error {
	if len(perm) != d.NumSamples() {
		return fmt.Errorf("permutation length %d does not match %d samples", len(perm), d.NumSamples())
	}
	n := d.SampleLen()
	next := make([]float64, len(d.Values))
	for i, src := range perm {
		if src < 0 || src >= d.NumSamples() {
			return fmt.Errorf("permutation entry %d out of range [0, %d)", src, d.NumSamples())
		}
		copy(next[i*n:(i+1)*n], d.Values[src*n:(src+1)*n])
	}
	d.Values = next
	return nil
}

// Clone returns a deep copy.
func (d *Dense) Clone() *Dense {
	return &Dense{
		Dims:   append([]int(nil), d.Dims...),
		Values: append([]float64(nil), d.Values...),
	}
}

// Equal reports whether two tensors have identical shape and bit-identical
// values.
func (d *Dense) Equal(o *Dense) bool {
	if len(d.Dims) != len(o.Dims) || len(d.Values) != len(o.Values) {
		return false
	}
	for i := range d.Dims {
		if d.Dims[i] != o.Dims[i] {
			return false
		}
	}
	for i := range d.Values {
		if d.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}

// ToGomlx converts into a gomlx tensor. Only the 2D and 3D shapes produced
// by preprocessing are supported.
func (d *Dense) ToGomlx() (*tensors.Tensor, error) {
	switch len(d.Dims) {
	case 2:
		rows := make([][]float64, d.Dims[0])
		for i := range rows {
			rows[i] = d.Values[i*d.Dims[1] : (i+1)*d.Dims[1]]
		}
		return tensors.FromAnyValue(rows), nil
	case 3:
		out := make([][][]float64, d.Dims[0])
		stride := d.Dims[1] * d.Dims[2]
		for i := range out {
			out[i] = make([][]float64, d.Dims[1])
			for j := range out[i] {
				off := i*stride + j*d.Dims[2]
				out[i][j] = d.Values[off : off+d.Dims[2]]
			}
		}
		return tensors.FromAnyValue(out), nil
	default:
		return nil, fmt.Errorf("unsupported tensor rank %d", len(d.Dims))
	}
}
