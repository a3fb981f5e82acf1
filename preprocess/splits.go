package preprocess

import (
	"math"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/profile"
)

// Window is a contiguous range of samples per label: entries
// [Start, Start+Count) of the logical concatenation of a source directory.
type Window struct {
	Start int
	Count int
}

// ratioTolerance absorbs float noise when checking that ratio splits sum
// to 1.0.
const ratioTolerance = 1e-9

// SplitStarts divides a total per-label sample budget of length samples into
// contiguous, non-overlapping windows, one per split specifier, in
// declaration order. An integer-valued specifier is an absolute sample
// count; a fraction in (0,1) takes that share of whatever the absolute
// splits leave over. Ratio fractions must sum to 1.0; the last ratio split
// absorbs integer-division remainder so the windows cover [0, length)
// exactly.
func SplitStarts(splits []float64, length int) ([]Window, error) {
	if length < 0 {
		return nil, tensorprep.Configf("split length cannot be negative, got %d", length)
	}
	staticSum := 0
	ratioSum := 0.0
	lastRatio := -1
	for i, s := range splits {
		switch {
		case s < 0:
			return nil, tensorprep.Configf("splits cannot be negative: %v", splits)
		case s == math.Trunc(s):
			staticSum += int(s)
		case s < 1:
			ratioSum += s
			lastRatio = i
		default:
			return nil, tensorprep.Configf(
				"split %v is neither a whole sample count nor a fraction in (0,1)", s)
		}
	}
	if staticSum > length {
		return nil, tensorprep.Configf("static splits sum to %d, exceeding the budget of %d", staticSum, length)
	}
	if lastRatio >= 0 && math.Abs(ratioSum-1.0) > ratioTolerance {
		return nil, tensorprep.Configf("ratio splits must sum to 1.0, got %v", ratioSum)
	}

	remainder := length - staticSum
	out := make([]Window, len(splits))
	start := 0
	allocated := 0
	for i, s := range splits {
		var n int
		switch {
		case s == math.Trunc(s):
			n = int(s)
		case i == lastRatio:
			n = remainder - allocated
		default:
			n = int(s * float64(remainder))
			allocated += n
		}
		out[i] = Window{Start: start, Count: n}
		start += n
	}
	return out, nil
}

// cellBytes is the assumed in-memory footprint of one tensor cell, including
// slice and cache bookkeeping, used to translate a megabyte target into a
// sample count.
const cellBytes = 24.0

// StrideFromTargetSize computes how many samples per label fit a chunk of
// roughly megabytes MB, given the resolved profiles and the observable
// count. The result is at least 1.
func StrideFromTargetSize(profiles []*profile.ObjectProfile, width int, megabytes float64) int {
	rows := 0
	for _, p := range profiles {
		rows += p.MaxSize
	}
	mbPerSample := float64(rows) * float64(width) * cellBytes / (1000.0 * 1000.0)
	if mbPerSample <= 0 {
		return 1
	}
	stride := int(megabytes / mbPerSample)
	if stride < 1 {
		stride = 1
	}
	return stride
}

// Chunks splits a window into sub-windows of at most stride samples,
// covering the window exactly with no gaps or overlaps. The last chunk may
// be smaller.
func Chunks(w Window, stride int) []Window {
	if stride < 1 {
		stride = 1
	}
	var out []Window
	end := w.Start + w.Count
	for s := w.Start; s < end; s += stride {
		out = append(out, Window{Start: s, Count: min(stride, end-s)})
	}
	return out
}
