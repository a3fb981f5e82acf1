// Package preprocess turns raw per-event object tables into fixed-shape
// training tensors. It resolves profile sizes, plans sample windows over the
// files of each source directory, applies per-profile transforms, and
// apportions sample budgets into splits and disk-sized chunks.
package preprocess

import (
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/profile"
	"github.com/openhep/tensorprep/tablestore"
	"github.com/openhep/tensorprep/tensor"
)

// LabelDir names one training class and the directory holding its source
// files. Every file in the directory belongs to the same class.
type LabelDir struct {
	Label string
	Dir   string
}

// Preprocess reads samples [start, start+perLabel) from every label's source
// directory, treating the sorted files of a directory as one concatenated
// entry list, and returns one fixed-shape tensor per profile plus a one-hot
// label tensor.
//
// Per profile the tensor shape is (perLabel*len(pairs), rowDim, width) where
// rowDim is the profile's MaxSize, plus one when punctuation is declared,
// and width is len(observables). Samples are shuffled by a single shared
// permutation so rows stay aligned across all tensors.
//
// rng drives the shuffle (and per-profile row shuffles); pass a seeded
// source for reproducible output, or nil for a time-seeded one.
func Preprocess(pairs []LabelDir, start, perLabel int, profiles []*profile.ObjectProfile,
	observables []string, rng *rand.Rand) ([]*tensor.Dense, *tensor.Dense, error) {

	if err := validate(pairs, start, perLabel, profiles, observables); err != nil {
		return nil, nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	width := len(observables)
	total := perLabel * len(pairs)

	// Per profile, one flat (rowDim x width) buffer per sample. Absent
	// entries stay nil until the zero-fill pass.
	samples := make([][][]float64, len(profiles))
	for i := range samples {
		samples[i] = make([][]float64, total)
	}
	cursors := make([]int, len(profiles))

	for _, pair := range pairs {
		if err := readLabelWindow(pair, start, perLabel, profiles, observables, rng, samples, cursors); err != nil {
			return nil, nil, err
		}
	}

	// Zero-fill entries that had no rows for a profile. The punctuation
	// slot stays zero too: only observed groups get the punctuation row.
	for pi, prof := range profiles {
		n := prof.RowDim() * width
		for si := range samples[pi] {
			if samples[pi][si] == nil {
				samples[pi][si] = make([]float64, n)
			}
		}
	}

	X := make([]*tensor.Dense, len(profiles))
	for pi, prof := range profiles {
		t, err := tensor.FromSamples([]int{prof.RowDim(), width}, samples[pi])
		if err != nil {
			return nil, nil, err
		}
		X[pi] = t
	}

	// One-hot labels: the label vector is fixed by the pair's position for
	// the whole run.
	Y := tensor.New(total, len(pairs))
	for li := range pairs {
		for s := 0; s < perLabel; s++ {
			Y.Sample(li*perLabel + s)[li] = 1
		}
	}

	// One shared permutation across every input tensor and the labels.
	perm := rng.Perm(total)
	for _, t := range X {
		if err := t.Permute(perm); err != nil {
			return nil, nil, err
		}
	}
	if err := Y.Permute(perm); err != nil {
		return nil, nil, err
	}
	return X, Y, nil
}

// validate runs every statically checkable policy check before any file I/O.
func validate(pairs []LabelDir, start, perLabel int, profiles []*profile.ObjectProfile, observables []string) error {
	if len(pairs) == 0 {
		return tensorprep.Configf("no label-directory pairs given")
	}
	if start < 0 || perLabel <= 0 {
		return tensorprep.Configf("bad sample window: start=%d samples_per_label=%d", start, perLabel)
	}
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if seen[p.Label] {
			return tensorprep.Configf("cannot have duplicate label %q", p.Label)
		}
		seen[p.Label] = true
	}
	for _, o := range observables {
		if o == profile.EntryColumn {
			return tensorprep.Configf(
				"observable %q is the reserved row-index column and would leak positional information", o)
		}
	}
	for _, prof := range profiles {
		if !prof.Resolved() {
			return tensorprep.Configf(
				"profile %s has unresolved max_size; run preprocess.ResolveMaxSizes first", prof.Name)
		}
		if err := prof.ValidateAgainst(observables); err != nil {
			return err
		}
	}
	return nil
}

// readLabelWindow walks one directory's files in sorted order, skipping
// whole files before the window, and fills each profile's sample buffers
// for entries [start, start+perLabel).
func readLabelWindow(pair LabelDir, start, perLabel int, profiles []*profile.ObjectProfile,
	observables []string, rng *rand.Rand, samples [][][]float64, cursors []int) error {

	files, _, err := tablestore.ListDir(pair.Dir)
	if err != nil {
		return err
	}

	location := 0
	samplesRead := 0
	for _, file := range files {
		advance, read, err := readFileWindow(file, start, perLabel, location, samplesRead,
			profiles, observables, rng, samples, cursors)
		if err != nil {
			return err
		}
		location += advance
		samplesRead += read
		if samplesRead >= perLabel {
			break
		}
	}
	if samplesRead != perLabel {
		return &tensorprep.InsufficientDataError{Dir: pair.Dir, Requested: perLabel, Available: samplesRead}
	}
	return nil
}

// readFileWindow reads the slice of one file overlapping the requested
// window. Returns the file's total entry count and how many entries it
// contributed. The store is closed on every path.
func readFileWindow(file string, start, perLabel, location, samplesRead int,
	profiles []*profile.ObjectProfile, observables []string, rng *rand.Rand,
	samples [][][]float64, cursors []int) (advance, read int, err error) {

	store, err := tablestore.Open(file)
	if err != nil {
		return 0, 0, err
	}
	defer store.Close()

	nv, err := store.NumValues()
	if err != nil {
		return 0, 0, err
	}
	total := nv.NumRows()
	if total == 0 {
		return 0, 0, tensorprep.Corruptf(file, "%s index has zero entries", tablestore.NumValuesTable)
	}
	if location+total <= start {
		// Entirely before the window.
		return total, 0, nil
	}

	fileStart := start - location
	if fileStart < 0 {
		fileStart = 0
	}
	toRead := min(perLabel-samplesRead, total-fileStart)
	log.Debug().Str("file", file).Int("samples", toRead).Msg("reading window slice")

	for pi, prof := range profiles {
		counts, err := nv.Col(prof.Name)
		if err != nil {
			return 0, 0, tensorprep.Corruptf(file, "%s index has no %q column", tablestore.NumValuesTable, prof.Name)
		}
		skip := sumCounts(counts[:fileStart])
		n := sumCounts(counts[fileStart : fileStart+toRead])
		frame, err := store.Select(prof.Name, skip, skip+n)
		if err != nil {
			return 0, 0, err
		}
		if err := processGroups(file, frame, prof, observables, fileStart, toRead, rng,
			samples[pi], cursors[pi]); err != nil {
			return 0, 0, err
		}
		cursors[pi] += toRead
	}
	return total, toRead, nil
}

// processGroups splits a selected row slice into per-entry groups and writes
// each group's transformed fixed-size buffer into its sample slot.
func processGroups(file string, frame *tablestore.Table, prof *profile.ObjectProfile,
	observables []string, fileStart, toRead int, rng *rand.Rand,
	out [][]float64, base int) error {

	entryCol := frame.ColIndex(profile.EntryColumn)
	if entryCol < 0 {
		return tensorprep.Corruptf(file, "table %q has no %s column", prof.Name, profile.EntryColumn)
	}

	// Group rows by entry id. Selection order within an entry is preserved.
	groups := make(map[int][][]float64)
	order := make([]int, 0)
	for _, row := range frame.Rows {
		entry := int(row[entryCol])
		if _, ok := groups[entry]; !ok {
			order = append(order, entry)
		}
		groups[entry] = append(groups[entry], row)
	}
	sort.Ints(order)

	for _, entry := range order {
		rel := entry - fileStart
		if rel < 0 || rel >= toRead {
			return tensorprep.Corruptf(file,
				"table %q has entry id %d outside the selected window [%d, %d); the %s index is inconsistent",
				prof.Name, entry, fileStart, fileStart+toRead, tablestore.NumValuesTable)
		}
		flat, err := transformGroup(groups[entry], frame.Columns, prof, observables, rng)
		if err != nil {
			return err
		}
		out[base+rel] = flat
	}
	return nil
}
