package preprocess

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/profile"
	"github.com/openhep/tensorprep/tablestore"
)

// ResolveMaxSizes computes max_size for every unresolved profile by scanning
// the row-count index of every file of every source directory once and
// taking the running maximum per object type. Resolved profiles are left
// untouched, and no source is opened at all when nothing needs resolution.
//
// paddingMultiplier scales the observed maxima (ceil applied afterwards) in
// case real-world data is expected to run larger than the preprocessing
// sample; 1.0 keeps the observed maximum.
func ResolveMaxSizes(profiles []*profile.ObjectProfile, pairs []LabelDir, paddingMultiplier float64) error {
	if paddingMultiplier < 0 {
		return tensorprep.Configf("padding multiplier cannot be negative, got %v", paddingMultiplier)
	}
	var unresolved []*profile.ObjectProfile
	maxes := make(map[string]float64)
	for _, p := range profiles {
		if !p.Resolved() {
			unresolved = append(unresolved, p)
			maxes[p.Name] = 0
		}
	}
	if len(unresolved) == 0 {
		return nil
	}

	for _, pair := range pairs {
		files, _, err := tablestore.ListDir(pair.Dir)
		if err != nil {
			return err
		}
		for _, file := range files {
			if err := scanFileMaxes(file, unresolved, maxes); err != nil {
				return err
			}
		}
	}

	for _, p := range unresolved {
		p.MaxSize = int(math.Ceil(maxes[p.Name] * paddingMultiplier))
		log.Debug().Str("profile", p.Name).Int("max_size", p.MaxSize).Msg("resolved profile size")
	}
	return nil
}

func scanFileMaxes(file string, unresolved []*profile.ObjectProfile, maxes map[string]float64) error {
	store, err := tablestore.Open(file)
	if err != nil {
		return err
	}
	defer store.Close()

	nv, err := store.NumValues()
	if err != nil {
		return err
	}
	for _, p := range unresolved {
		counts, err := nv.Col(p.Name)
		if err != nil {
			return tensorprep.Corruptf(file, "%s index has no %q column", tablestore.NumValuesTable, p.Name)
		}
		for _, c := range counts {
			if c > maxes[p.Name] {
				maxes[p.Name] = c
			}
		}
	}
	return nil
}

// MaxMutualLength returns the largest sample count that can be read from
// every label directory, i.e. the minimum over labels of each label's total
// entry count. Each file's table set is checked against the profiles so a
// truncated file surfaces here rather than mid-preprocessing.
func MaxMutualLength(pairs []LabelDir, profiles []*profile.ObjectProfile) (int, error) {
	mutual := -1
	for _, pair := range pairs {
		files, _, err := tablestore.ListDir(pair.Dir)
		if err != nil {
			return 0, err
		}
		total := 0
		for _, file := range files {
			n, err := countFileEntries(file, profiles)
			if err != nil {
				return 0, err
			}
			total += n
		}
		if mutual < 0 || total < mutual {
			mutual = total
		}
	}
	if mutual < 0 {
		return 0, tensorprep.Configf("no label-directory pairs given")
	}
	return mutual, nil
}

func countFileEntries(file string, profiles []*profile.ObjectProfile) (int, error) {
	store, err := tablestore.Open(file)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	have := make(map[string]bool)
	for _, name := range store.Tables() {
		have[name] = true
	}
	for _, p := range profiles {
		if !have[p.Name] {
			return 0, tensorprep.Corruptf(file, "missing table %q; file has tables %v", p.Name, store.Tables())
		}
	}
	nv, err := store.NumValues()
	if err != nil {
		return 0, err
	}
	return nv.NumRows(), nil
}
