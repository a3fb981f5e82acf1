// Package analysis offers quick data-inspection helpers over the row-count
// indexes of a campaign's sources, so sensible max_size and padding choices
// can be made before committing to a long preprocessing run.
package analysis

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/preprocess"
	"github.com/openhep/tensorprep/profile"
	"github.com/openhep/tensorprep/tablestore"
)

// LengthStats holds every observed per-entry sequence length for one object
// type across all sources.
type LengthStats struct {
	Profile string
	Lengths []float64
	Max     float64
}

// CollectLengths scans the NumValues index of every file of every source
// and gathers per-entry sequence lengths for each profile.
func CollectLengths(pairs []preprocess.LabelDir, profiles []*profile.ObjectProfile) ([]LengthStats, error) {
	stats := make([]LengthStats, len(profiles))
	for i, p := range profiles {
		stats[i].Profile = p.Name
	}
	for _, pair := range pairs {
		files, _, err := tablestore.ListDir(pair.Dir)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if err := collectFile(file, profiles, stats); err != nil {
				return nil, err
			}
		}
	}
	return stats, nil
}

func collectFile(file string, profiles []*profile.ObjectProfile, stats []LengthStats) error {
	store, err := tablestore.Open(file)
	if err != nil {
		return err
	}
	defer store.Close()

	nv, err := store.NumValues()
	if err != nil {
		return err
	}
	for i, p := range profiles {
		counts, err := nv.Col(p.Name)
		if err != nil {
			return tensorprep.Corruptf(file, "%s index has no %q column", tablestore.NumValuesTable, p.Name)
		}
		for _, c := range counts {
			stats[i].Lengths = append(stats[i].Lengths, c)
			if c > stats[i].Max {
				stats[i].Max = c
			}
		}
	}
	return nil
}

// SaveHistograms renders one sequence-length histogram per profile into
// dir as PNG files.
func SaveHistograms(dir string, stats []LengthStats) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plot directory %s: %w", dir, err)
	}
	for _, s := range stats {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s objects per entry", s.Profile)
		p.X.Label.Text = "objects"
		p.Y.Label.Text = "entries"

		h, err := plotter.NewHist(plotter.Values(s.Lengths), 20)
		if err != nil {
			return fmt.Errorf("histogram for %s: %w", s.Profile, err)
		}
		p.Add(h)

		out := filepath.Join(dir, fmt.Sprintf("lengths_%s.png", s.Profile))
		if err := p.Save(6*vg.Inch, 4*vg.Inch, out); err != nil {
			return fmt.Errorf("save %s: %w", out, err)
		}
	}
	return nil
}
