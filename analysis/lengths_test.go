package analysis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openhep/tensorprep/preprocess"
	"github.com/openhep/tensorprep/profile"
	"github.com/openhep/tensorprep/tablestore"
)

func writeCountsFile(t *testing.T, path string, counts []int) {
	t.Helper()
	nv := tablestore.NewTable("Tracks")
	obj := tablestore.NewTable("Entry", "E")
	for entry, n := range counts {
		if err := nv.Append(float64(n)); err != nil {
			t.Fatalf("append NumValues row: %v", err)
		}
		for i := 0; i < n; i++ {
			if err := obj.Append(float64(entry), 0); err != nil {
				t.Fatalf("append object row: %v", err)
			}
		}
	}
	tables := map[string]*tablestore.Table{tablestore.NumValuesTable: nv, "Tracks": obj}
	if err := tablestore.WriteArrow(path, tables); err != nil {
		t.Fatalf("WriteArrow failed: %v", err)
	}
}

func TestCollectLengths(t *testing.T) {
	dir := t.TempDir()
	writeCountsFile(t, filepath.Join(dir, "00.arrow"), []int{2, 5})
	writeCountsFile(t, filepath.Join(dir, "01.arrow"), []int{3})

	stats, err := CollectLengths([]preprocess.LabelDir{{Label: "sig", Dir: dir}},
		[]*profile.ObjectProfile{profile.New("Tracks", profile.Unresolved)})
	if err != nil {
		t.Fatalf("CollectLengths failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Profile != "Tracks" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats[0].Lengths) != 3 {
		t.Fatalf("collected %d lengths, want 3: %v", len(stats[0].Lengths), stats[0].Lengths)
	}
	if stats[0].Max != 5 {
		t.Fatalf("max length = %v, want 5", stats[0].Max)
	}
}

func TestSaveHistograms(t *testing.T) {
	dir := t.TempDir()
	stats := []LengthStats{{
		Profile: "Tracks",
		Lengths: []float64{1, 2, 2, 3, 5, 8, 8, 9},
		Max:     9,
	}}
	if err := SaveHistograms(dir, stats); err != nil {
		t.Fatalf("SaveHistograms failed: %v", err)
	}
	out := filepath.Join(dir, "lengths_Tracks.png")
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("expected plot at %s: %v", out, err)
	}
	if info.Size() == 0 {
		t.Fatalf("plot file is empty")
	}
}
