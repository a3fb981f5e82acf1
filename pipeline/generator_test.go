package pipeline

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/preprocess"
	"github.com/openhep/tensorprep/profile"
	"github.com/openhep/tensorprep/tablestore"
	"github.com/openhep/tensorprep/tensor"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// writeSource writes one arrow file holding `entries` entries with a single
// Tracks row each, E set to the entry id.
func writeSource(t *testing.T, dir string, entries int) {
	t.Helper()
	nv := tablestore.NewTable("Tracks")
	obj := tablestore.NewTable("Entry", "E")
	for e := 0; e < entries; e++ {
		if err := nv.Append(1); err != nil {
			t.Fatalf("append NumValues row: %v", err)
		}
		if err := obj.Append(float64(e), float64(e)); err != nil {
			t.Fatalf("append object row: %v", err)
		}
	}
	tables := map[string]*tablestore.Table{tablestore.NumValuesTable: nv, "Tracks": obj}
	if err := tablestore.WriteArrow(filepath.Join(dir, "00.arrow"), tables); err != nil {
		t.Fatalf("WriteArrow failed: %v", err)
	}
}

func testTasks(t *testing.T, c *Cache) []Task {
	t.Helper()
	dir := t.TempDir()
	writeSource(t, dir, 20)
	tasks, err := c.PlanChunks([]preprocess.LabelDir{{Label: "sig", Dir: dir}},
		preprocess.Window{Start: 0, Count: 20}, 10,
		[]*profile.ObjectProfile{profile.New("Tracks", 1)}, []string{"E"}, 42)
	if err != nil {
		t.Fatalf("PlanChunks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("planned %d tasks, want 2", len(tasks))
	}
	return tasks
}

func TestGenerator_BatchSizesAndCycling(t *testing.T) {
	c := newTestCache(t)
	g, err := NewGenerator(testTasks(t, c), 4)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}

	// Two 10-sample chunks at batch size 4, then the cycle restarts.
	want := []int{4, 4, 2, 4, 4, 2, 4}
	for i, n := range want {
		X, Y, err := g.Next()
		if err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if Y.NumSamples() != n {
			t.Fatalf("batch %d has %d samples, want %d", i, Y.NumSamples(), n)
		}
		if X[0].NumSamples() != n {
			t.Fatalf("batch %d inputs have %d samples, want %d", i, X[0].NumSamples(), n)
		}
	}
	if got := g.SamplesPerEpoch(); got != 20 {
		t.Fatalf("SamplesPerEpoch = %d, want 20", got)
	}
}

func TestGenerator_PrefetchMatchesSerial(t *testing.T) {
	c := newTestCache(t)
	tasks := testTasks(t, c)

	serial, err := NewGenerator(tasks, 4)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	ahead, err := NewGenerator(tasks, 4, WithPrefetch())
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}

	for i := 0; i < 9; i++ {
		_, ys, err := serial.Next()
		if err != nil {
			t.Fatalf("serial Next %d failed: %v", i, err)
		}
		_, ya, err := ahead.Next()
		if err != nil {
			t.Fatalf("prefetch Next %d failed: %v", i, err)
		}
		if !ys.Equal(ya) {
			t.Fatalf("batch %d differs between serial and prefetching generators", i)
		}
	}
}

func TestGenerator_ResetRestartsIteration(t *testing.T) {
	c := newTestCache(t)
	g, err := NewGenerator(testTasks(t, c), 4, WithPrefetch())
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}

	_, first, err := g.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, _, err := g.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}
	g.Reset()
	_, again, err := g.Next()
	if err != nil {
		t.Fatalf("Next after Reset failed: %v", err)
	}
	if !first.Equal(again) {
		t.Fatalf("Reset did not rewind to the first batch")
	}
}

func TestCache_MemoizationSkipsRecompute(t *testing.T) {
	c := newTestCache(t)

	// The source directory does not exist. A resolve that reaches the
	// preprocessing engine would fail, so a successful resolve proves the
	// archived payload was served.
	spec := ChunkSpec{
		Pairs:           []preprocess.LabelDir{{Label: "sig", Dir: filepath.Join(t.TempDir(), "gone")}},
		Start:           0,
		SamplesPerLabel: 2,
		Profiles:        []*profile.ObjectProfile{profile.New("Tracks", 1)},
		Observables:     []string{"E"},
		Seed:            1,
	}
	key, err := spec.Key()
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	wantX := []*tensor.Dense{tensor.New(2, 1, 1)}
	wantX[0].Values = []float64{5, 6}
	wantY := tensor.New(2, 1)
	if err := c.store(key, wantX, wantY); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	task, err := c.Submit(spec)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	X, Y, err := task.Resolve()
	if err != nil {
		t.Fatalf("Resolve should have hit the archive: %v", err)
	}
	if !X[0].Equal(wantX[0]) || !Y.Equal(wantY) {
		t.Fatalf("archived payload came back altered")
	}
}

func TestChunkSpec_Keys(t *testing.T) {
	spec := ChunkSpec{
		Pairs:           []preprocess.LabelDir{{Label: "sig", Dir: "/data/sig"}},
		Start:           100,
		SamplesPerLabel: 50,
		Profiles:        []*profile.ObjectProfile{profile.New("Tracks", 5)},
		Observables:     []string{"E"},
		Seed:            7,
	}
	k1, err := spec.Key()
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	k2, _ := spec.Key()
	if k1 != k2 {
		t.Fatalf("identical specs hash differently: %s vs %s", k1, k2)
	}
	other := spec
	other.Start = 150
	k3, _ := other.Key()
	if k3 == k1 {
		t.Fatalf("different windows share a key")
	}
}

func TestGenerator_ErrorPropagation(t *testing.T) {
	c := newTestCache(t)
	task, err := c.Submit(ChunkSpec{
		Pairs:           []preprocess.LabelDir{{Label: "sig", Dir: filepath.Join(t.TempDir(), "gone")}},
		Start:           0,
		SamplesPerLabel: 2,
		Profiles:        []*profile.ObjectProfile{profile.New("Tracks", 1)},
		Observables:     []string{"E"},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	for _, opts := range [][]GeneratorOption{nil, {WithPrefetch()}} {
		g, err := NewGenerator([]Task{task}, 4, opts...)
		if err != nil {
			t.Fatalf("NewGenerator failed: %v", err)
		}
		_, _, err = g.Next()
		var nf *tensorprep.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected the missing-source error from Next, got %v", err)
		}
	}
}

type fakeTask struct{}

func (fakeTask) Key() string                                      { return "fake" }
func (fakeTask) Resolve() ([]*tensor.Dense, *tensor.Dense, error) { return nil, nil, nil }

func TestNewGenerator_Validation(t *testing.T) {
	c := newTestCache(t)
	tasks := testTasks(t, c)

	var cfg *tensorprep.ConfigurationError
	if _, err := NewGenerator(nil, 4); !errors.As(err, &cfg) {
		t.Fatalf("empty task list: expected ConfigurationError, got %v", err)
	}
	if _, err := NewGenerator([]Task{fakeTask{}}, 4); !errors.As(err, &cfg) {
		t.Fatalf("foreign task type: expected ConfigurationError, got %v", err)
	}
	if _, err := NewGenerator(tasks, 0); !errors.As(err, &cfg) {
		t.Fatalf("zero batch size: expected ConfigurationError, got %v", err)
	}
}

func TestRecommendedQueueDepth(t *testing.T) {
	if got := RecommendedQueueDepth(100, 32); got != 4 {
		t.Fatalf("depth = %d, want 4", got)
	}
	if got := RecommendedQueueDepth(0, 32); got != 1 {
		t.Fatalf("depth = %d, want 1", got)
	}
}
