package pipeline

import (
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/tensor"
)

// Generator yields fixed-size mini-batches from an ordered list of chunk
// tasks. Tasks resolve strictly in list order; after the last task the
// generator cycles back to the first, so iteration is infinite and
// restartable for multi-epoch training. The last batch of each chunk may be
// shorter than the batch size.
//
// A Generator is driven by a single consumer. The only concurrency is the
// optional one-ahead prefetch: while the consumer drains the current chunk,
// one background worker resolves the next task. The generator blocks on that
// worker before advancing, never runs two prefetches at once, and surfaces a
// worker's error on the Next call that would have used its chunk.
type Generator struct {
	tasks     []Task
	batchSize int
	prefetch  bool

	pos        int // index of the next task to resolve
	curX       []*tensor.Dense
	curY       *tensor.Dense
	batchStart int
	pending    chan chunkResult
}

type chunkResult struct {
	X   []*tensor.Dense
	Y   *tensor.Dense
	err error
}

// GeneratorOption tweaks a Generator.
type GeneratorOption func(*Generator)

// WithPrefetch resolves the next chunk on a background worker while the
// consumer drains the current one.
func WithPrefetch() GeneratorOption {
	return func(g *Generator) { g.prefetch = true }
}

// NewGenerator builds a batch generator over tasks. Every element must be a
// task produced by a Cache; a nil entry is a configuration error.
func NewGenerator(tasks []Task, batchSize int, opts ...GeneratorOption) (*Generator, error) {
	if len(tasks) == 0 {
		return nil, tensorprep.Configf("generator needs at least one task")
	}
	for i, t := range tasks {
		if _, ok := t.(*chunkTask); !ok {
			return nil, tensorprep.Configf("task %d is %T, not a cache task", i, t)
		}
	}
	if batchSize < 1 {
		return nil, tensorprep.Configf("batch size must be positive, got %d", batchSize)
	}
	g := &Generator{tasks: tasks, batchSize: batchSize}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Next returns the next mini-batch: one tensor per profile plus the label
// slice, aligned sample for sample.
func (g *Generator) Next() ([]*tensor.Dense, *tensor.Dense, error) {
	if g.curY == nil || g.batchStart >= g.curY.NumSamples() {
		if err := g.advance(); err != nil {
			return nil, nil, err
		}
	}
	end := min(g.batchStart+g.batchSize, g.curY.NumSamples())
	X := make([]*tensor.Dense, len(g.curX))
	for i, t := range g.curX {
		X[i] = t.SliceSamples(g.batchStart, end)
	}
	Y := g.curY.SliceSamples(g.batchStart, end)
	g.batchStart = end
	return X, Y, nil
}

// advance makes the next chunk current, waiting on an in-flight prefetch if
// one exists and kicking off the following one.
func (g *Generator) advance() error {
	var res chunkResult
	if g.pending != nil {
		res = <-g.pending
		g.pending = nil
	} else {
		res = resolveTask(g.tasks[g.pos])
	}
	g.pos = (g.pos + 1) % len(g.tasks)

	if res.err != nil {
		return res.err
	}
	if g.prefetch {
		g.pending = make(chan chunkResult, 1)
		go func(t Task, out chan<- chunkResult) {
			out <- resolveTask(t)
		}(g.tasks[g.pos], g.pending)
	}
	g.curX, g.curY = res.X, res.Y
	g.batchStart = 0
	return nil
}

func resolveTask(t Task) chunkResult {
	X, Y, err := t.Resolve()
	return chunkResult{X: X, Y: Y, err: err}
}

// Reset rewinds iteration to the first task, joining any outstanding
// prefetch worker first.
func (g *Generator) Reset() {
	if g.pending != nil {
		<-g.pending
		g.pending = nil
	}
	g.pos = 0
	g.curX, g.curY = nil, nil
	g.batchStart = 0
}

// SamplesPerEpoch returns the total sample count of one pass over the task
// list.
func (g *Generator) SamplesPerEpoch() int {
	n := 0
	for _, t := range g.tasks {
		ct := t.(*chunkTask)
		n += ct.spec.SamplesPerLabel * len(ct.spec.Pairs)
	}
	return n
}

// RecommendedQueueDepth suggests how many batches a training queue should
// buffer so the next chunk starts resolving while the current one is still
// being consumed.
func RecommendedQueueDepth(stride, batchSize int) int {
	d := int(math.Ceil(float64(stride) / float64(batchSize)))
	if d < 1 {
		return 1
	}
	return d
}

// Dataset adapts a Generator to the Yield interface gomlx training loops
// consume. Inputs arrive as one gomlx tensor per profile; labels as a
// single one-hot tensor.
type Dataset struct {
	DatasetName string
	Gen         *Generator
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.DatasetName }

// Yield returns the next batch converted into gomlx tensors.
func (d *Dataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	X, Y, err := d.Gen.Next()
	if err != nil {
		return nil, nil, nil, err
	}
	inputs = make([]*tensors.Tensor, len(X))
	for i, x := range X {
		if inputs[i], err = x.ToGomlx(); err != nil {
			return nil, nil, nil, err
		}
	}
	lab, err := Y.ToGomlx()
	if err != nil {
		return nil, nil, nil, err
	}
	return nil, inputs, []*tensors.Tensor{lab}, nil
}

// Reset restarts the underlying generator for a new epoch.
func (d *Dataset) Reset() { d.Gen.Reset() }
