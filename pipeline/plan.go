package pipeline

import (
	"github.com/rs/zerolog/log"

	"github.com/openhep/tensorprep/preprocess"
	"github.com/openhep/tensorprep/profile"
)

// Plan is the full batch-generation setup for one campaign: one generator
// per split, in declaration order, all backed by the same chunk archive.
type Plan struct {
	Generators []*Generator

	// Stride is the chunk size the plan settled on, in samples per label.
	Stride int

	// QueueDepth is the suggested training-queue depth so chunk resolution
	// overlaps consumption.
	QueueDepth int
}

// GeneratorsFromPairs composes the budget splitter, the chunk planner and the
// batch generators in one call. splits divides a per-label budget of
// samplesPerLabel (see preprocess.SplitStarts); each split becomes one
// generator over its own chunk tasks. Profiles must already be resolved.
func GeneratorsFromPairs(c *Cache, pairs []preprocess.LabelDir, splits []float64,
	samplesPerLabel int, profiles []*profile.ObjectProfile, observables []string,
	megabytes float64, batchSize int, seed int64, opts ...GeneratorOption) (*Plan, error) {

	windows, err := preprocess.SplitStarts(splits, samplesPerLabel)
	if err != nil {
		return nil, err
	}
	stride := preprocess.StrideFromTargetSize(profiles, len(observables), megabytes)
	log.Info().Int("stride", stride).Int("splits", len(windows)).
		Int("samples_per_label", samplesPerLabel).Msg("planning campaign generators")

	plan := &Plan{
		Stride:     stride,
		QueueDepth: RecommendedQueueDepth(stride, batchSize),
	}
	for _, w := range windows {
		tasks, err := c.PlanChunks(pairs, w, stride, profiles, observables, seed)
		if err != nil {
			return nil, err
		}
		g, err := NewGenerator(tasks, batchSize, opts...)
		if err != nil {
			return nil, err
		}
		plan.Generators = append(plan.Generators, g)
	}
	return plan, nil
}
