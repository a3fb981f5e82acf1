// Package config loads a preprocessing campaign description from a YAML
// file: which object tables to read, how to transform them, where the
// labeled sources live, and how the sample budget is split.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/preprocess"
	"github.com/openhep/tensorprep/profile"
)

// Campaign is one full preprocessing run description.
type Campaign struct {
	// Observables is the ordered column list of every emitted tensor row.
	Observables []string `mapstructure:"observables"`

	// Labels maps class names to source directories.
	Labels []LabelSource `mapstructure:"labels"`

	// ProfileSpecs are the per-object-type policies as plain key-value
	// maps; use Profiles to decode them.
	ProfileSpecs []map[string]any `mapstructure:"profiles"`

	// Splits divides the per-label budget into generators (static counts
	// and ratios, see preprocess.SplitStarts).
	Splits []float64 `mapstructure:"splits"`

	// SamplesPerLabel is the total per-label budget shared by the splits.
	SamplesPerLabel int `mapstructure:"samples_per_label"`

	BatchSize         int     `mapstructure:"batch_size"`
	Megabytes         float64 `mapstructure:"megabytes"`
	ArchiveDir        string  `mapstructure:"archive_dir"`
	Seed              int64   `mapstructure:"seed"`
	PaddingMultiplier float64 `mapstructure:"padding_multiplier"`
}

// LabelSource pairs a class label with its source directory.
type LabelSource struct {
	Label string `mapstructure:"label"`
	Dir   string `mapstructure:"dir"`
}

// Load reads and validates a campaign file.
func Load(path string) (*Campaign, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("batch_size", 100)
	v.SetDefault("megabytes", 500.0)
	v.SetDefault("padding_multiplier", 1.0)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read campaign config %s: %w", path, err)
	}
	var c Campaign
	if err := v.Unmarshal(&c); err != nil {
		return nil, tensorprep.Configf("cannot decode campaign config %s: %v", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Campaign) validate() error {
	if len(c.Observables) == 0 {
		return tensorprep.Configf("campaign needs at least one observable")
	}
	if len(c.Labels) == 0 {
		return tensorprep.Configf("campaign needs at least one label source")
	}
	if len(c.ProfileSpecs) == 0 {
		return tensorprep.Configf("campaign needs at least one object profile")
	}
	if c.BatchSize < 1 {
		return tensorprep.Configf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.ArchiveDir == "" {
		return tensorprep.Configf("campaign needs an archive_dir for the chunk cache")
	}
	return nil
}

// Profiles decodes the campaign's profile specs into validated
// ObjectProfile values.
func (c *Campaign) Profiles() ([]*profile.ObjectProfile, error) {
	out := make([]*profile.ObjectProfile, len(c.ProfileSpecs))
	for i, spec := range c.ProfileSpecs {
		p, err := profile.Decode(spec)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// Pairs returns the label sources as engine inputs.
func (c *Campaign) Pairs() []preprocess.LabelDir {
	out := make([]preprocess.LabelDir, len(c.Labels))
	for i, l := range c.Labels {
		out[i] = preprocess.LabelDir{Label: l.Label, Dir: l.Dir}
	}
	return out
}
