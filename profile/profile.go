// Package profile defines the per-object-type preprocessing policy.
//
// An ObjectProfile tells the preprocessing engine how to turn the
// variable-length row groups of one object type (Electron, Photon,
// EFlowTrack, ...) into fixed-size tensor slices: what to sort on before
// truncation, which rows to keep, how many rows the final tensor has, and
// whether to shuffle, re-sort or punctuate the result.
package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/openhep/tensorprep"
)

// Unresolved marks a profile whose max_size has not been computed yet. A
// profile must be resolved (MaxSize >= 0) before preprocessing runs.
const Unresolved = -1

// EntryColumn is the reserved per-file row-index column. It identifies which
// entry a row belongs to and must never appear among the observables: using
// it as a feature leaks positional rather than physical information.
const EntryColumn = "Entry"

// ObjectProfile carries the preprocessing policy for one object type. Treat
// values as read-only once validated; the engine never mutates them.
type ObjectProfile struct {
	// Name of the object-type table to read from each source file.
	Name string `mapstructure:"name"`

	// MaxSize is the fixed number of rows in the output tensor, or
	// Unresolved if it still has to be computed from the data.
	MaxSize int `mapstructure:"max_size"`

	// PreSortColumns orders rows before truncation to MaxSize, so it
	// decides which rows survive when an entry has too many.
	PreSortColumns   []string `mapstructure:"pre_sort_columns"`
	PreSortAscending bool     `mapstructure:"pre_sort_ascending"`

	// Query filters rows after the pre-sort, before padding. See ParseQuery
	// for the accepted syntax.
	Query string `mapstructure:"query"`

	// SortColumns orders the rows of the final fixed-size tensor. It changes
	// row positions, not which rows were kept. Applied after Shuffle, so a
	// post-sort always wins over a shuffle.
	SortColumns   []string `mapstructure:"sort_columns"`
	SortAscending bool     `mapstructure:"sort_ascending"`

	// Shuffle randomizes the row order of the fixed-size tensor.
	Shuffle bool `mapstructure:"shuffle"`

	// AddColumns fills constant-valued synthetic columns before column
	// selection. Each key must appear in the observable list.
	AddColumns map[string]float64 `mapstructure:"add_columns"`

	// Punctuation, when set, appends one constant row after padding to mark
	// the end of the sequence. The tensor for this profile then has
	// MaxSize+1 rows.
	Punctuation *float64 `mapstructure:"punctuation"`
}

// New returns a profile with the usual defaults: ascending sorts, no filter,
// no shuffle.
func New(name string, maxSize int) *ObjectProfile {
	return &ObjectProfile{
		Name:             name,
		MaxSize:          maxSize,
		PreSortAscending: true,
		SortAscending:    true,
	}
}

// Decode reconstitutes a profile from a plain key-value encoding, as stored
// in campaign config files or cache signatures. Unknown keys are rejected so
// typos surface immediately instead of silently dropping policy.
func Decode(m map[string]any) (*ObjectProfile, error) {
	p := New("", Unresolved)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, tensorprep.Configf("cannot decode object profile: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the internally verifiable parts of the policy.
func (p *ObjectProfile) Validate() error {
	if p.Name == "" {
		return tensorprep.Configf("object profile needs a name")
	}
	if p.MaxSize < Unresolved {
		return tensorprep.Configf("profile %s: max_size cannot be less than %d, got %d",
			p.Name, Unresolved, p.MaxSize)
	}
	if p.Query != "" {
		if _, err := ParseQuery(p.Query); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAgainst checks the parts of the policy that depend on the
// observable column list.
func (p *ObjectProfile) ValidateAgainst(observables []string) error {
	have := make(map[string]bool, len(observables))
	for _, o := range observables {
		have[o] = true
	}
	keys := make([]string, 0, len(p.AddColumns))
	for k := range p.AddColumns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !have[k] {
			return tensorprep.Configf("profile %s: add_columns key %q must be an observable", p.Name, k)
		}
	}
	for _, c := range p.SortColumns {
		if !have[c] {
			return tensorprep.Configf("profile %s: sort column %q must be an observable", p.Name, c)
		}
	}
	return nil
}

// Resolved reports whether MaxSize has been fixed.
func (p *ObjectProfile) Resolved() bool { return p.MaxSize >= 0 }

// RowDim is the number of rows in this profile's output tensor: MaxSize,
// plus one for the punctuation row if declared.
func (p *ObjectProfile) RowDim() int {
	if p.Punctuation != nil {
		return p.MaxSize + 1
	}
	return p.MaxSize
}

// String renders the profile for log lines.
func (p *ObjectProfile) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "name:%q max_size=%d", p.Name, p.MaxSize)
	if len(p.PreSortColumns) > 0 {
		fmt.Fprintf(&b, " pre_sort_columns=%v pre_sort_ascending=%v", p.PreSortColumns, p.PreSortAscending)
	}
	if len(p.SortColumns) > 0 {
		fmt.Fprintf(&b, " sort_columns=%v sort_ascending=%v", p.SortColumns, p.SortAscending)
	}
	if p.Query != "" {
		fmt.Fprintf(&b, " query=%q", p.Query)
	}
	fmt.Fprintf(&b, " shuffle=%v", p.Shuffle)
	return b.String()
}
