package profile

import (
	"errors"
	"testing"

	"github.com/openhep/tensorprep"
)

func TestDecode_AllKeys(t *testing.T) {
	p, err := Decode(map[string]any{
		"name":               "EFlowTrack",
		"max_size":           60,
		"pre_sort_columns":   []string{"PT_ET"},
		"pre_sort_ascending": false,
		"sort_columns":       []string{"Phi"},
		"sort_ascending":     true,
		"query":              "PT_ET > 0.5",
		"shuffle":            true,
		"add_columns":        map[string]any{"ObjType": 3},
		"punctuation":        -999.0,
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.Name != "EFlowTrack" || p.MaxSize != 60 {
		t.Fatalf("unexpected decoded profile: %v", p)
	}
	if p.PreSortAscending || !p.SortAscending || !p.Shuffle {
		t.Fatalf("flags decoded wrong: %+v", p)
	}
	if p.AddColumns["ObjType"] != 3 {
		t.Fatalf("add_columns decoded wrong: %v", p.AddColumns)
	}
	if p.Punctuation == nil || *p.Punctuation != -999 {
		t.Fatalf("punctuation decoded wrong: %v", p.Punctuation)
	}
	if p.RowDim() != 61 {
		t.Fatalf("RowDim with punctuation = %d, want 61", p.RowDim())
	}
}

func TestDecode_Defaults(t *testing.T) {
	p, err := Decode(map[string]any{"name": "Photon"})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.MaxSize != Unresolved {
		t.Fatalf("default max_size = %d, want unresolved", p.MaxSize)
	}
	if !p.PreSortAscending || !p.SortAscending {
		t.Fatalf("sorts should default to ascending")
	}
	if p.Resolved() {
		t.Fatalf("profile without max_size must report unresolved")
	}
}

func TestDecode_UnknownKeyRejected(t *testing.T) {
	_, err := Decode(map[string]any{"name": "Photon", "max_sze": 10})
	var cfg *tensorprep.ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError for unknown key, got %v", err)
	}
}

func TestValidate_MaxSizeBound(t *testing.T) {
	p := New("Muon", -2)
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error for max_size below -1")
	}
}

func TestValidateAgainst_AddColumnsMustBeObservable(t *testing.T) {
	p := New("Muon", 10)
	p.AddColumns = map[string]float64{"Charge": 1}
	err := p.ValidateAgainst([]string{"E", "Px"})
	var cfg *tensorprep.ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if err := p.ValidateAgainst([]string{"E", "Px", "Charge"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAgainst_SortColumnsMustBeObservable(t *testing.T) {
	p := New("Muon", 10)
	p.SortColumns = []string{"Pz"}
	if err := p.ValidateAgainst([]string{"E", "Px"}); err == nil {
		t.Fatalf("expected error for sort column outside observables")
	}
}

func TestParseQuery_Eval(t *testing.T) {
	q, err := ParseQuery("PT_ET > 0.5 and Eta <= 2.4")
	if err != nil {
		t.Fatalf("ParseQuery failed: %v", err)
	}
	keep, err := q.Bind([]string{"Entry", "PT_ET", "Eta"})
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if !keep([]float64{0, 1.0, 2.0}) {
		t.Fatalf("row should pass the filter")
	}
	if keep([]float64{0, 0.4, 2.0}) {
		t.Fatalf("row should fail PT_ET > 0.5")
	}
	if keep([]float64{0, 1.0, 3.0}) {
		t.Fatalf("row should fail Eta <= 2.4")
	}
}

func TestParseQuery_Errors(t *testing.T) {
	for _, bad := range []string{"PT_ET >", "PT_ET ~ 1", "PT_ET > abc"} {
		if _, err := ParseQuery(bad); err == nil {
			t.Fatalf("expected parse error for %q", bad)
		}
	}
}

func TestQueryBind_MissingColumn(t *testing.T) {
	q, _ := ParseQuery("Pz > 0")
	if _, err := q.Bind([]string{"E", "Px"}); err == nil {
		t.Fatalf("expected error for unknown query column")
	}
}
