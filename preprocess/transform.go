package preprocess

import (
	"math/rand"
	"sort"

	"github.com/openhep/tensorprep"
	"github.com/openhep/tensorprep/profile"
)

// transformGroup applies one profile's policy to the rows of a single entry,
// in the fixed order: pre-sort, filter, constant-column merge + projection,
// truncate/pad, shuffle, post-sort, punctuation. The result is a flat
// row-major (RowDim x len(observables)) buffer.
func transformGroup(rows [][]float64, columns []string, prof *profile.ObjectProfile,
	observables []string, rng *rand.Rand) ([]float64, error) {

	width := len(observables)

	// 1. Pre-sort decides which rows survive truncation.
	if len(prof.PreSortColumns) > 0 {
		keys := make([]int, len(prof.PreSortColumns))
		for i, c := range prof.PreSortColumns {
			keys[i] = colIndex(columns, c)
			if keys[i] < 0 {
				return nil, tensorprep.Configf("profile %s: pre-sort column %q not in table columns %v",
					prof.Name, c, columns)
			}
		}
		rows = append([][]float64(nil), rows...)
		sort.SliceStable(rows, func(a, b int) bool {
			for _, k := range keys {
				if rows[a][k] != rows[b][k] {
					if prof.PreSortAscending {
						return rows[a][k] < rows[b][k]
					}
					return rows[a][k] > rows[b][k]
				}
			}
			return false
		})
	}

	// 2. Row filter.
	if prof.Query != "" {
		q, err := profile.ParseQuery(prof.Query)
		if err != nil {
			return nil, err
		}
		keep, err := q.Bind(columns)
		if err != nil {
			return nil, err
		}
		filtered := make([][]float64, 0, len(rows))
		for _, row := range rows {
			if keep(row) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	// 3+4. Merge constant columns and project onto the observable order.
	// A constant column overrides a physical column of the same name.
	srcIdx := make([]int, width)
	consts := make([]float64, width)
	for i, o := range observables {
		if v, ok := prof.AddColumns[o]; ok {
			srcIdx[i] = -1
			consts[i] = v
			continue
		}
		srcIdx[i] = colIndex(columns, o)
		if srcIdx[i] < 0 {
			return nil, tensorprep.Configf("profile %s: observable %q not in table columns %v",
				prof.Name, o, columns)
		}
	}
	projected := make([][]float64, len(rows))
	for r, row := range rows {
		p := make([]float64, width)
		for i := range observables {
			if srcIdx[i] < 0 {
				p[i] = consts[i]
			} else {
				p[i] = row[srcIdx[i]]
			}
		}
		projected[r] = p
	}

	// 5. Truncate to the first MaxSize rows, or zero-pad at the tail.
	if len(projected) > prof.MaxSize {
		projected = projected[:prof.MaxSize]
	} else {
		for len(projected) < prof.MaxSize {
			projected = append(projected, make([]float64, width))
		}
	}

	// 6. Shuffle the fixed-size rows.
	if prof.Shuffle {
		rng.Shuffle(len(projected), func(a, b int) {
			projected[a], projected[b] = projected[b], projected[a]
		})
	}

	// 7. Post-sort fixes final row positions. Columns are applied in
	// reverse declaration order so the first declared column ends up the
	// primary key. A post-sort always overrides the shuffle.
	if len(prof.SortColumns) > 0 {
		locs := make([]int, len(prof.SortColumns))
		for i, c := range prof.SortColumns {
			locs[i] = colIndex(observables, c)
			if locs[i] < 0 {
				return nil, tensorprep.Configf("profile %s: sort column %q not in observables %v",
					prof.Name, c, observables)
			}
		}
		for i := len(locs) - 1; i >= 0; i-- {
			loc := locs[i]
			sort.SliceStable(projected, func(a, b int) bool {
				if prof.SortAscending {
					return projected[a][loc] < projected[b][loc]
				}
				return projected[a][loc] > projected[b][loc]
			})
		}
	}

	// 8. Punctuation marks the end of the observed sequence.
	if prof.Punctuation != nil {
		punct := make([]float64, width)
		for i := range punct {
			punct[i] = *prof.Punctuation
		}
		projected = append(projected, punct)
	}

	flat := make([]float64, 0, len(projected)*width)
	for _, row := range projected {
		flat = append(flat, row...)
	}
	return flat, nil
}

func colIndex(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

func sumCounts(counts []float64) int {
	n := 0
	for _, c := range counts {
		n += int(c)
	}
	return n
}
