package types

import "fmt"

// SortMethod selects how the sorting engine orders and groups entries.
type SortMethod string

// Sort methods. The set is closed; ParseSortMethod rejects anything else.
const (
	SortDateDesc             SortMethod = "date-desc"
	SortDateAsc              SortMethod = "date-asc"
	SortCaloriesDesc         SortMethod = "calories-desc"
	SortCaloriesAsc          SortMethod = "calories-asc"
	SortProteinDesc          SortMethod = "protein-desc"
	SortProteinAsc           SortMethod = "protein-asc"
	SortHealthScoreDesc      SortMethod = "health-score-desc"
	SortHealthScoreAsc       SortMethod = "health-score-asc"
	SortNutritionDensityDesc SortMethod = "nutrition-density-desc"
	SortNutritionDensityAsc  SortMethod = "nutrition-density-asc"
)

// DefaultSortMethod is the safe ordering used when anything else fails.
const DefaultSortMethod = SortDateDesc

// SortMethods lists every supported method.
var SortMethods = []SortMethod{
	SortDateDesc, SortDateAsc,
	SortCaloriesDesc, SortCaloriesAsc,
	SortProteinDesc, SortProteinAsc,
	SortHealthScoreDesc, SortHealthScoreAsc,
	SortNutritionDensityDesc, SortNutritionDensityAsc,
}

// Valid reports whether m is a supported sort method.
func (m SortMethod) Valid() bool {
	for _, s := range SortMethods {
		if s == m {
			return true
		}
	}
	return false
}

// Descending reports whether the method orders from high to low (or
// newest to oldest).
func (m SortMethod) Descending() bool {
	n := len(m)
	return n > 5 && m[n-5:] == "-desc"
}

// ParseSortMethod converts a string into a SortMethod.
// An empty string yields DefaultSortMethod.
func ParseSortMethod(s string) (SortMethod, error) {
	if s == "" {
		return DefaultSortMethod, nil
	}
	m := SortMethod(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSortMethod, s)
	}
	return m, nil
}

// SortedSection is a labeled group of entries produced for display.
// Sections are derived and never persisted.
type SortedSection struct {
	Title string  `json:"title"`
	Items []Entry `json:"items"`
}
