// Package sorting turns a list of entries into labeled display sections.
//
// Date methods group entries by local calendar day. Metric methods rank
// entries by a numeric value and cut the ranking into equal-sized bands
// relative to the current result set; entries without the value go to a
// trailing section. Sorting is pure: inputs are never modified.
package sorting

import (
	"fmt"
	"sort"
	"time"

	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

// DayTitleLayout formats section titles for days other than today and
// yesterday.
const DayTitleLayout = "Monday, January 2, 2006"

// Sorter holds the presentation settings for Sort. The zero value uses
// the default band count, the local time zone and the wall clock.
type Sorter struct {
	Bands    int            // Rank bands for metric methods.
	Location *time.Location // Zone that defines calendar days.
	Now      func() time.Time
}

type metric struct {
	label string
	value func(*types.Entry) (float64, bool)
}

var metrics = map[types.SortMethod]metric{
	types.SortCaloriesDesc:         {"calories", calories},
	types.SortCaloriesAsc:          {"calories", calories},
	types.SortProteinDesc:          {"protein", protein},
	types.SortProteinAsc:           {"protein", protein},
	types.SortHealthScoreDesc:      {"health score", healthScore},
	types.SortHealthScoreAsc:       {"health score", healthScore},
	types.SortNutritionDensityDesc: {"nutrition density", NutritionDensity},
	types.SortNutritionDensityAsc:  {"nutrition density", NutritionDensity},
}

// Sort orders entries by method and groups them into sections. Every input
// entry appears in exactly one section.
func (s Sorter) Sort(entries []types.Entry, method types.SortMethod) ([]types.SortedSection, error) {
	switch method {
	case types.SortDateDesc, types.SortDateAsc:
		return s.byDate(entries, method.Descending()), nil
	}
	m, ok := metrics[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidSortMethod, method)
	}
	return s.byMetric(entries, m, method.Descending()), nil
}

// Day returns the local calendar day that the titles of method depend on,
// as YYYY-MM-DD, or "" when the result of method does not depend on the
// current date.
func (s Sorter) Day(method types.SortMethod) string {
	if method != types.SortDateDesc {
		return ""
	}
	return s.now().In(s.location()).Format(time.DateOnly)
}

func (s Sorter) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func (s Sorter) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s Sorter) bands() int {
	if s.Bands < 1 {
		return types.DefaultSectionBands
	}
	return s.Bands
}

func (s Sorter) byDate(entries []types.Entry, desc bool) []types.SortedSection {
	loc := s.location()
	sorted := cloneAll(entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if desc {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})

	today := dayKey(s.now().In(loc))
	yesterday := dayKey(s.now().In(loc).AddDate(0, 0, -1))

	sections := []types.SortedSection{}
	var current dayOf
	for _, e := range sorted {
		local := e.Timestamp.In(loc)
		k := dayKey(local)
		if len(sections) == 0 || k != current {
			current = k
			title := local.Format(DayTitleLayout)
			if desc {
				switch k {
				case today:
					title = "Today"
				case yesterday:
					title = "Yesterday"
				}
			}
			sections = append(sections, types.SortedSection{Title: title})
		}
		last := &sections[len(sections)-1]
		last.Items = append(last.Items, e)
	}
	return sections
}

type dayOf struct {
	y int
	m time.Month
	d int
}

func dayKey(t time.Time) dayOf {
	y, m, d := t.Date()
	return dayOf{y, m, d}
}

type ranked struct {
	entry types.Entry
	value float64
}

func (s Sorter) byMetric(entries []types.Entry, m metric, desc bool) []types.SortedSection {
	var withValue []ranked
	var missing []types.Entry
	for i := range entries {
		e := entries[i].Clone()
		if v, ok := m.value(&e); ok {
			withValue = append(withValue, ranked{entry: e, value: v})
		} else {
			missing = append(missing, e)
		}
	}

	sort.SliceStable(withValue, func(i, j int) bool {
		a, b := &withValue[i], &withValue[j]
		if a.value != b.value {
			if desc {
				return a.value > b.value
			}
			return a.value < b.value
		}
		return tieBreak(&a.entry, &b.entry)
	})
	sort.SliceStable(missing, func(i, j int) bool {
		return tieBreak(&missing[i], &missing[j])
	})

	sections := []types.SortedSection{}
	n := len(withValue)
	bands := min(s.bands(), n)
	for i, r := range withValue {
		b := i * bands / n
		title := BandTitle(b, bands, desc)
		if len(sections) == 0 || sections[len(sections)-1].Title != title {
			sections = append(sections, types.SortedSection{Title: title})
		}
		last := &sections[len(sections)-1]
		last.Items = append(last.Items, r.entry)
	}
	if len(missing) > 0 {
		sections = append(sections, types.SortedSection{
			Title: fmt.Sprintf("No %s data", m.label),
			Items: missing,
		})
	}
	return sections
}

// BandTitle names band b of n. Percentages always count from the top of
// the ranking, so the same slice of entries gets the same title in either
// direction.
func BandTitle(b, n int, desc bool) string {
	if n <= 1 {
		return "All"
	}
	if !desc {
		b = n - 1 - b
	}
	p0, p1 := b*100/n, (b+1)*100/n
	switch b {
	case 0:
		return fmt.Sprintf("Top %d%%", p1)
	case n - 1:
		return fmt.Sprintf("Bottom %d%%", 100-p0)
	default:
		return fmt.Sprintf("%d–%d%%", p0, p1)
	}
}

// tieBreak orders entries with equal sort values: newest timestamp first,
// then by ID.
func tieBreak(a, b *types.Entry) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID < b.ID
}

func cloneAll(entries []types.Entry) []types.Entry {
	out := make([]types.Entry, len(entries))
	for i := range entries {
		out[i] = entries[i].Clone()
	}
	return out
}

func calories(e *types.Entry) (float64, bool) {
	if e.Meal.Nutrition == nil {
		return 0, false
	}
	return e.Meal.Nutrition.Calories, true
}

func protein(e *types.Entry) (float64, bool) {
	if e.Meal.Nutrition == nil {
		return 0, false
	}
	return e.Meal.Nutrition.Protein, true
}

func healthScore(e *types.Entry) (float64, bool) {
	return e.HealthScore()
}

// NutritionDensity is grams of protein plus fiber per 100 kcal. It is
// undefined without nutrition or with non-positive calories.
func NutritionDensity(e *types.Entry) (float64, bool) {
	n := e.Meal.Nutrition
	if n == nil || n.Calories <= 0 {
		return 0, false
	}
	fiber := 0.0
	if n.Fiber != nil {
		fiber = *n.Fiber
	}
	return (n.Protein + fiber) / n.Calories * 100, true
}
