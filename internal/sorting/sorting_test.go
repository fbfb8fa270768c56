package sorting

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

var now = time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

func sorter() Sorter {
	return Sorter{Bands: 4, Location: time.UTC, Now: func() time.Time { return now }}
}

func ptr[T any](v T) *T { return &v }

func entry(id string, ts time.Time, kcal float64) types.Entry {
	return types.Entry{
		ID:        id,
		Timestamp: ts,
		Meal: types.Meal{
			MealType:  types.MealLunch,
			Nutrition: &types.Nutrition{Calories: kcal, Protein: kcal / 20},
		},
	}
}

func ids(sections []types.SortedSection) [][]string {
	out := make([][]string, 0, len(sections))
	for _, s := range sections {
		row := make([]string, 0, len(s.Items))
		for _, e := range s.Items {
			row = append(row, e.ID)
		}
		out = append(out, row)
	}
	return out
}

func titles(sections []types.SortedSection) []string {
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		out = append(out, s.Title)
	}
	return out
}

// mixed builds a set with duplicate values, equal timestamps and entries
// missing every metric.
func mixed() []types.Entry {
	var out []types.Entry
	for i := 0; i < 13; i++ {
		e := entry(fmt.Sprintf("e%02d", i), now.Add(-time.Duration(i*7)*time.Hour), float64(100*(i%5)))
		if i%4 == 0 {
			e.Meal.Nutrition = nil
		}
		if i%3 == 0 {
			e.Meal.AIAnalysis = &types.AIAnalysis{Insights: &types.Insights{HealthScore: ptr(float64(i % 7))}}
		}
		if i == 5 {
			e.Timestamp = out[4].Timestamp
		}
		out = append(out, e)
	}
	return out
}

func TestSectionCoverage(t *testing.T) {
	input := mixed()
	for _, method := range types.SortMethods {
		for _, bands := range []int{1, 3, 4, 10} {
			t.Run(fmt.Sprintf("%s/%d", method, bands), func(t *testing.T) {
				s := sorter()
				s.Bands = bands
				sections, err := s.Sort(input, method)
				require.NoError(t, err)

				seen := map[string]int{}
				for _, sec := range sections {
					assert.NotEmpty(t, sec.Items, "empty sections are omitted")
					for _, e := range sec.Items {
						seen[e.ID]++
					}
				}
				require.Len(t, seen, len(input))
				for id, n := range seen {
					assert.Equal(t, 1, n, id)
				}
			})
		}
	}
}

func TestSortIsDeterministicAndPure(t *testing.T) {
	input := mixed()
	before := ids([]types.SortedSection{{Items: input}})

	for _, method := range types.SortMethods {
		first, err := sorter().Sort(input, method)
		require.NoError(t, err)
		second, err := sorter().Sort(input, method)
		require.NoError(t, err)
		assert.Equal(t, first, second, method)
	}
	assert.Equal(t, before, ids([]types.SortedSection{{Items: input}}), "input order is untouched")
}

func TestDateDescTitles(t *testing.T) {
	input := []types.Entry{
		entry("old", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), 100),
		entry("today-am", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), 100),
		entry("yesterday", time.Date(2024, 3, 9, 21, 0, 0, 0, time.UTC), 100),
		entry("today-pm", time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC), 100),
	}

	sections, err := sorter().Sort(input, types.SortDateDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Today", "Yesterday", "Friday, March 1, 2024"}, titles(sections))
	assert.Equal(t, [][]string{{"today-pm", "today-am"}, {"yesterday"}, {"old"}}, ids(sections))

	sections, err = sorter().Sort(input, types.SortDateAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Friday, March 1, 2024", "Saturday, March 9, 2024", "Sunday, March 10, 2024"}, titles(sections))
	assert.Equal(t, [][]string{{"old"}, {"yesterday"}, {"today-am", "today-pm"}}, ids(sections))
}

func TestDateUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 20:00 UTC on the 9th is the 10th in Tokyo, where now is the 11th.
	input := []types.Entry{
		entry("a", time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC), 100),
		entry("b", time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC), 100),
	}
	s := sorter()
	s.Location = tokyo

	sections, err := s.Sort(input, types.SortDateDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Yesterday", "Saturday, March 9, 2024"}, titles(sections))
}

func TestMetricBands(t *testing.T) {
	var input []types.Entry
	for i := 1; i <= 8; i++ {
		input = append(input, entry(fmt.Sprintf("k%d", i), now.Add(-time.Duration(i)*time.Hour), float64(i*100)))
	}
	input = append(input, types.Entry{ID: "blank", Timestamp: now})

	sections, err := sorter().Sort(input, types.SortCaloriesDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Top 25%", "25–50%", "50–75%", "Bottom 25%", "No calories data"}, titles(sections))
	assert.Equal(t, [][]string{{"k8", "k7"}, {"k6", "k5"}, {"k4", "k3"}, {"k2", "k1"}, {"blank"}}, ids(sections))

	sections, err = sorter().Sort(input, types.SortCaloriesAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bottom 25%", "50–75%", "25–50%", "Top 25%", "No calories data"}, titles(sections))
	assert.Equal(t, [][]string{{"k1", "k2"}, {"k3", "k4"}, {"k5", "k6"}, {"k7", "k8"}, {"blank"}}, ids(sections))
}

func TestMetricBandsSmallSets(t *testing.T) {
	one := []types.Entry{entry("a", now, 100)}
	sections, err := sorter().Sort(one, types.SortProteinDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"All"}, titles(sections))

	three := []types.Entry{entry("a", now, 100), entry("b", now, 200), entry("c", now, 300)}
	sections, err = sorter().Sort(three, types.SortProteinDesc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Top 33%", "33–66%", "Bottom 34%"}, titles(sections))
}

func TestTiesBreakByTimestampDesc(t *testing.T) {
	input := []types.Entry{
		entry("older", now.Add(-2*time.Hour), 500),
		entry("newer", now.Add(-time.Hour), 500),
		entry("same-b", now.Add(-3*time.Hour), 500),
		entry("same-a", now.Add(-3*time.Hour), 500),
	}
	s := sorter()
	s.Bands = 1
	for _, method := range []types.SortMethod{types.SortCaloriesDesc, types.SortCaloriesAsc} {
		sections, err := s.Sort(input, method)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"newer", "older", "same-a", "same-b"}}, ids(sections), method)
	}
}

func TestHealthScoreMissingSortsLast(t *testing.T) {
	scored := entry("scored", now.Add(-time.Hour), 100)
	scored.Meal.AIAnalysis = &types.AIAnalysis{Insights: &types.Insights{HealthScore: ptr(3.0)}}
	noInsights := entry("no-insights", now, 100)
	noInsights.Meal.AIAnalysis = &types.AIAnalysis{Description: "soup"}

	for _, method := range []types.SortMethod{types.SortHealthScoreDesc, types.SortHealthScoreAsc} {
		sections, err := sorter().Sort([]types.Entry{noInsights, scored}, method)
		require.NoError(t, err)
		assert.Equal(t, []string{"All", "No health score data"}, titles(sections))
		assert.Equal(t, [][]string{{"scored"}, {"no-insights"}}, ids(sections))
	}
}

func TestNutritionDensity(t *testing.T) {
	tests := []struct {
		name string
		n    *types.Nutrition
		want float64
		ok   bool
	}{
		{"protein only", &types.Nutrition{Calories: 200, Protein: 10}, 5, true},
		{"protein and fiber", &types.Nutrition{Calories: 400, Protein: 30, Fiber: ptr(10.0)}, 10, true},
		{"zero calories", &types.Nutrition{Protein: 10}, 0, false},
		{"no nutrition", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := types.Entry{Meal: types.Meal{Nutrition: tt.n}}
			got, ok := NutritionDensity(&e)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEmptyInput(t *testing.T) {
	for _, method := range types.SortMethods {
		sections, err := sorter().Sort(nil, method)
		require.NoError(t, err)
		assert.Empty(t, sections)
	}
}

func TestInvalidMethod(t *testing.T) {
	_, err := sorter().Sort(mixed(), "alphabetical")
	assert.ErrorIs(t, err, types.ErrInvalidSortMethod)
}

func TestDay(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	at := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)
	s := Sorter{Location: tokyo, Now: func() time.Time { return at }}

	assert.Equal(t, "2024-03-11", s.Day(types.SortDateDesc))
	assert.Empty(t, s.Day(types.SortDateAsc))
	assert.Empty(t, s.Day(types.SortCaloriesDesc))
}
