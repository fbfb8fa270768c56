package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func sampleEntry() Entry {
	return Entry{
		ID:        "e1",
		UserID:    "u1",
		Timestamp: time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC),
		Notes:     "Pasta at the corner place",
		Location:  &Location{Latitude: 45.1, Longitude: 7.6, Venue: "Trattoria"},
		Meal: Meal{
			PhotoURI:    "file:///photos/1.jpg",
			MealType:    MealLunch,
			Nutrition:   &Nutrition{Calories: 650, Protein: 22, Carbs: 80, Fat: 18, Fiber: ptr(6.0)},
			Ingredients: []string{"pasta", "tomato", "basil"},
			AIAnalysis: &AIAnalysis{
				Description: "pasta al pomodoro",
				Insights:    &Insights{HealthScore: ptr(7.5), Highlights: []string{"fiber"}},
			},
		},
		Rating: ptr(4),
	}
}

func TestEntryValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *Entry)
		wantErr error
	}{
		{name: "valid entry", mutate: func(e *Entry) {}},
		{name: "unknown meal type", mutate: func(e *Entry) { e.Meal.MealType = "brunch" }, wantErr: ErrInvalidMealType},
		{name: "rating too high", mutate: func(e *Entry) { e.Rating = ptr(6) }, wantErr: ErrInvalidRating},
		{name: "rating too low", mutate: func(e *Entry) { e.Rating = ptr(0) }, wantErr: ErrInvalidRating},
		{name: "missing timestamp", mutate: func(e *Entry) { e.Timestamp = time.Time{} }, wantErr: ErrInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := sampleEntry()
			tt.mutate(&e)
			err := e.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, errors.Is(err, ErrInvalidData), "every validation error wraps ErrInvalidData")
		})
	}
}

func TestEntryCloneIsDeep(t *testing.T) {
	orig := sampleEntry()
	cp := orig.Clone()
	require.Equal(t, orig, cp)

	cp.Meal.Ingredients[0] = "rice"
	cp.Meal.Nutrition.Calories = 1
	*cp.Meal.Nutrition.Fiber = 99
	*cp.Meal.AIAnalysis.Insights.HealthScore = 1
	cp.Location.Venue = "elsewhere"
	*cp.Rating = 1

	assert.Equal(t, "pasta", orig.Meal.Ingredients[0])
	assert.Equal(t, 650.0, orig.Meal.Nutrition.Calories)
	assert.Equal(t, 6.0, *orig.Meal.Nutrition.Fiber)
	assert.Equal(t, 7.5, *orig.Meal.AIAnalysis.Insights.HealthScore)
	assert.Equal(t, "Trattoria", orig.Location.Venue)
	assert.Equal(t, 4, *orig.Rating)
}

func TestEntryPatchApply(t *testing.T) {
	orig := sampleEntry()

	t.Run("meal is merged shallowly", func(t *testing.T) {
		patch := EntryPatch{Meal: &MealPatch{IsVerified: ptr(true)}}
		got := patch.Apply(orig)
		assert.True(t, got.Meal.IsVerified)
		assert.Equal(t, orig.Meal.Ingredients, got.Meal.Ingredients)
		assert.Equal(t, orig.Meal.Nutrition, got.Meal.Nutrition)
		assert.Equal(t, MealLunch, got.Meal.MealType)
	})

	t.Run("nutrition replaces wholesale", func(t *testing.T) {
		patch := EntryPatch{Meal: &MealPatch{Nutrition: &Nutrition{Calories: 100}}}
		got := patch.Apply(orig)
		assert.Equal(t, 100.0, got.Meal.Nutrition.Calories)
		assert.Zero(t, got.Meal.Nutrition.Protein)
		assert.Nil(t, got.Meal.Nutrition.Fiber, "nested fields are not deep-merged")
	})

	t.Run("ingredients replace wholesale", func(t *testing.T) {
		patch := EntryPatch{Meal: &MealPatch{Ingredients: &[]string{"salad"}}}
		got := patch.Apply(orig)
		assert.Equal(t, []string{"salad"}, got.Meal.Ingredients)
	})

	t.Run("top-level fields merge field by field", func(t *testing.T) {
		patch := EntryPatch{Notes: ptr("updated"), ClearLocation: true}
		got := patch.Apply(orig)
		assert.Equal(t, "updated", got.Notes)
		assert.Nil(t, got.Location)
		assert.Equal(t, orig.UserID, got.UserID)
		assert.Equal(t, orig.Rating, got.Rating)
	})

	t.Run("id and audit timestamps untouched", func(t *testing.T) {
		got := EntryPatch{Notes: ptr("x")}.Apply(orig)
		assert.Equal(t, orig.ID, got.ID)
		assert.Equal(t, orig.CreatedAt, got.CreatedAt)
		assert.Equal(t, orig.UpdatedAt, got.UpdatedAt)
	})

	t.Run("original is not mutated", func(t *testing.T) {
		_ = EntryPatch{Meal: &MealPatch{Ingredients: &[]string{"x"}}}.Apply(orig)
		assert.Equal(t, []string{"pasta", "tomato", "basil"}, orig.Meal.Ingredients)
	})

	assert.True(t, EntryPatch{}.IsEmpty())
}

func TestFilterMatches(t *testing.T) {
	e := sampleEntry()
	day := func(d int) *time.Time {
		v := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
		return &v
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty filter matches", filter: Filter{}, want: true},
		{name: "inclusive start bound", filter: Filter{StartDate: &e.Timestamp}, want: true},
		{name: "inclusive end bound", filter: Filter{EndDate: &e.Timestamp}, want: true},
		{name: "after end", filter: Filter{EndDate: day(1)}, want: false},
		{name: "before start", filter: Filter{StartDate: day(2)}, want: false},
		{name: "meal type match", filter: Filter{MealType: MealLunch}, want: true},
		{name: "meal type mismatch", filter: Filter{MealType: MealDinner}, want: false},
		{name: "search notes case-insensitive", filter: Filter{SearchQuery: "CORNER"}, want: true},
		{name: "search ingredients", filter: Filter{SearchQuery: "basil"}, want: true},
		{name: "search miss", filter: Filter{SearchQuery: "sushi"}, want: false},
		{name: "conjunction with one failing predicate", filter: Filter{MealType: MealLunch, SearchQuery: "sushi"}, want: false},
		{name: "search keeps leading space", filter: Filter{SearchQuery: " pasta"}, want: false},
		{name: "search with inner space", filter: Filter{SearchQuery: " CORNER "}, want: true},
		{name: "blank search is a predicate", filter: Filter{SearchQuery: "  "}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(&e))
		})
	}
}

func TestFilterIsEmpty(t *testing.T) {
	assert.True(t, Filter{}.IsEmpty())
	assert.False(t, Filter{SearchQuery: " "}.IsEmpty())
	assert.False(t, Filter{MealType: MealSnack}.IsEmpty())
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	start, end := DayBounds(time.Date(2024, 3, 10, 15, 4, 5, 0, loc))
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, 3, 10, 23, 59, 59, 999999999, loc), end)
}

func TestParseSortMethod(t *testing.T) {
	m, err := ParseSortMethod("")
	require.NoError(t, err)
	assert.Equal(t, SortDateDesc, m)

	m, err = ParseSortMethod("protein-asc")
	require.NoError(t, err)
	assert.Equal(t, SortProteinAsc, m)
	assert.False(t, m.Descending())
	assert.True(t, SortHealthScoreDesc.Descending())

	_, err = ParseSortMethod("alphabetical")
	assert.ErrorIs(t, err, ErrInvalidSortMethod)
}

func TestTypedErrors(t *testing.T) {
	cause := errors.New("disk full")
	var err error = &PersistenceError{Op: "set", Keys: []string{EntriesKey}, Err: cause}
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), EntriesKey)

	err = &ComputeError{Key: "k", Err: cause}
	assert.ErrorIs(t, err, ErrCompute)
	assert.ErrorIs(t, err, cause)
}
