package types

import (
	"strings"
	"time"
)

// Filter is a conjunction of optional predicates over entries.
// The zero Filter matches every entry.
type Filter struct {
	StartDate   *time.Time `json:"startDate,omitempty"` // Inclusive lower bound on Timestamp.
	EndDate     *time.Time `json:"endDate,omitempty"`   // Inclusive upper bound on Timestamp.
	MealType    MealType   `json:"mealType,omitempty"`
	SearchQuery string     `json:"searchQuery,omitempty"`
}

// IsEmpty reports whether no predicate is set.
func (f Filter) IsEmpty() bool {
	return f.StartDate == nil && f.EndDate == nil && f.MealType == "" &&
		f.SearchQuery == ""
}

// Equal reports whether two filters select the same entries.
func (f Filter) Equal(o Filter) bool {
	return timePtrEqual(f.StartDate, o.StartDate) &&
		timePtrEqual(f.EndDate, o.EndDate) &&
		f.MealType == o.MealType &&
		f.SearchQuery == o.SearchQuery
}

// Matches reports whether e satisfies every predicate in f.
// The search query matches case-insensitively against the notes or any
// ingredient.
func (f Filter) Matches(e *Entry) bool {
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	if f.MealType != "" && e.Meal.MealType != f.MealType {
		return false
	}
	q := strings.ToLower(f.SearchQuery)
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(e.Notes), q) {
		return true
	}
	for _, ing := range e.Meal.Ingredients {
		if strings.Contains(strings.ToLower(ing), q) {
			return true
		}
	}
	return false
}

// DayBounds returns the first and last instant of the local calendar day
// containing t, in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

// ForDay returns a filter covering the local calendar day containing t.
func ForDay(t time.Time) Filter {
	start, end := DayBounds(t)
	return Filter{StartDate: &start, EndDate: &end}
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
