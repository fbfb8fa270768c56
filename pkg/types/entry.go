package types

import (
	"fmt"
	"time"
)

// MealType classifies when a meal was eaten.
type MealType string

// Meal types. An entry always carries exactly one of these.
const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// validMealTypes is the set of recognized meal type values.
var validMealTypes = map[MealType]bool{
	MealBreakfast: true,
	MealLunch:     true,
	MealDinner:    true,
	MealSnack:     true,
}

// MealTypes lists the meal types in display order.
var MealTypes = []MealType{MealBreakfast, MealLunch, MealDinner, MealSnack}

// Valid reports whether m is one of the recognized meal types.
func (m MealType) Valid() bool {
	return validMealTypes[m]
}

// Rating bounds for Entry.Rating.
const (
	MinRating = 1
	MaxRating = 5
)

// Nutrition holds the macro and micro values of a meal.
// Optional fields are nil when unknown.
type Nutrition struct {
	Calories float64  `json:"calories"`
	Protein  float64  `json:"protein"`
	Carbs    float64  `json:"carbs"`
	Fat      float64  `json:"fat"`
	Fiber    *float64 `json:"fiber,omitempty"`
	Sugar    *float64 `json:"sugar,omitempty"`
	Sodium   *float64 `json:"sodium,omitempty"`
	Water    *float64 `json:"water,omitempty"`
}

// Insights is the scored part of an AI analysis.
type Insights struct {
	HealthScore *float64 `json:"healthScore,omitempty"`
	Highlights  []string `json:"highlights,omitempty"`
	Concerns    []string `json:"concerns,omitempty"`
}

// AIAnalysis is a derived, read-mostly annotation attached to a meal.
type AIAnalysis struct {
	Description string    `json:"description,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	Insights    *Insights `json:"insights,omitempty"`
	AnalyzedAt  time.Time `json:"analyzedAt,omitzero"`
}

// Meal is the food-specific value object embedded in an Entry.
type Meal struct {
	PhotoURI    string      `json:"photoUri"`
	MealType    MealType    `json:"mealType"`
	Nutrition   *Nutrition  `json:"nutrition,omitempty"`
	Ingredients []string    `json:"ingredients"`
	AIAnalysis  *AIAnalysis `json:"aiAnalysis,omitempty"`
	IsVerified  bool        `json:"isVerified"`
}

// Location is where a meal happened.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	Venue     string  `json:"venue,omitempty"`
}

// Entry is one diary record.
type Entry struct {
	ID            string    `json:"id"`            // UUID v7, generated on save. Immutable.
	UserID        string    `json:"userId"`        // Owner of the entry.
	Timestamp     time.Time `json:"timestamp"`     // When the meal occurred.
	Notes         string    `json:"notes"`         // Free text, may be empty.
	Location      *Location `json:"location,omitempty"`
	Meal          Meal      `json:"meal"`
	Rating        *int      `json:"rating,omitempty"` // 1-5 when set.
	WouldEatAgain *bool     `json:"wouldEatAgain,omitempty"`
	CreatedAt     time.Time `json:"createdAt"` // Set once at insertion.
	UpdatedAt     time.Time `json:"updatedAt"` // Bumped on every mutation.
}

// Validate checks the caller-supplied fields of an entry.
// Returns an error wrapping ErrInvalidData.
func (e *Entry) Validate() error {
	if !e.Meal.MealType.Valid() {
		return fmt.Errorf("%w: %w %q", ErrInvalidData, ErrInvalidMealType, e.Meal.MealType)
	}
	if e.Rating != nil && (*e.Rating < MinRating || *e.Rating > MaxRating) {
		return fmt.Errorf("%w: %w %d", ErrInvalidData, ErrInvalidRating, *e.Rating)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidData)
	}
	return nil
}

// Clone returns a deep copy so callers never share state with the
// repository's authoritative copy.
func (e Entry) Clone() Entry {
	out := e
	if e.Location != nil {
		loc := *e.Location
		out.Location = &loc
	}
	if e.Rating != nil {
		r := *e.Rating
		out.Rating = &r
	}
	if e.WouldEatAgain != nil {
		b := *e.WouldEatAgain
		out.WouldEatAgain = &b
	}
	out.Meal = e.Meal.Clone()
	return out
}

// Clone returns a deep copy of the meal.
func (m Meal) Clone() Meal {
	out := m
	if m.Nutrition != nil {
		n := m.Nutrition.Clone()
		out.Nutrition = &n
	}
	if m.Ingredients != nil {
		out.Ingredients = append([]string(nil), m.Ingredients...)
	}
	if m.AIAnalysis != nil {
		a := *m.AIAnalysis
		if a.Insights != nil {
			in := *a.Insights
			in.HealthScore = cloneFloat(in.HealthScore)
			in.Highlights = append([]string(nil), in.Highlights...)
			in.Concerns = append([]string(nil), in.Concerns...)
			a.Insights = &in
		}
		out.AIAnalysis = &a
	}
	return out
}

// Clone returns a copy with its own optional values.
func (n Nutrition) Clone() Nutrition {
	out := n
	out.Fiber = cloneFloat(n.Fiber)
	out.Sugar = cloneFloat(n.Sugar)
	out.Sodium = cloneFloat(n.Sodium)
	out.Water = cloneFloat(n.Water)
	return out
}

// HealthScore returns the AI health score when one is present.
func (e *Entry) HealthScore() (float64, bool) {
	a := e.Meal.AIAnalysis
	if a == nil || a.Insights == nil || a.Insights.HealthScore == nil {
		return 0, false
	}
	return *a.Insights.HealthScore, true
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
