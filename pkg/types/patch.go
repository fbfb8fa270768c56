package types

import "time"

// EntryPatch is a partial update for an entry. Nil fields are left
// unchanged. ID and CreatedAt cannot be patched.
type EntryPatch struct {
	UserID        *string    `json:"userId,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	Location      *Location  `json:"location,omitempty"`
	ClearLocation bool       `json:"clearLocation,omitempty"`
	Meal          *MealPatch `json:"meal,omitempty"`
	Rating        *int       `json:"rating,omitempty"`
	WouldEatAgain *bool      `json:"wouldEatAgain,omitempty"`
}

// MealPatch is merged into Meal one field at a time. Nutrition and
// Ingredients replace the stored value wholesale.
type MealPatch struct {
	PhotoURI    *string     `json:"photoUri,omitempty"`
	MealType    *MealType   `json:"mealType,omitempty"`
	Nutrition   *Nutrition  `json:"nutrition,omitempty"`
	Ingredients *[]string   `json:"ingredients,omitempty"`
	AIAnalysis  *AIAnalysis `json:"aiAnalysis,omitempty"`
	IsVerified  *bool       `json:"isVerified,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p EntryPatch) IsEmpty() bool {
	return p.UserID == nil && p.Timestamp == nil && p.Notes == nil &&
		p.Location == nil && !p.ClearLocation && p.Meal == nil &&
		p.Rating == nil && p.WouldEatAgain == nil
}

// Apply returns a copy of e with the patch merged in. The caller bumps
// UpdatedAt; Apply never touches ID, CreatedAt or UpdatedAt.
func (p EntryPatch) Apply(e Entry) Entry {
	out := e.Clone()
	if p.UserID != nil {
		out.UserID = *p.UserID
	}
	if p.Timestamp != nil {
		out.Timestamp = *p.Timestamp
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.ClearLocation {
		out.Location = nil
	}
	if p.Location != nil {
		loc := *p.Location
		out.Location = &loc
	}
	if p.Rating != nil {
		r := *p.Rating
		out.Rating = &r
	}
	if p.WouldEatAgain != nil {
		b := *p.WouldEatAgain
		out.WouldEatAgain = &b
	}
	if p.Meal != nil {
		out.Meal = p.Meal.apply(out.Meal)
	}
	return out
}

func (p MealPatch) apply(m Meal) Meal {
	if p.PhotoURI != nil {
		m.PhotoURI = *p.PhotoURI
	}
	if p.MealType != nil {
		m.MealType = *p.MealType
	}
	if p.Nutrition != nil {
		n := p.Nutrition.Clone()
		m.Nutrition = &n
	}
	if p.Ingredients != nil {
		m.Ingredients = append([]string{}, (*p.Ingredients)...)
	}
	if p.AIAnalysis != nil {
		m.AIAnalysis = Meal{AIAnalysis: p.AIAnalysis}.Clone().AIAnalysis
	}
	if p.IsVerified != nil {
		m.IsVerified = *p.IsVerified
	}
	return m
}
