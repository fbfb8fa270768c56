package types

// NutritionStats aggregates the nutrition of the entries in a date range.
type NutritionStats struct {
	Count           int     `json:"count"`
	AverageCalories float64 `json:"averageCalories"`
	TotalCalories   float64 `json:"totalCalories"`
	TotalProtein    float64 `json:"totalProtein"`
	TotalCarbs      float64 `json:"totalCarbs"`
	TotalFat        float64 `json:"totalFat"`
	TotalFiber      float64 `json:"totalFiber"`
	TotalSugar      float64 `json:"totalSugar"`
	TotalSodium     float64 `json:"totalSodium"`
	TotalWater      float64 `json:"totalWater"`
}

// Add folds one entry into the totals. Entries without nutrition count
// but contribute nothing.
func (s *NutritionStats) Add(e *Entry) {
	s.Count++
	n := e.Meal.Nutrition
	if n == nil {
		return
	}
	s.TotalCalories += n.Calories
	s.TotalProtein += n.Protein
	s.TotalCarbs += n.Carbs
	s.TotalFat += n.Fat
	s.TotalFiber += deref(n.Fiber)
	s.TotalSugar += deref(n.Sugar)
	s.TotalSodium += deref(n.Sodium)
	s.TotalWater += deref(n.Water)
}

// Finish computes the averages once every entry has been added.
func (s *NutritionStats) Finish() {
	if s.Count > 0 {
		s.AverageCalories = s.TotalCalories / float64(s.Count)
	}
}

// StorageInfo is a read-only diagnostic over the whole engine.
type StorageInfo struct {
	Keys  int   `json:"keys"`
	Bytes int64 `json:"bytes"` // Estimated: sum of key and value lengths.
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
