package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

// entryFlags are the meal fields shared by add and update.
type entryFlags struct {
	at          string
	mealType    string
	notes       string
	photo       string
	user        string
	ingredients []string
	verified    bool

	calories float64
	protein  float64
	carbs    float64
	fat      float64
	fiber    float64
	sugar    float64
	sodium   float64
	water    float64

	rating int
	again  bool

	lat           float64
	lon           float64
	venue         string
	address       string
	clearLocation bool
}

var nutritionFlags = []string{"calories", "protein", "carbs", "fat", "fiber", "sugar", "sodium", "water"}
var locationFlags = []string{"lat", "lon", "venue", "address"}

func (f *entryFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.at, "at", "", "when the meal happened (default: now)")
	fs.StringVarP(&f.mealType, "meal", "m", "", "meal type: breakfast, lunch, dinner or snack")
	fs.StringVarP(&f.notes, "notes", "n", "", "free-text notes")
	fs.StringVar(&f.photo, "photo", "", "photo URI")
	fs.StringVar(&f.user, "user", "", "owner of the entry")
	fs.StringSliceVarP(&f.ingredients, "ingredient", "i", nil, "ingredient (repeatable or comma-separated)")
	fs.BoolVar(&f.verified, "verified", false, "mark the meal details as verified")

	fs.Float64Var(&f.calories, "calories", 0, "calories (kcal)")
	fs.Float64Var(&f.protein, "protein", 0, "protein (g)")
	fs.Float64Var(&f.carbs, "carbs", 0, "carbohydrates (g)")
	fs.Float64Var(&f.fat, "fat", 0, "fat (g)")
	fs.Float64Var(&f.fiber, "fiber", 0, "fiber (g)")
	fs.Float64Var(&f.sugar, "sugar", 0, "sugar (g)")
	fs.Float64Var(&f.sodium, "sodium", 0, "sodium (mg)")
	fs.Float64Var(&f.water, "water", 0, "water (ml)")

	fs.IntVarP(&f.rating, "rating", "r", 0, "rating from 1 to 5")
	fs.BoolVar(&f.again, "again", false, "would eat again")

	fs.Float64Var(&f.lat, "lat", 0, "latitude")
	fs.Float64Var(&f.lon, "lon", 0, "longitude")
	fs.StringVar(&f.venue, "venue", "", "venue name")
	fs.StringVar(&f.address, "address", "", "street address")
}

func anyChanged(cmd *cobra.Command, names []string) bool {
	for _, name := range names {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// nutrition builds the nutrition block, starting from base so that update
// keeps the values that were not given.
func (f *entryFlags) nutrition(cmd *cobra.Command, base *types.Nutrition) *types.Nutrition {
	var n types.Nutrition
	if base != nil {
		n = base.Clone()
	}
	fs := cmd.Flags()
	if fs.Changed("calories") {
		n.Calories = f.calories
	}
	if fs.Changed("protein") {
		n.Protein = f.protein
	}
	if fs.Changed("carbs") {
		n.Carbs = f.carbs
	}
	if fs.Changed("fat") {
		n.Fat = f.fat
	}
	if fs.Changed("fiber") {
		n.Fiber = &f.fiber
	}
	if fs.Changed("sugar") {
		n.Sugar = &f.sugar
	}
	if fs.Changed("sodium") {
		n.Sodium = &f.sodium
	}
	if fs.Changed("water") {
		n.Water = &f.water
	}
	return &n
}

func (f *entryFlags) location(cmd *cobra.Command, base *types.Location) *types.Location {
	var l types.Location
	if base != nil {
		l = *base
	}
	fs := cmd.Flags()
	if fs.Changed("lat") {
		l.Latitude = f.lat
	}
	if fs.Changed("lon") {
		l.Longitude = f.lon
	}
	if fs.Changed("venue") {
		l.Venue = f.venue
	}
	if fs.Changed("address") {
		l.Address = f.address
	}
	return &l
}

// entry builds a new entry from the flags.
func (f *entryFlags) entry(cmd *cobra.Command, loc *time.Location) (types.Entry, error) {
	ts := time.Now().In(loc).Truncate(time.Second)
	if f.at != "" {
		var err error
		if ts, err = parseTime(f.at, loc, false); err != nil {
			return types.Entry{}, err
		}
	}
	mt, err := parseMealType(f.mealType)
	if err != nil {
		return types.Entry{}, err
	}

	e := types.Entry{
		UserID:    f.user,
		Timestamp: ts,
		Notes:     f.notes,
		Meal: types.Meal{
			PhotoURI:    f.photo,
			MealType:    mt,
			Ingredients: append([]string{}, f.ingredients...),
			IsVerified:  f.verified,
		},
	}
	if anyChanged(cmd, nutritionFlags) {
		e.Meal.Nutrition = f.nutrition(cmd, nil)
	}
	if anyChanged(cmd, locationFlags) {
		e.Location = f.location(cmd, nil)
	}
	if cmd.Flags().Changed("rating") {
		r := f.rating
		e.Rating = &r
	}
	if cmd.Flags().Changed("again") {
		b := f.again
		e.WouldEatAgain = &b
	}
	return e, nil
}

// patch builds a partial update holding only the flags that were given.
func (f *entryFlags) patch(cmd *cobra.Command, loc *time.Location, current types.Entry) (types.EntryPatch, error) {
	var p types.EntryPatch
	var mp types.MealPatch
	mealChanged := false
	fs := cmd.Flags()

	if fs.Changed("at") {
		ts, err := parseTime(f.at, loc, false)
		if err != nil {
			return p, err
		}
		p.Timestamp = &ts
	}
	if fs.Changed("meal") {
		mt, err := parseMealType(f.mealType)
		if err != nil {
			return p, err
		}
		mp.MealType = &mt
		mealChanged = true
	}
	if fs.Changed("notes") {
		p.Notes = &f.notes
	}
	if fs.Changed("user") {
		p.UserID = &f.user
	}
	if fs.Changed("photo") {
		mp.PhotoURI = &f.photo
		mealChanged = true
	}
	if fs.Changed("ingredient") {
		ing := append([]string{}, f.ingredients...)
		mp.Ingredients = &ing
		mealChanged = true
	}
	if fs.Changed("verified") {
		mp.IsVerified = &f.verified
		mealChanged = true
	}
	if anyChanged(cmd, nutritionFlags) {
		mp.Nutrition = f.nutrition(cmd, current.Meal.Nutrition)
		mealChanged = true
	}
	if mealChanged {
		p.Meal = &mp
	}
	if fs.Changed("rating") {
		p.Rating = &f.rating
	}
	if fs.Changed("again") {
		p.WouldEatAgain = &f.again
	}
	if f.clearLocation {
		if anyChanged(cmd, locationFlags) {
			return p, usageErrorf("--clear-location cannot be combined with location flags")
		}
		p.ClearLocation = true
	} else if anyChanged(cmd, locationFlags) {
		p.Location = f.location(cmd, current.Location)
	}
	return p, nil
}

func newAddCmd(a *app) *cobra.Command {
	var f entryFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a meal",
		Example: `  diary add --meal lunch --notes "pasta at Luigi's" -i pasta -i basil --calories 650 --rating 4
  diary add --meal snack --at "2024-03-10 16:30" --notes apple`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.mealType == "" {
				return usageErrorf("--meal is required")
			}
			return a.withDiary(cmd.Context(), func(s *session) error {
				e, err := f.entry(cmd, s.loc)
				if err != nil {
					return err
				}
				repo, err := s.diary.Entries()
				if err != nil {
					return err
				}
				saved, err := repo.Save(e)
				if err != nil {
					return err
				}
				return a.output(cmd, saved, func(w io.Writer) {
					fmt.Fprintf(w, "Added %s entry %s\n", saved.Meal.MealType, saved.ID)
				})
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var f entryFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an entry",
		Long:  "Change fields of an entry. Only the flags given are changed; nutrition and location values not given are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDiary(cmd.Context(), func(s *session) error {
				repo, err := s.diary.Entries()
				if err != nil {
					return err
				}
				current, err := repo.GetByID(args[0])
				if err != nil {
					return err
				}
				patch, err := f.patch(cmd, s.loc, current)
				if err != nil {
					return err
				}
				if patch.IsEmpty() {
					return usageErrorf("nothing to update")
				}
				updated, err := repo.Update(args[0], patch)
				if err != nil {
					return err
				}
				return a.output(cmd, updated, func(w io.Writer) {
					fmt.Fprintf(w, "Updated entry %s\n", updated.ID)
				})
			})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.clearLocation, "clear-location", false, "remove the location")
	return cmd
}

func newNoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "note <id> <text>",
		Short: "Replace the notes of an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDiary(cmd.Context(), func(s *session) error {
				repo, err := s.diary.Entries()
				if err != nil {
					return err
				}
				notes := args[1]
				updated, err := repo.UpdateDebounced(args[0], types.EntryPatch{Notes: &notes})
				if err != nil {
					return err
				}
				return a.output(cmd, updated, func(w io.Writer) {
					fmt.Fprintf(w, "Updated notes of %s\n", updated.ID)
				})
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete entries",
		Long:    "Delete entries by ID. Deleting an ID that does not exist is not an error.",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDiary(cmd.Context(), func(s *session) error {
				repo, err := s.diary.Entries()
				if err != nil {
					return err
				}
				for _, id := range args {
					if err := repo.Delete(id); err != nil {
						return err
					}
				}
				return a.output(cmd, map[string]any{"deleted": args}, func(w io.Writer) {
					for _, id := range args {
						fmt.Fprintf(w, "Deleted %s\n", id)
					}
				})
			})
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDiary(cmd.Context(), func(s *session) error {
				repo, err := s.diary.Entries()
				if err != nil {
					return err
				}
				e, err := repo.GetByID(args[0])
				if err != nil {
					return err
				}
				return a.output(cmd, e, func(w io.Writer) {
					renderEntry(w, e, s.loc)
				})
			})
		},
	}
}
