package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/mesh-intelligence/fooddiary/internal/diary"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userError(err error) error { return &exitError{code: exitUserError, err: err} }
func sysError(err error) error  { return &exitError{code: exitSysError, err: err} }

func usageErrorf(format string, args ...any) error {
	return userError(fmt.Errorf(format, args...))
}

// userErrors are failures caused by input rather than the environment.
var userErrors = []error{
	types.ErrInvalidData,
	types.ErrInvalidID,
	types.ErrNotFound,
	types.ErrInvalidSortMethod,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
	types.ErrFlushDelayInvalid,
	types.ErrDebounceDelayInvalid,
	types.ErrCacheTTLInvalid,
	types.ErrCacheSizeInvalid,
	types.ErrPageSizeInvalid,
	types.ErrSectionBandsInvalid,
	types.ErrTimezoneInvalid,
}

// classify attaches an exit code to err unless it already carries one.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return userError(err)
		}
	}
	return sysError(err)
}

// session is an attached diary plus the settings a command needs.
type session struct {
	diary *diary.Diary
	loc   *time.Location
}

// withDiary attaches a diary for the duration of fn and flushes and
// detaches it afterwards. Detach errors are combined with fn's error.
func (a *app) withDiary(ctx context.Context, fn func(*session) error) (err error) {
	cfg, err := a.diaryConfig()
	if err != nil {
		return sysError(err)
	}
	loc, err := cfg.WithDefaults().Location()
	if err != nil {
		return userError(err)
	}

	d := diary.New(diary.WithLogger(a.log))
	if err := d.Attach(cfg); err != nil {
		return classify(fmt.Errorf("attach: %w", err))
	}
	defer func() {
		flushErr := d.Flush(ctx)
		detachErr := d.Detach()
		if extra := multierr.Combine(flushErr, detachErr); extra != nil {
			err = classify(multierr.Append(err, extra))
		}
	}()

	return classify(fn(&session{diary: d, loc: loc}))
}

// output writes v as indented JSON in --json mode or calls human
// otherwise.
func (a *app) output(cmd *cobra.Command, v any, human func(io.Writer)) error {
	w := cmd.OutOrStdout()
	if a.flags.jsonMode {
		return printJSON(w, v)
	}
	human(w)
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError(fmt.Errorf("marshal output: %w", err))
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// Time formats accepted on the command line, most specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	dateLayout,
}

const (
	dateLayout    = "2006-01-02"
	displayLayout = "2006-01-02 15:04"
)

// parseTime parses s in loc. A bare date means the start of the day, or
// its last instant when endOfDay is set.
func parseTime(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		if layout == dateLayout && endOfDay {
			_, end := types.DayBounds(t)
			return end, nil
		}
		return t, nil
	}
	return time.Time{}, usageErrorf("invalid time %q (use RFC 3339, YYYY-MM-DD or \"YYYY-MM-DD HH:MM\")", s)
}

func parseMealType(s string) (types.MealType, error) {
	mt := types.MealType(strings.ToLower(s))
	if !mt.Valid() {
		names := make([]string, len(types.MealTypes))
		for i, m := range types.MealTypes {
			names[i] = string(m)
		}
		return "", usageErrorf("invalid meal type %q (one of %s)", s, strings.Join(names, ", "))
	}
	return mt, nil
}

// filterFlags are the entry filter flags shared by list and sections.
type filterFlags struct {
	from     string
	to       string
	day      string
	mealType string
	search   string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "only entries at or after this time")
	cmd.Flags().StringVar(&f.to, "to", "", "only entries at or before this time (a date includes the whole day)")
	cmd.Flags().StringVar(&f.day, "day", "", "only entries on this date (YYYY-MM-DD, or \"today\")")
	cmd.Flags().StringVar(&f.mealType, "meal", "", "only entries of this meal type")
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "match notes or ingredients (case-insensitive)")
}

func (f *filterFlags) build(loc *time.Location) (types.Filter, error) {
	var filter types.Filter
	if f.day != "" {
		if f.from != "" || f.to != "" {
			return filter, usageErrorf("--day cannot be combined with --from or --to")
		}
		t := time.Now().In(loc)
		if f.day != "today" {
			var err error
			if t, err = parseTime(f.day, loc, false); err != nil {
				return filter, err
			}
		}
		filter = types.ForDay(t)
	}
	if f.from != "" {
		t, err := parseTime(f.from, loc, false)
		if err != nil {
			return filter, err
		}
		filter.StartDate = &t
	}
	if f.to != "" {
		t, err := parseTime(f.to, loc, true)
		if err != nil {
			return filter, err
		}
		filter.EndDate = &t
	}
	if f.mealType != "" {
		mt, err := parseMealType(f.mealType)
		if err != nil {
			return filter, err
		}
		filter.MealType = mt
	}
	filter.SearchQuery = f.search
	return filter, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Faint(true)
)

const notesWidth = 40

// renderEntries prints entries as a table.
func renderEntries(w io.Writer, entries []types.Entry, loc *time.Location) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "WHEN", "MEAL", "KCAL", "RATING", "NOTES")
	for _, e := range entries {
		t.Row(
			e.ID,
			e.Timestamp.In(loc).Format(displayLayout),
			string(e.Meal.MealType),
			calories(e),
			rating(e),
			truncate(e.Notes, notesWidth),
		)
	}
	fmt.Fprintln(w, t.Render())
}

// renderEntry prints one entry as a field list.
func renderEntry(w io.Writer, e types.Entry, loc *time.Location) {
	fmt.Fprintln(w, titleStyle.Render(e.ID))
	fmt.Fprintf(w, "  when:        %s\n", e.Timestamp.In(loc).Format(displayLayout))
	fmt.Fprintf(w, "  meal:        %s\n", e.Meal.MealType)
	if e.UserID != "" {
		fmt.Fprintf(w, "  user:        %s\n", e.UserID)
	}
	if n := e.Meal.Nutrition; n != nil {
		fmt.Fprintf(w, "  nutrition:   %s kcal, %sg protein, %sg carbs, %sg fat\n",
			humanize.Ftoa(n.Calories), humanize.Ftoa(n.Protein), humanize.Ftoa(n.Carbs), humanize.Ftoa(n.Fat))
	}
	if len(e.Meal.Ingredients) > 0 {
		fmt.Fprintf(w, "  ingredients: %s\n", strings.Join(e.Meal.Ingredients, ", "))
	}
	if e.Rating != nil {
		fmt.Fprintf(w, "  rating:      %d/%d\n", *e.Rating, types.MaxRating)
	}
	if e.WouldEatAgain != nil {
		fmt.Fprintf(w, "  eat again:   %t\n", *e.WouldEatAgain)
	}
	if l := e.Location; l != nil {
		place := l.Venue
		if place == "" {
			place = l.Address
		}
		fmt.Fprintf(w, "  location:    %s (%s, %s)\n", place,
			strconv.FormatFloat(l.Latitude, 'f', -1, 64), strconv.FormatFloat(l.Longitude, 'f', -1, 64))
	}
	if e.Notes != "" {
		fmt.Fprintf(w, "  notes:       %s\n", e.Notes)
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  updated %s", humanize.Time(e.UpdatedAt))))
}

const emptyDiaryHint = "No entries yet. Record a meal with `diary add --meal lunch`."

func calories(e types.Entry) string {
	if e.Meal.Nutrition == nil {
		return "-"
	}
	return humanize.Ftoa(e.Meal.Nutrition.Calories)
}

func rating(e types.Entry) string {
	if e.Rating == nil {
		return "-"
	}
	return strings.Repeat("*", *e.Rating)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
