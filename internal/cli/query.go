package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/fooddiary/internal/pager"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

func newListCmd(a *app) *cobra.Command {
	var (
		filters filterFlags
		pages   int
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List entries, newest first",
		Long: `List entries matching the filters, newest first, one page at a time.
--pages loads that many pages; the page size comes from page_size in config.yaml.`,
		Example: `  diary list --day today
  diary list --meal dinner --search pasta --pages 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pages < 1 {
				return usageErrorf("--pages must be at least 1")
			}
			return a.withDiary(cmd.Context(), func(s *session) error {
				filter, err := filters.build(s.loc)
				if err != nil {
					return err
				}
				p, err := s.diary.NewPager()
				if err != nil {
					return err
				}
				snap, err := p.LoadFirstPage(cmd.Context(), filter)
				for i := 1; err == nil && i < pages && snap.HasMore; i++ {
					snap, err = p.LoadNextPage(cmd.Context(), filter)
				}
				if err != nil {
					return err
				}
				return a.output(cmd, snap, func(w io.Writer) {
					renderPage(w, snap, filter, s.loc)
				})
			})
		},
	}
	filters.register(cmd)
	cmd.Flags().IntVarP(&pages, "pages", "p", 1, "number of pages to load")
	return cmd
}

func renderPage(w io.Writer, snap pager.Snapshot, filter types.Filter, loc *time.Location) {
	if len(snap.Items) == 0 {
		if filter.IsEmpty() {
			fmt.Fprintln(w, emptyDiaryHint)
		} else {
			fmt.Fprintln(w, "No entries match the filters.")
		}
		return
	}
	renderEntries(w, snap.Items, loc)
	summary := fmt.Sprintf("%d %s", len(snap.Items), plural(len(snap.Items), "entry", "entries"))
	if snap.HasMore {
		summary += fmt.Sprintf(", more available with --pages %d", snap.Page+1)
	}
	fmt.Fprintln(w, mutedStyle.Render(summary))
}

func newSectionsCmd(a *app) *cobra.Command {
	var (
		filters filterFlags
		sortBy  string
	)
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "Show entries grouped into sections",
		Long: `Show entries grouped into titled sections. Date methods group by day;
metric methods group into percentile bands with a trailing section for
entries that have no value for the metric.`,
		Example: `  diary sections --sort date-desc
  diary sections --sort calories-desc --from 2024-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := types.ParseSortMethod(sortBy)
			if err != nil {
				return userError(err)
			}
			return a.withDiary(cmd.Context(), func(s *session) error {
				filter, err := filters.build(s.loc)
				if err != nil {
					return err
				}
				sections, err := s.diary.Sections(cmd.Context(), filter, method)
				if err != nil {
					return err
				}
				return a.output(cmd, sections, func(w io.Writer) {
					if len(sections) == 0 {
						fmt.Fprintln(w, emptyDiaryHint)
						return
					}
					for i, sec := range sections {
						if i > 0 {
							fmt.Fprintln(w)
						}
						fmt.Fprintf(w, "%s %s\n", titleStyle.Render(sec.Title),
							mutedStyle.Render(fmt.Sprintf("(%d)", len(sec.Items))))
						renderEntries(w, sec.Items, s.loc)
					}
				})
			})
		},
	}
	filters.register(cmd)
	cmd.Flags().StringVar(&sortBy, "sort", string(types.DefaultSortMethod), "sort method (date-desc, date-asc, calories-desc, calories-asc, protein-desc, protein-asc, health-score-desc, health-score-asc, nutrition-density-desc, nutrition-density-asc)")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize nutrition over a date range",
		Long:  "Summarize nutrition over a date range. Without flags the range is today.",
		Example: `  diary stats
  diary stats --from 2024-03-01 --to 2024-03-07`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDiary(cmd.Context(), func(s *session) error {
				start, end := types.DayBounds(time.Now().In(s.loc))
				var err error
				if from != "" {
					if start, err = parseTime(from, s.loc, false); err != nil {
						return err
					}
				}
				if to != "" {
					if end, err = parseTime(to, s.loc, true); err != nil {
						return err
					}
				}
				if end.Before(start) {
					return usageErrorf("--to is before --from")
				}
				repo, err := s.diary.Entries()
				if err != nil {
					return err
				}
				stats, err := repo.GetNutritionStats(start, end)
				if err != nil {
					return err
				}
				return a.output(cmd, stats, func(w io.Writer) {
					renderStats(w, stats, start, end)
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start of the range (default: start of today)")
	cmd.Flags().StringVar(&to, "to", "", "end of the range (a date includes the whole day)")
	return cmd
}

func renderStats(w io.Writer, st types.NutritionStats, start, end time.Time) {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Nutrition"),
		mutedStyle.Render(fmt.Sprintf("%s to %s", start.Format(displayLayout), end.Format(displayLayout))))
	fmt.Fprintf(w, "  meals:            %d\n", st.Count)
	fmt.Fprintf(w, "  calories:         %s kcal (avg %s)\n",
		humanize.CommafWithDigits(st.TotalCalories, 1), humanize.CommafWithDigits(st.AverageCalories, 1))
	fmt.Fprintf(w, "  protein:          %s g\n", humanize.CommafWithDigits(st.TotalProtein, 1))
	fmt.Fprintf(w, "  carbs:            %s g\n", humanize.CommafWithDigits(st.TotalCarbs, 1))
	fmt.Fprintf(w, "  fat:              %s g\n", humanize.CommafWithDigits(st.TotalFat, 1))
	fmt.Fprintf(w, "  fiber:            %s g\n", humanize.CommafWithDigits(st.TotalFiber, 1))
	fmt.Fprintf(w, "  sugar:            %s g\n", humanize.CommafWithDigits(st.TotalSugar, 1))
	fmt.Fprintf(w, "  sodium:           %s mg\n", humanize.CommafWithDigits(st.TotalSodium, 1))
	fmt.Fprintf(w, "  water:            %s ml\n", humanize.CommafWithDigits(st.TotalWater, 1))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
