package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bhavikpatel576/timely/internal/api"
	"github.com/Bhavikpatel576/timely/internal/domain"
	"github.com/Bhavikpatel576/timely/internal/persistence"
)

var (
	summaryGroupBy string
	appsBy         string
	appsLimit      int
	timelineLimit  int
	timelineCursor string
	trendsInterval string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show active time grouped by category, app or site",
	Example: `  timely summary
  timely summary --from 2026-03-01 --to 2026-03-07 --group-by app`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

var appsCmd = &cobra.Command{
	Use:   "apps [name]",
	Short: "Rank apps or sites by time, or list the sessions of one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runApps,
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "List events in chronological order",
	Args:  cobra.NoArgs,
	RunE:  runTimeline,
}

var productivityCmd = &cobra.Command{
	Use:   "productivity",
	Short: "Show the productivity score and its breakdown",
	Args:  cobra.NoArgs,
	RunE:  runProductivity,
}

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show active time per hour, day, week or month",
	Args:  cobra.NoArgs,
	RunE:  runTrends,
}

var focusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Show context switches, deep work blocks and top distractions",
	Args:  cobra.NoArgs,
	RunE:  runFocus,
}

var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Show the most recent activity",
	Args:  cobra.NoArgs,
	RunE:  runNow,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the category catalog",
	Args:  cobra.NoArgs,
	RunE:  runCategories,
}

func init() {
	summaryCmd.Flags().StringVarP(&summaryGroupBy, "group-by", "g", "category", "category, app or site")
	appsCmd.Flags().StringVar(&appsBy, "by", "app", "app or site")
	appsCmd.Flags().IntVarP(&appsLimit, "limit", "n", domain.DefaultAppLimit, "maximum rows")
	timelineCmd.Flags().IntVarP(&timelineLimit, "limit", "n", 50, "maximum events")
	timelineCmd.Flags().StringVar(&timelineCursor, "cursor", "", "resume after a previous page")
	trendsCmd.Flags().StringVarP(&trendsInterval, "interval", "i", "day", "hour, day, week or month")

	rootCmd.AddCommand(summaryCmd, appsCmd, timelineCmd, productivityCmd, trendsCmd, focusCmd, nowCmd, categoriesCmd)
}

func runSummary(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		s, err := svc.Summary(ctx, period(svc), domain.ParseGroupBy(summaryGroupBy))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, s)
		}
		w := cmd.OutOrStdout()
		heading(w, "Summary", s.PeriodFrom, s.PeriodTo)
		fmt.Fprintf(w, "Total active: %s\n", titleStyle.Render(s.TotalActive))
		if len(s.Groups) == 0 {
			fmt.Fprintln(w, dimStyle.Render("no activity recorded"))
			return nil
		}
		t := newTable("Name", "Time", "%", "")
		for _, g := range s.Groups {
			t.Row(swatch(g.Name, g.Color), g.Time, strconv.FormatFloat(g.Pct, 'f', 1, 64), bar(g.Pct, g.Color))
		}
		fmt.Fprintln(w, t.String())
		return nil
	})
}

func runApps(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		p := period(svc)
		if len(args) == 1 {
			sessions, err := svc.AppDetails(ctx, p, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, api.AppDetailsResponse{App: args[0], Sessions: api.NewEventViews(sessions)})
			}
			return renderEvents(cmd, sessions, svc.Location())
		}
		rows, err := svc.Apps(ctx, p, domain.ParseGroupBy(appsBy), appsLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, rows)
		}
		t := newTable("App", "Category", "Time", "%", "Events")
		for _, r := range rows {
			t.Row(truncate(r.App, 40), r.Category, r.Time, strconv.FormatFloat(r.Pct, 'f', 1, 64), strconv.FormatInt(r.Events, 10))
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return nil
	})
}

func runTimeline(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		after, err := persistence.DecodeCursor(timelineCursor)
		if err != nil {
			return err
		}
		events, next, err := svc.Timeline(ctx, period(svc), after, timelineLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, struct {
				Events     []api.EventView `json:"events"`
				NextCursor string          `json:"next_cursor,omitempty"`
			}{api.NewEventViews(events), persistence.EncodeCursor(next)})
		}
		if err := renderEvents(cmd, events, svc.Location()); err != nil {
			return err
		}
		if next != nil {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("more: --cursor "+persistence.EncodeCursor(next)))
		}
		return nil
	})
}

func renderEvents(cmd *cobra.Command, events []domain.EventView, loc *time.Location) error {
	t := newTable("Time", "Duration", "App", "Title", "Category")
	for _, e := range events {
		app := deref(e.App)
		if e.IsAFK {
			app += " (afk)"
		}
		t.Row(e.Timestamp.In(loc).Format("15:04:05"), domain.FormatDuration(e.Duration), app, truncate(deref(e.Title), 50), e.Category)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), t.String())
	return err
}

func runProductivity(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		p := period(svc)
		r, err := svc.Productivity(ctx, p)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, r)
		}
		w := cmd.OutOrStdout()
		heading(w, "Productivity", p.FromDate, p.ToDate)
		fmt.Fprintf(w, "Score: %s/100\n", scoreText(r.Score))
		t := newTable("", "Time")
		t.Row("productive", domain.FormatDuration(float64(r.Productive)))
		t.Row("neutral", domain.FormatDuration(float64(r.Neutral)))
		t.Row("distracting", domain.FormatDuration(float64(r.Distracting)))
		t.Row("total", domain.FormatDuration(float64(r.Total)))
		fmt.Fprintln(w, t.String())
		return nil
	})
}

func runTrends(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		buckets, err := svc.Trends(ctx, period(svc), domain.ParseInterval(trendsInterval))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, buckets)
		}
		t := newTable("Bucket", "Hours", "Score")
		for _, b := range buckets {
			t.Row(b.Bucket, strconv.FormatFloat(b.TotalHours, 'f', 1, 64), scoreText(b.Productivity))
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return nil
	})
}

func runFocus(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		r, err := svc.Focus(ctx, period(svc))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, r)
		}
		w := cmd.OutOrStdout()
		heading(w, "Focus", r.PeriodFrom, r.PeriodTo)
		fmt.Fprintf(w, "Score: %s/100  active %s  switches %d (%.1f/h)  longest %.0fm\n",
			scoreText(r.FocusScore), r.TotalActiveTime, r.ContextSwitches, r.SwitchesPerHour, r.LongestFocusMinutes)
		if len(r.DeepWorkBlocks) > 0 {
			t := newTable("Start", "Length", "Category", "Apps")
			for _, b := range r.DeepWorkBlocks {
				t.Row(b.Start.In(svc.Location()).Format("15:04"), b.DurationTime, b.Category, truncate(fmt.Sprint(b.Apps), 40))
			}
			fmt.Fprintln(w, t.String())
		}
		if len(r.TopDistractions) > 0 {
			t := newTable("Distraction", "Switches", "Time")
			for _, d := range r.TopDistractions {
				t.Row(d.App, strconv.Itoa(d.SwitchesTo), domain.FormatDuration(d.TotalSeconds))
			}
			fmt.Fprintln(w, t.String())
		}
		return nil
	})
}

func runNow(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		cur, err := svc.Current(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, cur)
		}
		w := cmd.OutOrStdout()
		if cur == nil {
			fmt.Fprintln(w, dimStyle.Render("no activity recorded"))
			return nil
		}
		state := "active"
		if cur.IsAFK {
			state = "away"
		}
		fmt.Fprintf(w, "%s %s (%s, %s)\n", titleStyle.Render(deref(cur.App)), dimStyle.Render(deref(cur.Title)), cur.Category, state)
		fmt.Fprintf(w, "since %s for %s\n", cur.Since.In(svc.Location()).Format(time.Kitchen), domain.FormatDuration(cur.DurationSeconds))
		return nil
	})
}

func runCategories(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *domain.Service) error {
		cats, err := svc.ListCategories(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			out := make([]api.CategoryView, 0, len(cats))
			for _, c := range cats {
				out = append(out, api.NewCategoryView(c))
			}
			return printJSON(cmd, out)
		}
		t := newTable("ID", "Name", "Score")
		for _, c := range cats {
			t.Row(strconv.FormatInt(c.ID, 10), swatch(c.Name, c.Color), strconv.Itoa(c.ProductivityScore))
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		return nil
	})
}
