package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"openclaw/internal/activity"
)

func newActivityCmd() *cobra.Command {
	var category, action, search, since, until string
	var limit int
	var stats, digest bool
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Query the activity stream",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			filter := activity.Filter{Category: category, Action: action, Search: search}
			var err error
			if filter.Since, err = parseTimeFlag(since); err != nil {
				return err
			}
			if filter.Until, err = parseTimeFlag(until); err != nil {
				return err
			}

			if stats {
				return printActivityStats(ctx, rt, filter.Since)
			}
			if digest {
				return printActivityDigest(ctx, rt, filter.Since, limit)
			}

			entries, err := rt.activity.Recent(ctx, limit, filter)
			if err != nil {
				return err
			}
			for _, e := range entries {
				related := ""
				if e.RelatedID != "" {
					related = " " + gray("("+e.RelatedID+")")
				}
				fmt.Printf("%s %-28s %s%s\n",
					gray(e.CreatedAt.Format("01-02 15:04")),
					cyan(e.Action), e.Description, related)
			}
			if len(entries) == 0 {
				fmt.Println(gray("no matching activity"))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&action, "action", "", "filter by action")
	cmd.Flags().StringVar(&search, "search", "", "substring match on action and description")
	cmd.Flags().StringVar(&since, "since", "", "start time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "end time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	cmd.Flags().BoolVar(&stats, "stats", false, "show per-category counts instead of entries")
	cmd.Flags().BoolVar(&digest, "digest", false, "show the newest entry per distinct action")
	return cmd
}

func printActivityStats(ctx context.Context, rt *runtime, since time.Time) error {
	if since.IsZero() {
		since = time.Now().AddDate(0, 0, -7)
	}
	stats, err := rt.activity.Stats(ctx, since)
	if err != nil {
		return err
	}
	categories := make([]string, 0, len(stats))
	for c := range stats {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Printf("%-24s %d\n", cyan(c), stats[c])
	}
	if len(stats) == 0 {
		fmt.Println(gray("no activity in the period"))
	}
	return nil
}

func printActivityDigest(ctx context.Context, rt *runtime, since time.Time, limit int) error {
	if since.IsZero() {
		since = time.Now().AddDate(0, 0, -7)
	}
	entries, err := rt.activity.Digest(ctx, since, limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s %-28s %s\n",
			gray(e.CreatedAt.Format("01-02 15:04")), cyan(e.Action), e.Description)
	}
	if len(entries) == 0 {
		fmt.Println(gray("no activity in the period"))
	}
	return nil
}

// parseTimeFlag accepts RFC3339 or a bare date.
func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q, want RFC3339 or YYYY-MM-DD", s)
}
