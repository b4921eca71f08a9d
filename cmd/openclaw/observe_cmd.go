package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newObserveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observe",
		Short: "Behavioural self-observation",
	}
	cmd.AddCommand(
		observeCaptureCmd(),
		observeSynthesizeCmd(),
		observeListCmd(),
		observeFeedbackCmd(),
	)
	return cmd
}

func observeCaptureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capture <action> <description>",
		Short: "Record one behavioural signal",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			if err := rt.observer.Capture(ctx, args[0], args[1], nil); err != nil {
				return err
			}
			fmt.Printf("%s signal captured\n", green("ok:"))
			return nil
		}),
	}
}

func observeSynthesizeCmd() *cobra.Command {
	var week string
	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Synthesise the week's signals into observations",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			weekStart := time.Now()
			if week != "" {
				var err error
				if weekStart, err = time.Parse("2006-01-02", week); err != nil {
					return fmt.Errorf("invalid week %q, want YYYY-MM-DD", week)
				}
			}
			observations, err := rt.observer.Synthesize(ctx, weekStart)
			if err != nil {
				return err
			}
			for _, obs := range observations {
				printObservation(obs.ID, string(obs.Category), obs.Confidence, obs.Observation, "")
			}
			if len(observations) == 0 {
				fmt.Println(gray("not enough signals this week"))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&week, "week", "", "any day inside the target week (YYYY-MM-DD), default now")
	return cmd
}

func printObservation(id int64, category string, confidence float64, text, feedback string) {
	verdict := ""
	switch feedback {
	case "useful":
		verdict = " " + green("[useful]")
	case "not_useful":
		verdict = " " + red("[not useful]")
	}
	fmt.Printf("%s %-18s %s %s%s\n", bold(fmt.Sprintf("#%-3d", id)), cyan(category),
		gray(fmt.Sprintf("%.2f", confidence)), text, verdict)
}

func observeListCmd() *cobra.Command {
	var week string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List synthesised observations",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			var weekStart time.Time
			if week != "" {
				var err error
				if weekStart, err = time.Parse("2006-01-02", week); err != nil {
					return fmt.Errorf("invalid week %q, want YYYY-MM-DD", week)
				}
			}
			observations, err := rt.observer.List(ctx, weekStart)
			if err != nil {
				return err
			}
			for _, obs := range observations {
				printObservation(obs.ID, string(obs.Category), obs.Confidence, obs.Observation, obs.Feedback)
			}
			if len(observations) == 0 {
				fmt.Println(gray("no observations yet"))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&week, "week", "", "restrict to one week (YYYY-MM-DD), default all")
	return cmd
}

func observeFeedbackCmd() *cobra.Command {
	var useful bool
	var note string
	cmd := &cobra.Command{
		Use:   "feedback <id>",
		Short: "Confirm or reject an observation",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := rt.observer.SetFeedback(ctx, id, useful, note); err != nil {
				return err
			}
			if useful {
				fmt.Printf("%s observation #%d promoted to memory\n", green("ok:"), id)
			} else {
				fmt.Printf("%s observation #%d marked not useful\n", green("ok:"), id)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&useful, "useful", false, "mark the observation useful")
	cmd.Flags().StringVar(&note, "note", "", "optional feedback note")
	return cmd
}
