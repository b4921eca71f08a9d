package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"openclaw/internal/pipeline"
	"openclaw/internal/types"
)

func newPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage development work items",
	}
	cmd.AddCommand(
		pipelineCreateCmd(),
		pipelineMoveCmd(),
		pipelineApproveCmd(),
		pipelineShowCmd(),
		pipelineListCmd(),
		pipelineBoardCmd(),
		pipelineNoteCmd(),
	)
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func pipelineCreateCmd() *cobra.Command {
	var itemType, parent string
	var priority int
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a work item",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			in := pipeline.CreateInput{
				Type:     types.ItemType(itemType),
				Title:    args[0],
				Priority: priority,
			}
			if parent != "" {
				parentID, err := parseID(parent)
				if err != nil {
					return err
				}
				in.ParentID = &parentID
			}
			id, err := rt.pipeline.Create(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("%s created %s %s\n", green("ok:"), itemType, bold(fmt.Sprintf("#%d", id)))
			return nil
		}),
	}
	cmd.Flags().StringVar(&itemType, "type", "feature", "item type (feature|story|risk|issue|assumption|dependency)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent feature id (stories only)")
	cmd.Flags().IntVar(&priority, "priority", 2, "priority 1-4")
	return cmd
}

func pipelineMoveCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "move <id> <stage>",
		Short: "Move a work item to a new stage",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := rt.pipeline.UpdateStage(ctx, id, args[1], source); err != nil {
				return err
			}
			fmt.Printf("%s #%d -> %s\n", green("ok:"), id, cyan(args[1]))
			return nil
		}),
	}
	cmd.Flags().StringVar(&source, "source", "main", "who is making the change (session or agent label)")
	return cmd
}

func pipelineApproveCmd() *cobra.Command {
	var by, source string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a feature spec and start building",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := rt.pipeline.Approve(ctx, id, by, source); err != nil {
				return err
			}
			fmt.Printf("%s feature #%d approved, now %s\n", green("ok:"), id, cyan("building"))
			return nil
		}),
	}
	cmd.Flags().StringVar(&by, "by", "operator", "approver name")
	cmd.Flags().StringVar(&source, "source", "main", "who is making the change (session or agent label)")
	return cmd
}

func pipelineShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a work item with its tasks and notes",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			item, err := rt.pipeline.Get(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s [%s] %s\n", bold(fmt.Sprintf("#%d", item.ID)),
				item.Title, item.Type, cyan(item.Stage))
			if item.Description != "" {
				fmt.Println(gray(item.Description))
			}
			for _, c := range item.AcceptanceCriteria {
				fmt.Printf("  %s %s\n", gray("criterion:"), c)
			}

			tasks, err := rt.pipeline.Tasks(ctx, id)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				marker := " "
				if t.Status == types.PipelineTaskDone {
					marker = green("x")
				}
				fmt.Printf("  [%s] %s\n", marker, t.Title)
			}

			notes, err := rt.pipeline.Notes(ctx, id)
			if err != nil {
				return err
			}
			for _, n := range notes {
				fmt.Printf("  %s %s: %s\n", gray(n.CreatedAt.Format("01-02 15:04")),
					yellow(string(n.NoteType)), n.Content)
			}
			return nil
		}),
	}
}

func pipelineListCmd() *cobra.Command {
	var itemType, stage string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open work items",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			items, err := rt.pipeline.List(ctx, pipeline.ListFilter{
				Type: types.ItemType(itemType), Stage: stage, IncludeFinished: all})
			if err != nil {
				return err
			}
			for _, item := range items {
				fmt.Printf("%s %-10s %-14s %s\n", bold(fmt.Sprintf("#%-4d", item.ID)),
					item.Type, cyan(item.Stage), item.Title)
			}
			if len(items) == 0 {
				fmt.Println(gray("no open items"))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&itemType, "type", "", "filter by item type")
	cmd.Flags().StringVar(&stage, "stage", "", "filter by stage")
	cmd.Flags().BoolVar(&all, "all", false, "include done and live items")
	return cmd
}

func pipelineBoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board <feature-id>",
		Short: "Show a feature's story board",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			feat, err := rt.pipeline.Get(ctx, id)
			if err != nil {
				return err
			}
			stats, err := rt.pipeline.StoryStats(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s [%s]  stories: %d/%d done\n",
				bold(fmt.Sprintf("#%d", feat.ID)), feat.Title, cyan(feat.Stage),
				stats.Done, stats.Total)

			children, err := rt.pipeline.Children(ctx, id)
			if err != nil {
				return err
			}
			for _, stage := range types.ValidStages(types.ItemStory) {
				printed := false
				for _, c := range children {
					if c.Stage != stage {
						continue
					}
					if !printed {
						fmt.Println(yellow(stage))
						printed = true
					}
					fmt.Printf("  #%-4d %s\n", c.ID, c.Title)
				}
			}
			return nil
		}),
	}
}

func pipelineNoteCmd() *cobra.Command {
	var role, noteType string
	cmd := &cobra.Command{
		Use:   "note <id> <content>",
		Short: "Append a note to a work item",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := rt.pipeline.AddNote(ctx, id, role, types.NoteType(noteType), args[1]); err != nil {
				return err
			}
			fmt.Printf("%s note added to #%d\n", green("ok:"), id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&role, "role", "operator", "author role")
	cmd.Flags().StringVar(&noteType, "kind", "info", "note type (handover|blocker|question|decision|info|started|progress|complete)")
	return cmd
}
