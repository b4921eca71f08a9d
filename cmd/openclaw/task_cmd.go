package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"openclaw/internal/store"
	"openclaw/internal/types"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Operator tasks and projects",
	}
	cmd.AddCommand(
		taskAddCmd(),
		taskListCmd(),
		taskDoneCmd(),
		taskUpdateCmd(),
		taskDeleteCmd(),
		taskProjectCmd(),
	)
	return cmd
}

func taskAddCmd() *cobra.Command {
	var priority int
	var project int64
	var due, tags string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			in := store.TaskInput{Title: &args[0], Priority: &priority}
			if project != 0 {
				in.ProjectID = &project
			}
			if due != "" {
				t, err := parseTimeFlag(due)
				if err != nil {
					return err
				}
				in.DueDate = &t
			}
			if tags != "" {
				in.Tags = strings.Split(tags, ",")
			}
			id, err := rt.store.CreateTask(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("%s task #%d created\n", green("ok:"), id)
			return nil
		}),
	}
	cmd.Flags().IntVar(&priority, "priority", 2, "priority 1-4 (1 highest)")
	cmd.Flags().Int64Var(&project, "project", 0, "project id")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, tag, dueBefore string
	var project int64
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			filter := store.TaskFilter{
				Status:    types.TaskStatus(status),
				ProjectID: project,
				Tag:       tag,
				Limit:     limit,
			}
			if dueBefore != "" {
				t, err := parseTimeFlag(dueBefore)
				if err != nil {
					return err
				}
				filter.DueBefore = &t
			}
			tasks, err := rt.store.ListTasks(ctx, filter)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Println(formatTask(t))
			}
			if len(tasks) == 0 {
				fmt.Println(gray("no matching tasks"))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (todo|in_progress|blocked|done|cancelled)")
	cmd.Flags().Int64Var(&project, "project", 0, "filter by project id")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by tag")
	cmd.Flags().StringVar(&dueBefore, "due-before", "", "due before this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum tasks")
	return cmd
}

func formatTask(t store.Task) string {
	marker := " "
	switch t.Status {
	case types.TaskDone:
		marker = green("x")
	case types.TaskBlocked:
		marker = red("!")
	case types.TaskInProgress:
		marker = yellow(">")
	}
	due := ""
	if t.DueDate != nil {
		due = " " + gray("due "+t.DueDate.Format("2006-01-02"))
	}
	tags := ""
	if len(t.Tags) > 0 {
		tags = " " + cyan("#"+strings.Join(t.Tags, " #"))
	}
	return fmt.Sprintf("[%s] %s P%d %s%s%s", marker,
		bold(fmt.Sprintf("#%-4d", t.ID)), t.Priority, t.Title, due, tags)
}

func taskDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			done := types.TaskDone
			if err := rt.store.UpdateTask(ctx, id, store.TaskInput{Status: &done}); err != nil {
				return err
			}
			fmt.Printf("%s task #%d done\n", green("ok:"), id)
			return nil
		}),
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, status, due string
	var priority int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var in store.TaskInput
			if cmd.Flags().Changed("title") {
				in.Title = &title
			}
			if cmd.Flags().Changed("status") {
				s := types.TaskStatus(status)
				in.Status = &s
			}
			if cmd.Flags().Changed("priority") {
				in.Priority = &priority
			}
			if cmd.Flags().Changed("due") {
				t, err := parseTimeFlag(due)
				if err != nil {
					return err
				}
				in.DueDate = &t
			}
			if err := rt.store.UpdateTask(ctx, id, in); err != nil {
				return err
			}
			fmt.Printf("%s task #%d updated\n", green("ok:"), id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().IntVar(&priority, "priority", 0, "new priority 1-4")
	cmd.Flags().StringVar(&due, "due", "", "new due date (RFC3339 or YYYY-MM-DD)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := rt.store.DeleteTask(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s task #%d deleted\n", green("ok:"), id)
			return nil
		}),
	}
}

func taskProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := rt.store.CreateProject(ctx, args[0], description)
			if err != nil {
				return err
			}
			fmt.Printf("%s project #%d created\n", green("ok:"), id)
			return nil
		}),
	}
	create.Flags().StringVar(&description, "description", "", "project description")

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			projects, err := rt.store.ListProjects(ctx, types.ProjectStatus(status))
			if err != nil {
				return err
			}
			for _, p := range projects {
				fmt.Printf("%s %-10s %s\n", bold(fmt.Sprintf("#%-4d", p.ID)),
					cyan(string(p.Status)), p.Name)
			}
			return nil
		}),
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")

	cmd.AddCommand(create, list)
	return cmd
}
