package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"openclaw/internal/store"
	"openclaw/internal/types"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Long-term memory",
	}
	cmd.AddCommand(memoryAddCmd(), memorySearchCmd(), memoryListCmd())
	return cmd
}

func memoryAddCmd() *cobra.Command {
	var category, subject string
	var importance int
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Store a memory",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := rt.store.AddMemory(ctx, store.MemoryInput{
				Category:   types.MemoryCategory(category),
				Subject:    subject,
				Content:    args[0],
				Importance: importance,
				Source:     "cli",
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s memory #%d stored\n", green("ok:"), id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&category, "category", "fact", "memory category")
	cmd.Flags().StringVar(&subject, "subject", "", "who or what this is about")
	cmd.Flags().IntVar(&importance, "importance", 5, "importance 1-10")
	return cmd
}

func memorySearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "semantic-search <query>",
		Short: "Search memories by meaning",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			matches, err := rt.store.SemanticSearch(ctx, args[0], limit)
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Printf("%s %s [%s] %s\n", gray(fmt.Sprintf("%.2f", m.Score)),
					bold(fmt.Sprintf("#%d", m.ID)), m.Category, m.Content)
			}
			if len(matches) == 0 {
				fmt.Println(gray("no memories above the similarity threshold"))
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func memoryListCmd() *cobra.Command {
	var category string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			memories, err := rt.store.ListMemories(ctx, types.MemoryCategory(category), limit)
			if err != nil {
				return err
			}
			for _, m := range memories {
				fmt.Printf("%s [%s/%d] %s\n", bold(fmt.Sprintf("#%-4d", m.ID)),
					m.Category, m.Importance, m.Content)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	return cmd
}
