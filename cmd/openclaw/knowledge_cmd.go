package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"openclaw/internal/knowledge"
	"openclaw/internal/types"
)

func newKnowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Curated research cache",
	}
	cmd.AddCommand(
		knowledgeAddCmd(),
		knowledgeSearchCmd(),
		knowledgeSemanticCmd(),
		knowledgeListCmd(),
		knowledgeVerifyCmd(),
		knowledgeSupersedeCmd(),
		knowledgeStatsCmd(),
	)
	return cmd
}

func knowledgeAddCmd() *cobra.Command {
	var source, url, tags string
	var confidence, importance float64
	cmd := &cobra.Command{
		Use:   "add <title> <summary>",
		Short: "Cache a knowledge entry",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			entry := knowledge.Entry{
				Title:      args[0],
				Summary:    args[1],
				SourceType: types.KnowledgeSource(source),
				SourceURL:  url,
				Confidence: confidence,
				Importance: importance,
			}
			if tags != "" {
				entry.TopicTags = strings.Split(tags, ",")
			}
			id, err := rt.know.Add(ctx, entry, false)
			if err != nil {
				return err
			}
			fmt.Printf("%s knowledge #%d cached\n", green("ok:"), id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&source, "source", "manual", "source type (research|web|conversation|manual)")
	cmd.Flags().StringVar(&url, "url", "", "source URL")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated topic tags")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.5, "confidence in [0,1]")
	cmd.Flags().Float64Var(&importance, "importance", 0.5, "importance in [0,1]")
	return cmd
}

func printKnowledgeMatch(m knowledge.Match) {
	marker := " "
	if m.Verified {
		marker = green("v")
	}
	fmt.Printf("%s [%s] %s %s\n", gray(fmt.Sprintf("%7.3f", m.Score)),
		marker, bold(fmt.Sprintf("#%d", m.ID)), m.Title)
	fmt.Println("  " + truncate(m.Summary, 200))
}

func knowledgeSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Keyword search over the cache",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			matches, err := rt.know.Search(ctx, args[0], limit)
			if err != nil {
				return err
			}
			for _, m := range matches {
				printKnowledgeMatch(m)
			}
			if len(matches) == 0 {
				fmt.Println(gray("no matches"))
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func knowledgeSemanticCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "semantic-search <query>",
		Short: "Search the cache by meaning",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			matches, err := rt.know.SemanticSearch(ctx, args[0], limit)
			if err != nil {
				return err
			}
			for _, m := range matches {
				printKnowledgeMatch(m)
			}
			if len(matches) == 0 {
				fmt.Println(gray("no matches above the similarity threshold"))
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func knowledgeListCmd() *cobra.Command {
	var source string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List current entries",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			entries, err := rt.know.List(ctx, types.KnowledgeSource(source), limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				marker := " "
				if e.Verified {
					marker = green("v")
				}
				fmt.Printf("[%s] %s %-12s %s\n", marker, bold(fmt.Sprintf("#%-4d", e.ID)),
					cyan(string(e.SourceType)), e.Title)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&source, "source", "", "filter by source type")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	return cmd
}

func knowledgeVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "Mark an entry verified",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := rt.know.Verify(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s knowledge #%d verified\n", green("ok:"), id)
			return nil
		}),
	}
}

func knowledgeSupersedeCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "supersede <old-id> <title> <summary>",
		Short: "Replace an entry with updated knowledge",
		Args:  cobra.ExactArgs(3),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			oldID, err := parseID(args[0])
			if err != nil {
				return err
			}
			newID, err := rt.know.Supersede(ctx, oldID, knowledge.Entry{
				Title:      args[1],
				Summary:    args[2],
				SourceType: types.KnowledgeSource(source),
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s #%d superseded by #%d\n", green("ok:"), oldID, newID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&source, "source", "manual", "source type for the replacement")
	return cmd
}

func knowledgeStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			stats, err := rt.know.GetStats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("total=%d verified=%d superseded=%d expired=%d embedded=%d\n",
				stats.Total, stats.Verified, stats.Superseded, stats.Expired, stats.Embedded)
			sources := make([]string, 0, len(stats.BySource))
			for s := range stats.BySource {
				sources = append(sources, s)
			}
			sort.Strings(sources)
			for _, s := range sources {
				fmt.Printf("  %-14s %d\n", cyan(s), stats.BySource[s])
			}
			return nil
		}),
	}
}
