package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"openclaw/internal/sessionrag"
)

func newSessionMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session-memory",
		Short: "Transcript indexing and search",
	}
	cmd.AddCommand(
		sessionIndexCmd(),
		sessionSearchCmd(),
		sessionStatusCmd(),
		sessionHealthCmd(),
	)
	return cmd
}

func sessionIndexCmd() *cobra.Command {
	var onlyNew bool
	var session string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index transcript files",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			if session != "" {
				path := filepath.Join(rt.cfg.TranscriptsDir, session+".jsonl")
				res := rt.indexer.IndexFile(ctx, path, false)
				printIndexResult(res)
				return res.Err
			}

			results, err := rt.indexer.IndexAll(ctx, onlyNew)
			if err != nil {
				return err
			}
			for _, res := range results {
				printIndexResult(res)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&onlyNew, "new", false, "index new files only, skip changed ones")
	cmd.Flags().StringVar(&session, "session", "", "index a single session id")
	return cmd
}

func printIndexResult(res sessionrag.FileResult) {
	switch res.Action {
	case "failed":
		fmt.Printf("%s %s: %v\n", red("failed"), res.SessionID, res.Err)
	case "skipped":
		fmt.Printf("%s %s\n", gray("skipped"), res.SessionID)
	default:
		fmt.Printf("%s %s (%d chunks)\n", green(res.Action), res.SessionID, res.Chunks)
	}
}

func sessionSearchCmd() *cobra.Command {
	var mode, session, tag string
	var decisions, actions bool
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed sessions",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			filter := sessionrag.SearchFilter{
				SessionID: session, Tag: tag,
				HasDecision: decisions, HasAction: actions,
			}

			var results []sessionrag.SearchResult
			var err error
			switch mode {
			case "vector":
				results, err = rt.searcher.VectorSearch(ctx, args[0], limit, filter)
			case "keyword":
				results, err = rt.searcher.KeywordSearch(ctx, args[0], limit, filter)
			case "hybrid":
				results, err = rt.searcher.HybridSearch(ctx, args[0], limit, filter)
			default:
				return fmt.Errorf("unknown mode %q, want vector|keyword|hybrid", mode)
			}
			if err != nil {
				return err
			}

			for _, r := range results {
				fmt.Printf("%s %s#%d %s\n", gray(fmt.Sprintf("%.3f", r.Score)),
					cyan(r.SessionID), r.ChunkIndex, flags(r))
				if r.ContextPrefix != "" {
					fmt.Println("  " + yellow(r.ContextPrefix))
				}
				fmt.Println("  " + truncate(r.Content, 240))
			}
			if len(results) == 0 {
				fmt.Println(gray("no matches"))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&mode, "mode", "hybrid", "search mode (vector|keyword|hybrid)")
	cmd.Flags().StringVar(&session, "session", "", "restrict to one session")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by topic tag")
	cmd.Flags().BoolVar(&decisions, "decisions", false, "only chunks with decisions")
	cmd.Flags().BoolVar(&actions, "actions", false, "only chunks with action items")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func flags(r sessionrag.SearchResult) string {
	out := ""
	if r.HasDecision {
		out += green("[decision]")
	}
	if r.HasAction {
		out += yellow("[action]")
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sessionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-session index state",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			statuses, err := rt.indexer.StatusAll(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := green(string(s.Status))
				if s.Status != "complete" {
					state = yellow(string(s.Status))
				}
				fmt.Printf("%-10s %-30s %4d chunks\n", state, s.SessionID, s.ChunkCount)
			}
			if len(statuses) == 0 {
				fmt.Println(gray("no sessions tracked"))
			}
			return nil
		}),
	}
}

func sessionHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check session index health",
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			h, err := sessionrag.CheckHealth(ctx, rt.db.Handle())
			if err != nil {
				return err
			}
			state := green(string(h.State))
			switch h.State {
			case sessionrag.HealthDegraded:
				state = yellow(string(h.State))
			case sessionrag.HealthError:
				state = red(string(h.State))
			}
			fmt.Printf("%s  sessions=%d (complete=%d partial=%d failed=%d)\n",
				state, h.SessionsTracked, h.SessionsComplete, h.SessionsPartial, h.SessionsFailed)
			fmt.Printf("chunks=%d embedded=%d context_failed=%d context_pending=%d\n",
				h.TotalChunks, h.EmbeddedChunks, h.ContextFailed, h.ContextPending)
			return nil
		}),
	}
}
