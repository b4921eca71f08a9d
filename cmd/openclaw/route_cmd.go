package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"openclaw/internal/llm"
)

func newRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Inspect and exercise model routing",
	}
	cmd.AddCommand(routeDryRunCmd(), routeCompleteCmd())
	return cmd
}

func routeDryRunCmd() *cobra.Command {
	var taskType, provider string
	cmd := &cobra.Command{
		Use:   "dry-run <prompt>",
		Short: "Show the routing decision without calling a provider",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			decision, err := rt.router.DryRun(llm.RouteRequest{
				Type:     llm.TaskType(taskType),
				Prompt:   args[0],
				Provider: provider,
			})
			if err != nil {
				return err
			}
			fmt.Printf("task_type: %s\n", cyan(string(decision.TaskType)))
			fmt.Printf("provider:  %s (%s)\n", bold(decision.Provider), decision.Model)
			fmt.Printf("chain:     %s\n", gray(strings.Join(decision.Chain, " -> ")))
			return nil
		}),
	}
	cmd.Flags().StringVar(&taskType, "type", "", "force a task type instead of inferring it")
	cmd.Flags().StringVar(&provider, "provider", "", "force a provider, bypassing the routing table")
	return cmd
}

func routeCompleteCmd() *cobra.Command {
	var taskType, provider string
	cmd := &cobra.Command{
		Use:   "complete <prompt>",
		Short: "Route a prompt and run the completion",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error {
			result, err := rt.router.Complete(ctx, llm.RouteRequest{
				Type:     llm.TaskType(taskType),
				Prompt:   args[0],
				Provider: provider,
				Source:   "cli",
			})
			if err != nil {
				return err
			}
			fmt.Println(result.Text)
			fmt.Printf("%s %s/%s tokens=%d+%d cost=$%.6f latency=%dms\n",
				gray("--"), result.Provider, result.Model,
				result.TokensIn, result.TokensOut, result.CostUSD, result.LatencyMS)
			return nil
		}),
	}
	cmd.Flags().StringVar(&taskType, "type", "", "force a task type instead of inferring it")
	cmd.Flags().StringVar(&provider, "provider", "", "force a provider, bypassing the routing table")
	return cmd
}
