package llm

import (
	"context"
	"fmt"
	"time"

	"openclaw/internal/clawerr"
	"openclaw/internal/logging"
	"openclaw/internal/observability"
	"openclaw/internal/usage"
)

// RouteRequest carries one completion request through the router.
type RouteRequest struct {
	Type      TaskType // inferred from the prompt when empty
	Prompt    string
	Content   string
	Provider  string // forces a provider, bypassing the routing table
	Stream    bool
	SessionID string
	Source    string
}

// Result is a completed, costed routing outcome.
type Result struct {
	Text      string
	Provider  string
	Model     string
	TaskType  TaskType
	TokensIn  int
	TokensOut int
	CostUSD   float64
	LatencyMS int64
}

// Decision is a routing choice without execution, as returned by DryRun.
type Decision struct {
	TaskType TaskType
	Provider string
	Model    string
	Chain    []string
}

// Router selects a provider per task type, walks the fallback chain on
// retryable failures, and logs usage for every successful completion.
type Router struct {
	providers map[string]Provider
	routes    map[string]string
	fallbacks map[string][]string
	usage     *usage.Recorder
	metrics   *observability.Metrics
	logger    logging.Logger
}

// NewRouter builds a router over the given providers. The routes map is
// task type to provider name and must contain a "default" entry.
func NewRouter(providers []Provider, routes map[string]string, fallbacks map[string][]string,
	recorder *usage.Recorder, metrics *observability.Metrics, logger logging.Logger) *Router {

	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Router{
		providers: byName,
		routes:    routes,
		fallbacks: fallbacks,
		usage:     recorder,
		metrics:   metrics,
		logger:    logging.OrNop(logger),
	}
}

// decide resolves the task type and provider chain without executing.
func (r *Router) decide(req RouteRequest) (Decision, error) {
	taskType := req.Type
	if taskType == "" {
		taskType = InferTaskType(req.Prompt, req.Content)
	}

	name := req.Provider
	if name == "" {
		name = r.routes[string(taskType)]
	}
	if name == "" {
		name = r.routes["default"]
	}

	primary, ok := r.providers[name]
	if !ok {
		return Decision{}, clawerr.NewValidation("unknown provider %q", name)
	}

	chain := []string{name}
	for _, fb := range r.fallbacks[name] {
		if _, ok := r.providers[fb]; ok {
			chain = append(chain, fb)
		}
	}

	return Decision{
		TaskType: taskType,
		Provider: name,
		Model:    primary.Model(),
		Chain:    chain,
	}, nil
}

// DryRun returns the routing decision without calling any provider.
func (r *Router) DryRun(req RouteRequest) (Decision, error) {
	return r.decide(req)
}

// Complete routes and executes the request. Retryable failures (429/503,
// quota markers, timeouts) advance the fallback chain; the last error is
// surfaced when the chain is exhausted. Non-retryable errors are
// returned immediately.
func (r *Router) Complete(ctx context.Context, req RouteRequest) (*Result, error) {
	decision, err := r.decide(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, name := range decision.Chain {
		provider := r.providers[name]
		start := time.Now()

		resp, err := provider.Complete(ctx, Request{
			Prompt:  req.Prompt,
			Content: req.Content,
			Stream:  req.Stream,
		})
		latency := time.Since(start)

		if err != nil {
			if r.metrics != nil {
				r.metrics.RouterRequests.WithLabelValues(name, string(decision.TaskType), "error").Inc()
			}
			if clawerr.IsRetryable(err) {
				r.logger.Warn("provider %s failed (retryable), falling through: %v", name, err)
				lastErr = err
				continue
			}
			return nil, err
		}

		rates := provider.Cost()
		cost := (float64(resp.TokensIn)*rates.In + float64(resp.TokensOut)*rates.Out) / 1_000_000

		if r.metrics != nil {
			r.metrics.RouterRequests.WithLabelValues(name, string(decision.TaskType), "ok").Inc()
			r.metrics.RouterLatency.WithLabelValues(name).Observe(latency.Seconds())
		}

		if r.usage != nil {
			if err := r.usage.Record(ctx, usage.Record{
				SessionID: req.SessionID,
				Source:    req.Source,
				Model:     provider.Model(),
				Provider:  name,
				TokensIn:  resp.TokensIn,
				TokensOut: resp.TokensOut,
				CostUSD:   cost,
				TaskType:  string(decision.TaskType),
				LatencyMS: latency.Milliseconds(),
			}); err != nil {
				r.logger.Warn("usage record failed: %v", err)
			}
		}

		return &Result{
			Text:      resp.Text,
			Provider:  name,
			Model:     provider.Model(),
			TaskType:  decision.TaskType,
			TokensIn:  resp.TokensIn,
			TokensOut: resp.TokensOut,
			CostUSD:   cost,
			LatencyMS: latency.Milliseconds(),
		}, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no providers available for task %s", decision.TaskType)
}
