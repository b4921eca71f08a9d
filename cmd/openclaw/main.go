// Command openclaw is the operator CLI for the assistant runtime:
// pipeline management, activity queries, memory and knowledge search,
// session transcript indexing, and routing inspection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"openclaw/internal/activity"
	"openclaw/internal/clawerr"
	"openclaw/internal/config"
	"openclaw/internal/credentials"
	"openclaw/internal/embedding"
	"openclaw/internal/knowledge"
	"openclaw/internal/llm"
	"openclaw/internal/logging"
	"openclaw/internal/observability"
	"openclaw/internal/pipeline"
	"openclaw/internal/selfobs"
	"openclaw/internal/sessionrag"
	"openclaw/internal/storage"
	"openclaw/internal/store"
	"openclaw/internal/subagent"
	"openclaw/internal/usage"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// runtime is the wired service graph shared by all subcommands.
type runtime struct {
	cfg      *config.Config
	db       *storage.DB
	creds    *credentials.Service
	store    *store.Store
	activity *activity.Log
	pipeline *pipeline.Service
	know     *knowledge.Cache
	router   *llm.Router
	embedder *embedding.Client
	indexer  *sessionrag.Indexer
	searcher *sessionrag.Searcher
	observer *selfobs.Observer
	agents   *subagent.Orchestrator
	logger   logging.Logger
}

// providerCatalog maps provider names to their OpenAI-compatible
// endpoints, default models, and USD-per-million-token rates.
var providerCatalog = []struct {
	name    string
	model   string
	baseURL string
	cost    llm.CostRates
}{
	{"deepseek", "deepseek-chat", "https://api.deepseek.com/v1", llm.CostRates{In: 0.14, Out: 0.28}},
	{"gemini", "gemini-2.0-flash", "https://generativelanguage.googleapis.com/v1beta/openai", llm.CostRates{In: 0.10, Out: 0.40}},
	{"openai", "gpt-4o-mini", "https://api.openai.com/v1", llm.CostRates{In: 0.15, Out: 0.60}},
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.NewComponentLogger("cli")

	db, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	handle := db.Handle()

	creds := credentials.NewService(cfg.SecretsDir, logger)
	metrics := observability.NewMetrics()
	recorder := usage.NewRecorder(handle, logger)

	embedder, err := embedding.NewClient(
		cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.BaseURL,
		time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second,
		cfg.Embedding.CacheSize, creds,
		embedding.Options{Usage: recorder, Metrics: metrics, Logger: logger})
	if err != nil {
		db.Close()
		return nil, err
	}

	providers := make([]llm.Provider, 0, len(providerCatalog))
	timeout := time.Duration(cfg.Router.TimeoutSeconds) * time.Second
	for _, p := range providerCatalog {
		providers = append(providers,
			llm.NewHTTPProvider(p.name, p.model, p.baseURL, p.cost, creds, timeout))
	}
	router := llm.NewRouter(providers, cfg.Router.Routes, cfg.Router.Fallbacks,
		recorder, metrics, logger)

	log := activity.NewLog(handle, logger)
	st := store.New(handle, embedder, logger)

	rt := &runtime{
		cfg:      cfg,
		db:       db,
		creds:    creds,
		store:    st,
		activity: log,
		pipeline: pipeline.NewService(handle, log, logger),
		know:     knowledge.NewCache(handle, embedder, logger),
		router:   router,
		embedder: embedder,
		indexer: sessionrag.NewIndexer(handle, embedder,
			sessionrag.NewContextualizer(router, logger),
			sessionrag.IndexerConfig{
				TranscriptsDir:      cfg.TranscriptsDir,
				BatchSize:           cfg.Indexer.BatchSize,
				QuarantineThreshold: cfg.Indexer.QuarantineThreshold,
			}, log, metrics, logger),
		searcher: sessionrag.NewSearcher(handle, embedder, metrics, logger),
		observer: selfobs.NewObserver(handle, log, st, logger),
		agents:   subagent.NewOrchestrator(st, log, logger),
		logger:   logger,
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.db != nil {
		rt.db.Close()
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:           "openclaw",
		Short:         "Personal assistant runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newPipelineCmd(),
		newActivityCmd(),
		newMemoryCmd(),
		newSessionMemoryCmd(),
		newKnowledgeCmd(),
		newRouteCmd(),
		newObserveCmd(),
		newTaskCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("error: ")+err.Error())
		os.Exit(clawerr.ExitCode(err))
	}
}

// withRuntime wraps a command body with service wiring and teardown.
func withRuntime(fn func(ctx context.Context, rt *runtime, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()
		return fn(cmd.Context(), rt, cmd, args)
	}
}
