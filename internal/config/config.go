// Package config loads runtime configuration from defaults, an optional
// config file under $HOME/.openclaw, and OPENCLAW_* environment variables.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the fully resolved runtime configuration. Subsystems receive
// the typed sub-structs; viper never leaks past this package.
type Config struct {
	// DBPath is the SQLite database file. Overridden by OPENCLAW_DB.
	DBPath string

	// SecretsDir holds credentials.json and per-service token files.
	SecretsDir string

	// TranscriptsDir holds newline-delimited session transcript files.
	TranscriptsDir string

	Embedding EmbeddingConfig
	Router    RouterConfig
	Indexer   IndexerConfig
}

// EmbeddingConfig configures the embedding client.
type EmbeddingConfig struct {
	Provider       string
	Model          string
	BaseURL        string
	TimeoutSeconds int
	CacheSize      int
}

// RouterConfig configures the model router.
type RouterConfig struct {
	// Routes maps task type to provider name.
	Routes map[string]string
	// Fallbacks maps provider name to its ordered fallback chain.
	Fallbacks map[string][]string
	// TimeoutSeconds applies per provider completion call.
	TimeoutSeconds int
}

// IndexerConfig configures the session transcript indexer.
type IndexerConfig struct {
	MaxChunkTokens      int
	MaxChunksPerSession int
	BatchSize           int
	QuarantineThreshold int
}

// Load resolves configuration. The optional file is
// $HOME/.openclaw/config.yaml; environment variables use the OPENCLAW_
// prefix (OPENCLAW_DB keeps its historical unprefixed key handling).
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	base := filepath.Join(home, ".openclaw")

	v := viper.New()
	v.SetDefault("db_path", filepath.Join(base, "data", "agent.db"))
	v.SetDefault("secrets_dir", filepath.Join(base, "secrets"))
	v.SetDefault("transcripts_dir", filepath.Join(base, "sessions"))

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.timeout_seconds", 15)
	v.SetDefault("embedding.cache_size", 10000)

	v.SetDefault("router.timeout_seconds", 60)
	v.SetDefault("router.routes", map[string]string{
		"summarize": "gemini",
		"research":  "gemini",
		"extract":   "gemini",
		"translate": "gemini",
		"code":      "deepseek",
		"debug":     "deepseek",
		"refactor":  "deepseek",
		"test":      "deepseek",
		"default":   "deepseek",
	})
	v.SetDefault("router.fallbacks", map[string][]string{
		"gemini":   {"deepseek"},
		"deepseek": {"gemini"},
	})

	v.SetDefault("indexer.max_chunk_tokens", 500)
	v.SetDefault("indexer.max_chunks_per_session", 2000)
	v.SetDefault("indexer.batch_size", 100)
	v.SetDefault("indexer.quarantine_threshold", 20)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(base)
	v.SetEnvPrefix("OPENCLAW")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{
		DBPath:         v.GetString("db_path"),
		SecretsDir:     v.GetString("secrets_dir"),
		TranscriptsDir: v.GetString("transcripts_dir"),
		Embedding: EmbeddingConfig{
			Provider:       v.GetString("embedding.provider"),
			Model:          v.GetString("embedding.model"),
			BaseURL:        v.GetString("embedding.base_url"),
			TimeoutSeconds: v.GetInt("embedding.timeout_seconds"),
			CacheSize:      v.GetInt("embedding.cache_size"),
		},
		Router: RouterConfig{
			Routes:         v.GetStringMapString("router.routes"),
			Fallbacks:      v.GetStringMapStringSlice("router.fallbacks"),
			TimeoutSeconds: v.GetInt("router.timeout_seconds"),
		},
		Indexer: IndexerConfig{
			MaxChunkTokens:      v.GetInt("indexer.max_chunk_tokens"),
			MaxChunksPerSession: v.GetInt("indexer.max_chunks_per_session"),
			BatchSize:           v.GetInt("indexer.batch_size"),
			QuarantineThreshold: v.GetInt("indexer.quarantine_threshold"),
		},
	}

	// OPENCLAW_DB is the documented override for the database location.
	if db := os.Getenv("OPENCLAW_DB"); db != "" {
		cfg.DBPath = db
	}

	return cfg, nil
}
