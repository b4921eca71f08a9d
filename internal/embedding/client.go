// Package embedding wraps the embedding provider API with caching,
// retry, and the packed-BLOB vector representation used across the
// store layer.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"openclaw/internal/clawerr"
	"openclaw/internal/credentials"
	"openclaw/internal/logging"
	"openclaw/internal/observability"
	"openclaw/internal/usage"
)

// Generator is the minimal embedding surface consumed by the stores and
// the session indexer. Tests substitute a deterministic stub.
type Generator interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// modelDimensions maps known embedding models to their vector size.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// Dimensions returns the vector size for a known model, or 0.
func Dimensions(model string) int {
	return modelDimensions[model]
}

const maxRetries = 3

// Client calls an OpenAI-compatible /embeddings endpoint. Results are
// cached by content hash so re-indexing unchanged text costs nothing.
type Client struct {
	provider string
	model    string
	baseURL  string
	creds    *credentials.Service
	http     *http.Client
	cache    *lru.Cache[string, []float32]
	usage    *usage.Recorder
	metrics  *observability.Metrics
	logger   logging.Logger
}

// Options configures optional client collaborators.
type Options struct {
	Usage   *usage.Recorder
	Metrics *observability.Metrics
	Logger  logging.Logger
}

// NewClient builds an embedding client. cacheSize <= 0 disables caching.
func NewClient(provider, model, baseURL string, timeout time.Duration, cacheSize int,
	creds *credentials.Service, opts Options) (*Client, error) {

	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var cache *lru.Cache[string, []float32]
	if cacheSize > 0 {
		var err error
		cache, err = lru.New[string, []float32](cacheSize)
		if err != nil {
			return nil, err
		}
	}
	return &Client{
		provider: provider,
		model:    model,
		baseURL:  baseURL,
		creds:    creds,
		http:     &http.Client{Timeout: timeout},
		cache:    cache,
		usage:    opts.Usage,
		metrics:  opts.Metrics,
		logger:   logging.OrNop(opts.Logger),
	}, nil
}

// Model returns the configured embedding model name.
func (c *Client) Model() string { return c.model }

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Generate embeds a single text. Cached results are returned without a
// provider call.
func (c *Client) Generate(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.GenerateBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GenerateBatch embeds texts, serving cache hits locally and sending only
// the misses to the provider in one request. Retryable provider failures
// are retried up to three times with exponential backoff.
func (c *Client) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if c.cache != nil {
			if vec, ok := c.cache.Get(cacheKey(c.model, text)); ok {
				results[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, tokens, err := c.embedWithRetry(ctx, missTexts)
	if err != nil {
		if c.metrics != nil {
			c.metrics.EmbeddingRequests.WithLabelValues(c.model, "error").Inc()
		}
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.EmbeddingRequests.WithLabelValues(c.model, "ok").Inc()
	}

	for j, idx := range missIdx {
		results[idx] = vecs[j]
		if c.cache != nil {
			c.cache.Add(cacheKey(c.model, missTexts[j]), vecs[j])
		}
	}

	if c.usage != nil {
		if err := c.usage.Record(ctx, usage.Record{
			Source:   "embedding",
			Model:    c.model,
			Provider: c.provider,
			TokensIn: tokens,
			TaskType: "embed",
		}); err != nil {
			c.logger.Warn("embedding usage record failed: %v", err)
		}
	}
	return results, nil
}

func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, int, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			c.logger.Debug("embedding retry %d after %s: %v", attempt, backoff, lastErr)
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
		}

		vecs, tokens, err := c.embed(ctx, texts)
		if err == nil {
			return vecs, tokens, nil
		}
		lastErr = err
		if !clawerr.IsRetryable(err) {
			return nil, 0, err
		}
	}
	return nil, 0, lastErr
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	apiKey, err := c.creds.Require(c.provider)
	if err != nil {
		return nil, 0, err
	}

	payload := map[string]any{
		"model": c.model,
		"input": texts,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, 0, &clawerr.TimeoutError{Provider: c.provider, Err: err}
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, 0, &clawerr.TimeoutError{Provider: c.provider, Err: err}
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, 0, &clawerr.ProviderHTTPError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	var decoded struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Usage struct {
			PromptTokens int `json:"prompt_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, 0, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, 0, fmt.Errorf("embedding response returned %d vectors for %d inputs", len(decoded.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, 0, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, decoded.Usage.PromptTokens, nil
}
