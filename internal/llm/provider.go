// Package llm implements the model router: task-type inference,
// provider selection with fallback chains, and per-request cost logging.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"openclaw/internal/clawerr"
	"openclaw/internal/credentials"
)

// Request is a single completion request.
type Request struct {
	Prompt  string
	Content string
	Stream  bool
}

// Response is the uniform completion result shape every provider adapter
// must produce.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// CostRates is the provider's pricing in USD per million tokens.
type CostRates struct {
	In  float64
	Out float64
}

// Provider is the router's view of one chat-completion backend.
type Provider interface {
	Name() string
	Model() string
	Cost() CostRates
	Complete(ctx context.Context, req Request) (*Response, error)
}

// HTTPProvider calls an OpenAI-compatible chat-completions endpoint with
// a bearer token resolved through the credential service at call time.
type HTTPProvider struct {
	name    string
	model   string
	baseURL string
	cost    CostRates
	creds   *credentials.Service
	client  *http.Client
}

// NewHTTPProvider creates a provider adapter. The credential is looked up
// under the provider name on every call so rotations take effect within
// the credential cache TTL.
func NewHTTPProvider(name, model, baseURL string, cost CostRates, creds *credentials.Service, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPProvider{
		name:    name,
		model:   model,
		baseURL: baseURL,
		cost:    cost,
		creds:   creds,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string    { return p.name }
func (p *HTTPProvider) Model() string   { return p.model }
func (p *HTTPProvider) Cost() CostRates { return p.cost }

// Complete sends the prompt (and optional content block) as a single user
// message and decodes the usage counters from the response.
func (p *HTTPProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	apiKey, err := p.creds.Require(p.name)
	if err != nil {
		return nil, err
	}

	message := req.Prompt
	if req.Content != "" {
		message = req.Prompt + "\n\n" + req.Content
	}

	payload := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "user", "content": message},
		},
		"stream": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &clawerr.TimeoutError{Provider: p.name, Err: err}
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &clawerr.TimeoutError{Provider: p.name, Err: err}
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &clawerr.ProviderHTTPError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.name, err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	return &Response{
		Text:      decoded.Choices[0].Message.Content,
		TokensIn:  decoded.Usage.PromptTokens,
		TokensOut: decoded.Usage.CompletionTokens,
	}, nil
}
