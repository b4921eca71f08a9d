package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openclaw/internal/clawerr"
)

type fakeProvider struct {
	name  string
	model string
	rates CostRates
	resp  *Response
	err   error
	calls int
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Model() string   { return f.model }
func (f *fakeProvider) Cost() CostRates { return f.rates }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func testRoutes() map[string]string {
	return map[string]string{
		"summarize": "gemini",
		"code":      "deepseek",
		"default":   "deepseek",
	}
}

func testFallbacks() map[string][]string {
	return map[string][]string{
		"gemini":   {"deepseek"},
		"deepseek": {"gemini"},
	}
}

func TestRouterRoutesByTaskType(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", model: "gemini-2.0-flash",
		resp: &Response{Text: "summary", TokensIn: 100, TokensOut: 20}}
	deepseek := &fakeProvider{name: "deepseek", model: "deepseek-chat",
		resp: &Response{Text: "code", TokensIn: 50, TokensOut: 80}}

	r := NewRouter([]Provider{gemini, deepseek}, testRoutes(), testFallbacks(), nil, nil, nil)

	res, err := r.Complete(context.Background(), RouteRequest{Prompt: "summarize this report"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", res.Provider)
	assert.Equal(t, TaskSummarize, res.TaskType)
	assert.Equal(t, 1, gemini.calls)
	assert.Equal(t, 0, deepseek.calls)
}

func TestRouterFallsBackOnRetryable(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", model: "gemini-2.0-flash",
		err: &clawerr.ProviderHTTPError{Provider: "gemini", StatusCode: 429, Body: "rate limit"}}
	deepseek := &fakeProvider{name: "deepseek", model: "deepseek-chat",
		resp: &Response{Text: "fallback answer", TokensIn: 10, TokensOut: 5}}

	r := NewRouter([]Provider{gemini, deepseek}, testRoutes(), testFallbacks(), nil, nil, nil)

	res, err := r.Complete(context.Background(), RouteRequest{Prompt: "summarize this"})
	require.NoError(t, err)
	assert.Equal(t, "deepseek", res.Provider)
	assert.Equal(t, "fallback answer", res.Text)
	assert.Equal(t, 1, gemini.calls)
	assert.Equal(t, 1, deepseek.calls)
}

func TestRouterDoesNotFallBackOnPermanentError(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", model: "gemini-2.0-flash",
		err: &clawerr.ProviderHTTPError{Provider: "gemini", StatusCode: 401, Body: "bad key"}}
	deepseek := &fakeProvider{name: "deepseek", model: "deepseek-chat",
		resp: &Response{Text: "should not run"}}

	r := NewRouter([]Provider{gemini, deepseek}, testRoutes(), testFallbacks(), nil, nil, nil)

	_, err := r.Complete(context.Background(), RouteRequest{Prompt: "summarize this"})
	require.Error(t, err)
	assert.Equal(t, 0, deepseek.calls)
}

func TestRouterChainExhausted(t *testing.T) {
	rateLimited := &clawerr.ProviderHTTPError{StatusCode: 503, Body: "overloaded"}
	gemini := &fakeProvider{name: "gemini", model: "g", err: rateLimited}
	deepseek := &fakeProvider{name: "deepseek", model: "d", err: rateLimited}

	r := NewRouter([]Provider{gemini, deepseek}, testRoutes(), testFallbacks(), nil, nil, nil)

	_, err := r.Complete(context.Background(), RouteRequest{Prompt: "summarize"})
	require.Error(t, err)
	assert.Equal(t, 1, gemini.calls)
	assert.Equal(t, 1, deepseek.calls)
}

func TestRouterForceProvider(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", model: "g", resp: &Response{Text: "forced"}}
	deepseek := &fakeProvider{name: "deepseek", model: "d", resp: &Response{Text: "routed"}}

	r := NewRouter([]Provider{gemini, deepseek}, testRoutes(), testFallbacks(), nil, nil, nil)

	res, err := r.Complete(context.Background(), RouteRequest{Prompt: "write code", Provider: "gemini"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", res.Provider)
}

func TestRouterCostComputation(t *testing.T) {
	p := &fakeProvider{name: "deepseek", model: "deepseek-chat",
		rates: CostRates{In: 0.14, Out: 0.28},
		resp:  &Response{Text: "ok", TokensIn: 1_000_000, TokensOut: 500_000}}

	r := NewRouter([]Provider{p}, map[string]string{"default": "deepseek"}, nil, nil, nil, nil)

	res, err := r.Complete(context.Background(), RouteRequest{Prompt: "hello"})
	require.NoError(t, err)
	assert.InDelta(t, 0.14+0.14, res.CostUSD, 1e-9)
}

func TestDryRunMatchesLiveRouting(t *testing.T) {
	gemini := &fakeProvider{name: "gemini", model: "gemini-2.0-flash",
		resp: &Response{Text: "ok"}}
	deepseek := &fakeProvider{name: "deepseek", model: "deepseek-chat",
		resp: &Response{Text: "ok"}}

	r := NewRouter([]Provider{gemini, deepseek}, testRoutes(), testFallbacks(), nil, nil, nil)

	for _, prompt := range []string{"summarize the notes", "debug this crash", "hello there"} {
		req := RouteRequest{Prompt: prompt}
		decision, err := r.DryRun(req)
		require.NoError(t, err)

		res, err := r.Complete(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, decision.Provider, res.Provider, "prompt %q", prompt)
		assert.Equal(t, decision.TaskType, res.TaskType, "prompt %q", prompt)
	}
}

func TestDryRunUnknownProvider(t *testing.T) {
	r := NewRouter(nil, map[string]string{"default": "ghost"}, nil, nil, nil, nil)
	_, err := r.DryRun(RouteRequest{Prompt: "hi"})
	require.Error(t, err)
}

func TestInferTaskType(t *testing.T) {
	cases := []struct {
		prompt  string
		content string
		want    TaskType
	}{
		{"summarize the meeting", "", TaskSummarize},
		{"debug the panic", "", TaskDebug},
		{"translate to french", "", TaskTranslate},
		{"refactor this function", "", TaskRefactor},
		{"write a test for this", "", TaskTest},
		{"research local gyms", "", TaskResearch},
		{"extract the invoice number", "", TaskExtract},
		{"write code for a parser", "", TaskCode},
		{"hello", "", TaskDefault},
		{"look at this", "```go\nfunc main() {}\n```", TaskCode},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, InferTaskType(tc.prompt, tc.content), "prompt %q", tc.prompt)
	}

	long := make([]byte, longContentThreshold+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Equal(t, TaskSummarize, InferTaskType("look", string(long)))
}
