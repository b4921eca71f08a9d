package subagent

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openclaw/internal/activity"
	"openclaw/internal/pipeline"
	"openclaw/internal/storage"
	"openclaw/internal/store"
	"openclaw/internal/types"
)

type stubEmbedder struct{ vectors map[string][]float32 }

func (s *stubEmbedder) Model() string { return "stub-embed" }

func (s *stubEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = s.Generate(ctx, t)
	}
	return out, nil
}

func TestBuildSpawnRequestIncludesPersonaAndMemories(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	emb := &stubEmbedder{vectors: map[string][]float32{
		"operator prefers short PRs": {1, 0, 0},
		"write the login feature":    {0.9, 0.1, 0},
	}}
	st := store.New(db.Handle(), emb, nil)
	ctx := context.Background()
	_, err = st.AddMemory(ctx, store.MemoryInput{
		Category: types.MemoryPreference, Content: "operator prefers short PRs"})
	require.NoError(t, err)

	o := NewOrchestrator(st, nil, nil)
	req, err := o.BuildSpawnRequest(ctx, RoleDeveloper, "write the login feature")
	require.NoError(t, err)

	assert.Contains(t, req.Task, "developer agent")
	assert.Contains(t, req.Task, "operator prefers short PRs")
	assert.Contains(t, req.Task, "write the login feature")
	assert.Equal(t, "deepseek-chat", req.Model)
	assert.Equal(t, 600, req.RunTimeoutSeconds)
	assert.True(t, req.Cleanup)
	assert.True(t, strings.HasPrefix(req.Label, "developer-"))
}

func TestBuildSpawnRequestTruncatesOversizeTask(t *testing.T) {
	o := NewOrchestrator(nil, nil, nil)
	huge := strings.Repeat("detail ", 10000) // ~17k estimated tokens

	req, err := o.BuildSpawnRequest(context.Background(), RoleQA, huge)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(req.Task)/4, maxTaskTokens)
}

func TestBuildSpawnRequestRoleDefaults(t *testing.T) {
	o := NewOrchestrator(nil, nil, nil)

	spec, err := o.BuildSpawnRequest(context.Background(), RoleSpec, "spec the billing flow")
	require.NoError(t, err)
	assert.Equal(t, "deepseek-reasoner", spec.Model)
	assert.Equal(t, 300, spec.RunTimeoutSeconds)

	qa, err := o.BuildSpawnRequest(context.Background(), RoleQA, "review the change")
	require.NoError(t, err)
	assert.Equal(t, 180, qa.RunTimeoutSeconds)
}

func TestParseSpecOutputMarkdownLists(t *testing.T) {
	raw := `Some preamble.

### Acceptance Criteria
- login works with email
- rate limiting after 5 attempts
* lockout notification sent

### Tasks Breakdown
1. add login handler
2) add rate limiter

### Notes
ignore this section`

	out, err := ParseSpecOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"login works with email",
		"rate limiting after 5 attempts",
		"lockout notification sent",
	}, out.AcceptanceCriteria)
	assert.Equal(t, []string{"add login handler", "add rate limiter"}, out.Tasks)
}

func TestParseSpecOutputRepairsJSON(t *testing.T) {
	// Trailing comma and single quotes: typical malformed LLM JSON.
	raw := `### Acceptance Criteria
['criterion one', 'criterion two',]

### Tasks Breakdown
["task one", "task two"]`

	out, err := ParseSpecOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"criterion one", "criterion two"}, out.AcceptanceCriteria)
	assert.Equal(t, []string{"task one", "task two"}, out.Tasks)
}

func TestParseSpecOutputEmpty(t *testing.T) {
	_, err := ParseSpecOutput("no recognisable sections here")
	require.Error(t, err)
}

func TestApplySpecOutput(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	p := pipeline.NewService(db.Handle(), activity.NewLog(db.Handle(), nil), nil)
	ctx := context.Background()

	featID, err := p.Create(ctx, pipeline.CreateInput{Type: types.ItemFeature, Title: "billing"})
	require.NoError(t, err)

	raw := "### Acceptance Criteria\n- invoices render\n\n### Tasks Breakdown\n- build renderer\n- add tests"
	spec, err := ParseSpecOutput(raw)
	require.NoError(t, err)
	require.NoError(t, ApplySpecOutput(ctx, p, featID, raw, spec))

	feat, err := p.Get(ctx, featID)
	require.NoError(t, err)
	assert.Equal(t, raw, feat.SpecDoc)
	assert.Equal(t, []string{"invoices render"}, feat.AcceptanceCriteria)

	tasks, err := p.Tasks(ctx, featID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}
