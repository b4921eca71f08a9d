package knowledge

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openclaw/internal/storage"
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

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.Handle()
}

func TestKeywordSearch(t *testing.T) {
	c := NewCache(newTestDB(t), nil, nil)
	ctx := context.Background()

	_, err := c.Add(ctx, Entry{
		Title:      "Best climbing gyms in Berlin",
		Summary:    "Three bouldering gyms with late opening hours",
		SourceType: types.SourceResearch,
		TopicTags:  []string{"climbing", "berlin"},
	}, true)
	require.NoError(t, err)
	_, err = c.Add(ctx, Entry{
		Title:      "Tax deadline rules",
		Summary:    "Filing extensions and estimated payments",
		SourceType: types.SourceResearch,
	}, true)
	require.NoError(t, err)

	hits, err := c.Search(ctx, "climbing gyms", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Best climbing gyms in Berlin", hits[0].Title)
}

func TestSearchEscapesOperators(t *testing.T) {
	c := NewCache(newTestDB(t), nil, nil)
	ctx := context.Background()

	_, err := c.Add(ctx, Entry{Title: "C and rust notes", Summary: "systems languages"}, true)
	require.NoError(t, err)

	// Raw FTS5 operators in user input must not cause a syntax error.
	_, err = c.Search(ctx, `rust AND NOT "broken`, 10)
	require.NoError(t, err)
}

func TestImportanceWeighting(t *testing.T) {
	c := NewCache(newTestDB(t), nil, nil)
	ctx := context.Background()

	_, err := c.Add(ctx, Entry{
		Title: "espresso brewing guide", Summary: "grind size and pressure",
		Importance: 0.1,
	}, true)
	require.NoError(t, err)
	important, err := c.Add(ctx, Entry{
		Title: "espresso machine repair", Summary: "fixing the pressure gauge",
		Importance: 0.9,
	}, true)
	require.NoError(t, err)

	hits, err := c.Search(ctx, "espresso pressure", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, important, hits[0].ID, "higher importance should rank first")
}

func TestSemanticSearch(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"Coffee spots\nGood cafes downtown": {1, 0, 0},
		"Gym schedule\nOpening hours":       {0, 1, 0},
		"places for coffee":                 {0.95, 0.05, 0},
	}}
	c := NewCache(newTestDB(t), emb, nil)
	ctx := context.Background()

	_, err := c.Add(ctx, Entry{Title: "Coffee spots", Summary: "Good cafes downtown"}, false)
	require.NoError(t, err)
	_, err = c.Add(ctx, Entry{Title: "Gym schedule", Summary: "Opening hours"}, false)
	require.NoError(t, err)

	hits, err := c.SemanticSearch(ctx, "places for coffee", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Coffee spots", hits[0].Title)
	assert.Greater(t, hits[0].Score, 0.4)
}

func TestVerify(t *testing.T) {
	c := NewCache(newTestDB(t), nil, nil)
	ctx := context.Background()

	id, err := c.Add(ctx, Entry{Title: "fact", Summary: "something checkable", Confidence: 0.3}, true)
	require.NoError(t, err)
	require.NoError(t, c.Verify(ctx, id))

	e, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, e.Verified)
	assert.GreaterOrEqual(t, e.Confidence, 0.8)

	// Already-high confidence is not lowered.
	id2, err := c.Add(ctx, Entry{Title: "fact2", Summary: "x", Confidence: 0.95}, true)
	require.NoError(t, err)
	require.NoError(t, c.Verify(ctx, id2))
	e2, err := c.Get(ctx, id2)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, e2.Confidence, 1e-9)
}

func TestSupersedeDropsOldFromSearch(t *testing.T) {
	c := NewCache(newTestDB(t), nil, nil)
	ctx := context.Background()

	oldID, err := c.Add(ctx, Entry{Title: "gym prices 2024", Summary: "monthly membership rates"}, true)
	require.NoError(t, err)

	newID, err := c.Supersede(ctx, oldID, Entry{Title: "gym prices 2026", Summary: "updated membership rates"})
	require.NoError(t, err)

	old, err := c.Get(ctx, oldID)
	require.NoError(t, err)
	require.NotNil(t, old.SupersededBy)
	assert.Equal(t, newID, *old.SupersededBy)

	hits, err := c.Search(ctx, "membership rates", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, newID, hits[0].ID)
}

func TestSupersedeMissingEntry(t *testing.T) {
	c := NewCache(newTestDB(t), nil, nil)
	_, err := c.Supersede(context.Background(), 9999, Entry{Title: "x", Summary: "y"})
	require.Error(t, err)
}

func TestStats(t *testing.T) {
	c := NewCache(newTestDB(t), nil, nil)
	ctx := context.Background()

	id, err := c.Add(ctx, Entry{Title: "a", Summary: "s", SourceType: types.SourceWeb}, true)
	require.NoError(t, err)
	_, err = c.Add(ctx, Entry{Title: "b", Summary: "s", SourceType: types.SourceResearch}, true)
	require.NoError(t, err)
	require.NoError(t, c.Verify(ctx, id))

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Verified)
	assert.Equal(t, 1, stats.BySource["web"])
	assert.Equal(t, 1, stats.BySource["research"])
}
