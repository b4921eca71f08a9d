package sessionrag

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openclaw/internal/activity"
	"openclaw/internal/storage"
	"openclaw/internal/types"
)

// hashEmbedder maps any text to a fixed-dimension deterministic vector.
type hashEmbedder struct{ calls int }

func (h *hashEmbedder) Model() string { return "hash-embed" }

func (h *hashEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	h.calls++
	vec := make([]float32, 4)
	for i, r := range text {
		vec[i%4] += float32(r%13) / 13
	}
	return vec, nil
}

func (h *hashEmbedder) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = h.Generate(ctx, t)
	}
	return out, nil
}

func newIndexerEnv(t *testing.T) (*Indexer, *sql.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	transcripts := filepath.Join(dir, "transcripts")
	require.NoError(t, os.MkdirAll(transcripts, 0o755))

	ix := NewIndexer(db.Handle(), &hashEmbedder{}, nil,
		IndexerConfig{TranscriptsDir: transcripts, BatchSize: 100},
		activity.NewLog(db.Handle(), nil), nil, nil)
	return ix, db.Handle(), transcripts
}

func writeSession(t *testing.T, dir, sessionID string, exchanges int) string {
	t.Helper()
	path := filepath.Join(dir, sessionID+".jsonl")
	var lines []byte
	for i := 0; i < exchanges; i++ {
		lines = append(lines, []byte(fmt.Sprintf(
			`{"message":{"role":"user","content":"question number %d about topic %d"}}`+"\n", i, i))...)
		lines = append(lines, []byte(fmt.Sprintf(
			`{"message":{"role":"assistant","content":"answer number %d with detail"}}`+"\n", i))...)
	}
	require.NoError(t, os.WriteFile(path, lines, 0o644))
	return path
}

func chunkCount(t *testing.T, db *sql.DB, sessionID string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM session_chunks WHERE session_id = ?`, sessionID).Scan(&n))
	return n
}

func TestIndexNewFile(t *testing.T) {
	ix, db, dir := newIndexerEnv(t)
	writeSession(t, dir, "sess-1", 5)

	results, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "indexed", results[0].Action)
	assert.Equal(t, 5, results[0].Chunks)
	assert.Equal(t, 5, chunkCount(t, db, "sess-1"))

	var status string
	require.NoError(t, db.QueryRow(
		`SELECT status FROM session_files WHERE session_id = 'sess-1'`).Scan(&status))
	assert.Equal(t, string(types.IndexComplete), status)
}

func TestIndexUnchangedSkipped(t *testing.T) {
	ix, _, dir := newIndexerEnv(t)
	writeSession(t, dir, "sess-1", 3)

	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	results, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "skipped", results[0].Action)
}

func TestIndexChangedFileReplacesChunks(t *testing.T) {
	ix, db, dir := newIndexerEnv(t)
	writeSession(t, dir, "sess-1", 5)

	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, 5, chunkCount(t, db, "sess-1"))

	// Shorter rewrite: stale chunks must not survive.
	writeSession(t, dir, "sess-1", 2)
	results, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "reindexed", results[0].Action)
	assert.Equal(t, 2, chunkCount(t, db, "sess-1"))
}

func TestIndexOnlyNewSkipsChanged(t *testing.T) {
	ix, db, dir := newIndexerEnv(t)
	writeSession(t, dir, "sess-1", 3)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	writeSession(t, dir, "sess-1", 6)
	writeSession(t, dir, "sess-2", 2)

	results, err := ix.IndexAll(context.Background(), true)
	require.NoError(t, err)
	byID := map[string]FileResult{}
	for _, r := range results {
		byID[r.SessionID] = r
	}
	assert.Equal(t, "skipped", byID["sess-1"].Action)
	assert.Equal(t, "indexed", byID["sess-2"].Action)
	assert.Equal(t, 3, chunkCount(t, db, "sess-1"), "changed file untouched in only-new mode")
}

func TestIndexResumesPartial(t *testing.T) {
	ix, db, dir := newIndexerEnv(t)
	path := writeSession(t, dir, "sess-1", 6)

	// Simulate a crashed run: three chunks stored, file marked partial.
	hash, err := hashFile(path)
	require.NoError(t, err)
	transcript, err := ParseFile(path, "sess-1", 0)
	require.NoError(t, err)
	chunks := ChunkMessages(transcript.Messages)
	require.Len(t, chunks, 6)

	tx, err := db.Begin()
	require.NoError(t, err)
	for _, c := range chunks[:3] {
		require.NoError(t, insertChunk(context.Background(), tx, "sess-1", prepared{
			chunk: c, status: types.ContextPending, vector: []byte{0, 0, 0, 0},
		}))
	}
	require.NoError(t, tx.Commit())
	ix.markStatus(context.Background(), "sess-1", path, hash, types.IndexPartial, 3)

	results, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "resumed", results[0].Action)
	assert.Equal(t, 3, results[0].Chunks, "only the missing chunks are written")
	assert.Equal(t, 6, chunkCount(t, db, "sess-1"))
}

func TestOrphanPurge(t *testing.T) {
	ix, db, dir := newIndexerEnv(t)
	path := writeSession(t, dir, "sess-gone", 3)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, err = ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 0, chunkCount(t, db, "sess-gone"))
	var tracked int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM session_files`).Scan(&tracked))
	assert.Equal(t, 0, tracked)
}

func TestStatusAll(t *testing.T) {
	ix, _, dir := newIndexerEnv(t)
	writeSession(t, dir, "sess-1", 2)
	_, err := ix.IndexAll(context.Background(), false)
	require.NoError(t, err)

	statuses, err := ix.StatusAll(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "sess-1", statuses[0].SessionID)
	assert.Equal(t, types.IndexComplete, statuses[0].Status)
	assert.Equal(t, 2, statuses[0].ChunkCount)
}

func TestQuarantinedFileLogsActivity(t *testing.T) {
	ix, db, dir := newIndexerEnv(t)
	ctx := context.Background()

	// Enough broken lines to cross the default quarantine threshold.
	var lines []byte
	for i := 0; i < 25; i++ {
		lines = append(lines, []byte("{not valid json\n")...)
	}
	path := filepath.Join(dir, "corrupt.jsonl")
	require.NoError(t, os.WriteFile(path, lines, 0o644))

	res := ix.IndexFile(ctx, path, false)
	assert.Equal(t, "failed", res.Action)
	require.Error(t, res.Err)
	assert.Equal(t, 0, chunkCount(t, db, "corrupt"))

	var status string
	require.NoError(t, db.QueryRow(
		`SELECT status FROM session_files WHERE session_id = 'corrupt'`).Scan(&status))
	assert.Equal(t, string(types.IndexFailed), status)

	log := activity.NewLog(db, nil)
	entries, err := log.Recent(ctx, 10, activity.Filter{Action: "session_quarantined"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "session:corrupt", entries[0].RelatedID)
	assert.Contains(t, entries[0].Description, "corrupt")
}

func TestHealthStates(t *testing.T) {
	ix, db, dir := newIndexerEnv(t)
	ctx := context.Background()

	h, err := CheckHealth(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, HealthOK, h.State, "empty index is healthy")

	writeSession(t, dir, "sess-1", 2)
	_, err = ix.IndexAll(ctx, false)
	require.NoError(t, err)

	h, err = CheckHealth(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, HealthOK, h.State)
	assert.Equal(t, 2, h.TotalChunks)
	assert.Equal(t, 2, h.EmbeddedChunks)

	// A failed session drives the state to ERROR.
	_, err = db.Exec(`UPDATE session_files SET status = 'failed' WHERE session_id = 'sess-1'`)
	require.NoError(t, err)
	h, err = CheckHealth(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, HealthError, h.State)
}
