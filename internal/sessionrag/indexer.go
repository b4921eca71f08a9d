package sessionrag

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"openclaw/internal/activity"
	"openclaw/internal/clawerr"
	"openclaw/internal/embedding"
	"openclaw/internal/logging"
	"openclaw/internal/observability"
	"openclaw/internal/types"
)

// IndexerConfig tunes the indexing run.
type IndexerConfig struct {
	TranscriptsDir      string
	BatchSize           int
	QuarantineThreshold int
}

// Indexer turns transcript files into stored session chunks.
type Indexer struct {
	db       *sql.DB
	embedder embedding.Generator
	ctxer    *Contextualizer
	cfg      IndexerConfig
	activity *activity.Log
	metrics  *observability.Metrics
	logger   logging.Logger
}

// NewIndexer creates an indexer. The embedder is required; the
// contextualizer, activity log, and metrics are optional.
func NewIndexer(db *sql.DB, embedder embedding.Generator, ctxer *Contextualizer,
	cfg IndexerConfig, log *activity.Log, metrics *observability.Metrics, logger logging.Logger) *Indexer {

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Indexer{
		db: db, embedder: embedder, ctxer: ctxer,
		cfg: cfg, activity: log, metrics: metrics, logger: logging.OrNop(logger),
	}
}

// FileResult reports what one file's indexing run did.
type FileResult struct {
	SessionID string
	Action    string // indexed, reindexed, skipped, resumed, failed
	Chunks    int
	Err       error
}

// hashFile computes the SHA-256 of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// sessionIDFromPath derives the session id from the file name.
func sessionIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IndexAll walks the transcripts directory and indexes every .jsonl file
// that is new, changed, or partially indexed. Sessions whose files have
// disappeared are purged. onlyNew skips changed-file re-indexing.
func (ix *Indexer) IndexAll(ctx context.Context, onlyNew bool) ([]FileResult, error) {
	pattern := filepath.Join(ix.cfg.TranscriptsDir, "*.jsonl")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "scan transcripts", Err: err}
	}

	present := make(map[string]bool, len(files))
	var results []FileResult
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		sessionID := sessionIDFromPath(path)
		present[sessionID] = true

		res := ix.IndexFile(ctx, path, onlyNew)
		results = append(results, res)
	}

	if err := ix.purgeOrphans(ctx, present); err != nil {
		ix.logger.Warn("orphan purge failed: %v", err)
	}
	return results, nil
}

// IndexFile indexes one transcript file according to its recorded state:
// unknown files are fully indexed, changed files are atomically
// re-indexed, partial files resume from the last stored chunk, and
// unchanged complete files are skipped.
func (ix *Indexer) IndexFile(ctx context.Context, path string, onlyNew bool) FileResult {
	sessionID := sessionIDFromPath(path)
	res := FileResult{SessionID: sessionID}

	hash, err := hashFile(path)
	if err != nil {
		res.Action, res.Err = "failed", err
		return res
	}

	var storedHash, storedStatus string
	err = ix.db.QueryRowContext(ctx,
		`SELECT file_hash, status FROM session_files WHERE session_id = ?`, sessionID).
		Scan(&storedHash, &storedStatus)
	known := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		res.Action, res.Err = "failed", err
		return res
	}

	switch {
	case !known:
		res.Action = "indexed"
		res.Chunks, res.Err = ix.indexNew(ctx, path, sessionID, hash, 0)
	case known && storedHash == hash && storedStatus == string(types.IndexComplete):
		res.Action = "skipped"
		return res
	case known && storedHash == hash && storedStatus != string(types.IndexComplete):
		res.Action = "resumed"
		resume := ix.lastChunkIndex(ctx, sessionID) + 1
		res.Chunks, res.Err = ix.indexNew(ctx, path, sessionID, hash, resume)
	case onlyNew:
		res.Action = "skipped"
		return res
	default: // changed file
		res.Action = "reindexed"
		res.Chunks, res.Err = ix.reindex(ctx, path, sessionID, hash)
	}

	if res.Err != nil {
		res.Action = "failed"
		ix.markStatus(ctx, sessionID, path, hash, types.IndexFailed, 0)
		ix.recordFailure(ctx, sessionID, res.Err)
	}
	return res
}

// recordFailure logs an indexing failure to the activity stream. A file
// rejected for too many malformed lines is quarantined, not indexed.
func (ix *Indexer) recordFailure(ctx context.Context, sessionID string, cause error) {
	if ix.activity == nil {
		return
	}
	action := "session_index_failed"
	var parseErr *clawerr.ParseError
	if errors.As(cause, &parseErr) {
		action = "session_quarantined"
	}
	err := ix.activity.Record(ctx, action,
		fmt.Sprintf("session %s: %v", sessionID, cause),
		activity.WithCategory("session_rag"),
		activity.WithRelated("session:"+sessionID))
	if err != nil {
		ix.logger.Warn("activity append for session %s failed: %v", sessionID, err)
	}
}

func (ix *Indexer) lastChunkIndex(ctx context.Context, sessionID string) int {
	var last sql.NullInt64
	ix.db.QueryRowContext(ctx,
		`SELECT MAX(chunk_index) FROM session_chunks WHERE session_id = ?`, sessionID).
		Scan(&last)
	if last.Valid {
		return int(last.Int64)
	}
	return -1
}

// prepared is a chunk plus its contextualisation and embedding, ready to
// insert.
type prepared struct {
	chunk  Chunk
	prefix string
	status types.ContextStatus
	vector []byte
}

// contextualizeConcurrency bounds parallel LLM calls per batch.
const contextualizeConcurrency = 4

// prepareBatch contextualises and embeds a batch of chunks.
// Contextualisation calls run concurrently; a failed call marks its own
// chunk failed without aborting the batch.
func (ix *Indexer) prepareBatch(ctx context.Context, sessionID string, chunks []Chunk) ([]prepared, error) {
	out := make([]prepared, len(chunks))
	texts := make([]string, len(chunks))

	var g errgroup.Group
	g.SetLimit(contextualizeConcurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			prefix, status := "", types.ContextPending
			if ix.ctxer != nil {
				prefix, status = ix.ctxer.Contextualize(ctx, sessionID, &chunks[i])
			}
			out[i] = prepared{chunk: chunks[i], prefix: prefix, status: status}
			texts[i] = EmbedText(prefix, chunks[i].Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vecs, err := ix.embedder.GenerateBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].vector = embedding.Pack(vecs[i])
	}
	return out, nil
}

func insertChunk(ctx context.Context, tx *sql.Tx, sessionID string, p prepared) error {
	var ts any
	if !p.chunk.Timestamp.IsZero() {
		ts = p.chunk.Timestamp.UTC().Format("2006-01-02 15:04:05")
	}
	speakers, _ := json.Marshal(p.chunk.Speakers)
	tags, _ := json.Marshal(p.chunk.TopicTags)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO session_chunks
		   (session_id, chunk_index, timestamp, speakers, topic_tags,
		    has_decision, has_action, content, context_prefix, context_status,
		    token_count, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, p.chunk.Index, ts, string(speakers), string(tags),
		p.chunk.HasDecision, p.chunk.HasAction, p.chunk.Content,
		p.prefix, string(p.status), p.chunk.TokenCount, p.vector)
	return err
}

// indexNew indexes chunks from resumeFrom onward, committing per batch so
// a crash leaves a resumable partial state. runtime.Gosched between
// batches keeps long runs cooperative.
func (ix *Indexer) indexNew(ctx context.Context, path, sessionID, hash string, resumeFrom int) (int, error) {
	transcript, err := ParseFile(path, sessionID, ix.cfg.QuarantineThreshold)
	if err != nil {
		return 0, err
	}
	chunks := ChunkMessages(transcript.Messages)

	ix.markStatus(ctx, sessionID, path, hash, types.IndexPartial, resumeFrom)

	written := 0
	for start := resumeFrom; start < len(chunks); start += ix.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		end := start + ix.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch, err := ix.prepareBatch(ctx, sessionID, chunks[start:end])
		if err != nil {
			return written, err
		}

		tx, err := ix.db.BeginTx(ctx, nil)
		if err != nil {
			return written, &clawerr.StorageError{Op: "index batch", Err: err}
		}
		for _, p := range batch {
			if err := insertChunk(ctx, tx, sessionID, p); err != nil {
				tx.Rollback()
				return written, &clawerr.StorageError{Op: "insert chunk", Err: err}
			}
		}
		if err := tx.Commit(); err != nil {
			return written, &clawerr.StorageError{Op: "index batch", Err: err}
		}

		written += len(batch)
		if ix.metrics != nil {
			ix.metrics.IndexedChunks.Add(float64(len(batch)))
		}
		runtime.Gosched()
	}

	ix.markStatus(ctx, sessionID, path, hash, types.IndexComplete, len(chunks))
	return written, nil
}

// reindex replaces a changed session's chunks. The delete and every
// insert commit in a single transaction so search never sees a
// half-replaced session.
func (ix *Indexer) reindex(ctx context.Context, path, sessionID, hash string) (int, error) {
	transcript, err := ParseFile(path, sessionID, ix.cfg.QuarantineThreshold)
	if err != nil {
		return 0, err
	}
	chunks := ChunkMessages(transcript.Messages)

	// Contextualise and embed outside the transaction; only the writes
	// need atomicity.
	var all []prepared
	for start := 0; start < len(chunks); start += ix.cfg.BatchSize {
		end := start + ix.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch, err := ix.prepareBatch(ctx, sessionID, chunks[start:end])
		if err != nil {
			return 0, err
		}
		all = append(all, batch...)
		runtime.Gosched()
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "reindex", Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM session_chunks WHERE session_id = ?`, sessionID); err != nil {
		tx.Rollback()
		return 0, &clawerr.StorageError{Op: "reindex delete", Err: err}
	}
	for _, p := range all {
		if err := insertChunk(ctx, tx, sessionID, p); err != nil {
			tx.Rollback()
			return 0, &clawerr.StorageError{Op: "reindex insert", Err: err}
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_files (session_id, file_path, file_hash, last_indexed, chunk_count, status)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   file_path = excluded.file_path, file_hash = excluded.file_hash,
		   last_indexed = excluded.last_indexed, chunk_count = excluded.chunk_count,
		   status = excluded.status`,
		sessionID, path, hash, len(all), string(types.IndexComplete)); err != nil {
		tx.Rollback()
		return 0, &clawerr.StorageError{Op: "reindex mark", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &clawerr.StorageError{Op: "reindex", Err: err}
	}

	if ix.metrics != nil {
		ix.metrics.IndexedChunks.Add(float64(len(all)))
	}
	return len(all), nil
}

// markStatus upserts the session_files tracking row. Failures are logged
// only; tracking must not abort indexing.
func (ix *Indexer) markStatus(ctx context.Context, sessionID, path, hash string, status types.IndexStatus, chunkCount int) {
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO session_files (session_id, file_path, file_hash, last_indexed, chunk_count, status)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   file_path = excluded.file_path, file_hash = excluded.file_hash,
		   last_indexed = excluded.last_indexed, chunk_count = excluded.chunk_count,
		   status = excluded.status`,
		sessionID, path, hash, chunkCount, string(status))
	if err != nil {
		ix.logger.Warn("session_files upsert failed for %s: %v", sessionID, err)
	}
}

// purgeOrphans removes chunks and tracking rows for sessions whose
// transcript files no longer exist.
func (ix *Indexer) purgeOrphans(ctx context.Context, present map[string]bool) error {
	rows, err := ix.db.QueryContext(ctx, `SELECT session_id FROM session_files`)
	if err != nil {
		return err
	}
	var orphans []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if !present[id] {
			orphans = append(orphans, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range orphans {
		tx, err := ix.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_chunks WHERE session_id = ?`, id); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_files WHERE session_id = ?`, id); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		ix.logger.Info("purged orphaned session %s", id)
	}
	return nil
}

// Status summarises one tracked session file.
type Status struct {
	SessionID   string
	FilePath    string
	Status      types.IndexStatus
	ChunkCount  int
	LastIndexed *time.Time
}

// StatusAll lists every tracked session, most recently indexed first.
func (ix *Indexer) StatusAll(ctx context.Context) ([]Status, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT session_id, file_path, status, chunk_count, last_indexed
		 FROM session_files ORDER BY last_indexed DESC`)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "index status", Err: err}
	}
	defer rows.Close()

	var out []Status
	for rows.Next() {
		var s Status
		if err := rows.Scan(&s.SessionID, &s.FilePath, &s.Status, &s.ChunkCount, &s.LastIndexed); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
