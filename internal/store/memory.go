package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"openclaw/internal/clawerr"
	"openclaw/internal/embedding"
	"openclaw/internal/types"
)

// Memory is a long-term memory row.
type Memory struct {
	ID           int64
	Category     types.MemoryCategory
	Subject      string
	Content      string
	Importance   int
	Source       string
	ExpiresAt    *time.Time
	LastAccessed *time.Time
	AccessCount  int
	CreatedAt    time.Time
}

// MemoryMatch is a memory with its semantic similarity score.
type MemoryMatch struct {
	Memory
	Score float64
}

// semanticThreshold is the minimum cosine similarity for a match.
const semanticThreshold = 0.4

// MemoryInput carries the writable fields for AddMemory.
type MemoryInput struct {
	Category   types.MemoryCategory
	Subject    string
	Content    string
	Importance int
	Source     string
	ExpiresAt  *time.Time
	SkipEmbed  bool
}

// AddMemory inserts a memory and, when an embedder is configured, writes
// its embedding both inline and into memory_embeddings keyed by model.
// Embedding failure does not fail the insert; the row is stored without
// a vector.
func (s *Store) AddMemory(ctx context.Context, in MemoryInput) (int64, error) {
	if in.Content == "" {
		return 0, clawerr.NewValidation("memory content is required")
	}
	if in.Category == "" {
		in.Category = types.MemoryFact
	}
	if in.Importance == 0 {
		in.Importance = 5
	}
	if in.Importance < 1 || in.Importance > 10 {
		return 0, clawerr.NewValidation("memory importance must be 1-10, got %d", in.Importance)
	}

	var blob []byte
	if s.embedder != nil && !in.SkipEmbed {
		vec, err := s.embedder.Generate(ctx, in.Content)
		if err != nil {
			s.logger.Warn("memory embedding failed, storing without vector: %v", err)
		} else {
			blob = embedding.Pack(vec)
		}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memory (category, subject, content, importance, source, expires_at, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(in.Category), in.Subject, in.Content, in.Importance, in.Source, in.ExpiresAt, blob)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "add memory", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if blob != nil {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO memory_embeddings (memory_id, model, embedding) VALUES (?, ?, ?)
			 ON CONFLICT(memory_id, model) DO UPDATE SET
			   embedding = excluded.embedding, updated_at = CURRENT_TIMESTAMP`,
			id, s.embedder.Model(), blob)
		if err != nil {
			s.logger.Warn("memory_embeddings write failed for memory %d: %v", id, err)
		}
	}
	return id, nil
}

// GetMemory loads one memory by id.
func (s *Store) GetMemory(ctx context.Context, id int64) (*Memory, error) {
	var m Memory
	var subject, source sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, category, subject, content, importance, source,
		        expires_at, last_accessed, access_count, created_at
		 FROM memory WHERE id = ?`, id).
		Scan(&m.ID, &m.Category, &subject, &m.Content, &m.Importance, &source,
			&m.ExpiresAt, &m.LastAccessed, &m.AccessCount, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &clawerr.NotFoundError{Entity: "memory", ID: id}
	}
	if err != nil {
		return nil, &clawerr.StorageError{Op: "get memory", Err: err}
	}
	m.Subject = subject.String
	m.Source = source.String
	return &m, nil
}

// ListMemories returns non-expired memories, optionally by category.
func (s *Store) ListMemories(ctx context.Context, category types.MemoryCategory, limit int) ([]Memory, error) {
	query := `SELECT id, category, subject, content, importance, source,
	                 expires_at, last_accessed, access_count, created_at
	          FROM memory
	          WHERE (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)`
	var args []any
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY importance DESC, created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "list memories", Err: err}
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		var subject, source sql.NullString
		if err := rows.Scan(&m.ID, &m.Category, &subject, &m.Content, &m.Importance,
			&source, &m.ExpiresAt, &m.LastAccessed, &m.AccessCount, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Subject = subject.String
		m.Source = source.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// SemanticSearch embeds the query and scans stored vectors by cosine
// similarity. Only matches at or above the 0.4 threshold are returned.
func (s *Store) SemanticSearch(ctx context.Context, query string, limit int) ([]MemoryMatch, error) {
	if s.embedder == nil {
		return nil, clawerr.NewValidation("semantic search requires an embedding client")
	}
	vec, err := s.embedder.Generate(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SearchByEmbedding(ctx, vec, limit)
}

// SearchByEmbedding scans memory vectors against a pre-computed query
// vector. Rows without an embedding are skipped.
func (s *Store) SearchByEmbedding(ctx context.Context, queryVec []float32, limit int) ([]MemoryMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, subject, content, importance, source,
		        expires_at, last_accessed, access_count, created_at, embedding
		 FROM memory
		 WHERE embedding IS NOT NULL
		   AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)`)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "semantic search", Err: err}
	}
	defer rows.Close()

	var matches []MemoryMatch
	for rows.Next() {
		var m Memory
		var subject, source sql.NullString
		var blob []byte
		if err := rows.Scan(&m.ID, &m.Category, &subject, &m.Content, &m.Importance,
			&source, &m.ExpiresAt, &m.LastAccessed, &m.AccessCount, &m.CreatedAt, &blob); err != nil {
			return nil, err
		}
		vec, err := embedding.Unpack(blob)
		if err != nil {
			s.logger.Warn("memory %d has a corrupt embedding, skipping: %v", m.ID, err)
			continue
		}
		score := embedding.Cosine(queryVec, vec)
		if score < semanticThreshold {
			continue
		}
		m.Subject = subject.String
		m.Source = source.String
		matches = append(matches, MemoryMatch{Memory: m, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}

	for _, m := range matches {
		s.TouchAccess(ctx, m.ID)
	}
	return matches, nil
}

// TouchAccess bumps access_count and last_accessed. Errors are logged
// only; access accounting never fails a read path.
func (s *Store) TouchAccess(ctx context.Context, id int64) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE memory SET access_count = access_count + 1,
		        last_accessed = CURRENT_TIMESTAMP
		 WHERE id = ?`, id)
	if err != nil {
		s.logger.Debug("memory access touch failed for %d: %v", id, err)
	}
}

// DeleteMemory removes a memory; memory_embeddings rows cascade.
func (s *Store) DeleteMemory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory WHERE id = ?`, id)
	if err != nil {
		return &clawerr.StorageError{Op: "delete memory", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &clawerr.NotFoundError{Entity: "memory", ID: id}
	}
	return nil
}
