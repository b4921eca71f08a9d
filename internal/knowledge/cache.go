// Package knowledge implements the curated research cache: FTS5 keyword
// search, embedding-based semantic search, verification, and supersedence
// chains over the knowledge_cache table.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"openclaw/internal/clawerr"
	"openclaw/internal/embedding"
	"openclaw/internal/logging"
	"openclaw/internal/types"
)

// Entry is one cached knowledge item.
type Entry struct {
	ID            int64
	Title         string
	Summary       string
	SourceType    types.KnowledgeSource
	SourceURL     string
	SourceSession string
	TopicTags     []string
	Entities      []string
	Confidence    float64
	Importance    float64
	Verified      bool
	SupersededBy  *int64
	ExpiresAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Match is a search hit with its ranking score. For keyword search the
// score is importance-weighted FTS rank (lower is better); for semantic
// search it is cosine similarity (higher is better).
type Match struct {
	Entry
	Score float64
}

// Cache wraps the knowledge tables.
type Cache struct {
	db       *sql.DB
	embedder embedding.Generator // nil disables embeddings
	logger   logging.Logger
}

// NewCache creates the knowledge cache service.
func NewCache(db *sql.DB, embedder embedding.Generator, logger logging.Logger) *Cache {
	return &Cache{db: db, embedder: embedder, logger: logging.OrNop(logger)}
}

func marshalList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func unmarshalList(raw string) []string {
	var items []string
	if json.Unmarshal([]byte(raw), &items) != nil {
		return nil
	}
	return items
}

// Add stores an entry and embeds title+summary unless skipEmbed is set.
// Embedding failure degrades to a row without a vector.
func (c *Cache) Add(ctx context.Context, e Entry, skipEmbed bool) (int64, error) {
	if e.Title == "" || e.Summary == "" {
		return 0, clawerr.NewValidation("knowledge entry needs a title and summary")
	}
	if e.SourceType == "" {
		e.SourceType = types.SourceManual
	}
	if e.Confidence == 0 {
		e.Confidence = 0.5
	}
	if e.Importance == 0 {
		e.Importance = 0.5
	}
	if e.Confidence < 0 || e.Confidence > 1 || e.Importance < 0 || e.Importance > 1 {
		return 0, clawerr.NewValidation("confidence and importance must be in [0, 1]")
	}

	var blob []byte
	if c.embedder != nil && !skipEmbed {
		vec, err := c.embedder.Generate(ctx, e.Title+"\n"+e.Summary)
		if err != nil {
			c.logger.Warn("knowledge embedding failed, storing without vector: %v", err)
		} else {
			blob = embedding.Pack(vec)
		}
	}

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO knowledge_cache
		   (title, summary, source_type, source_url, source_session,
		    topic_tags, entities, confidence, importance, expires_at, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Title, e.Summary, string(e.SourceType), e.SourceURL, e.SourceSession,
		marshalList(e.TopicTags), marshalList(e.Entities),
		e.Confidence, e.Importance, e.ExpiresAt, blob)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "add knowledge", Err: err}
	}
	return res.LastInsertId()
}

// Get loads one entry by id.
func (c *Cache) Get(ctx context.Context, id int64) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &clawerr.NotFoundError{Entity: "knowledge entry", ID: id}
	}
	if err != nil {
		return nil, &clawerr.StorageError{Op: "get knowledge", Err: err}
	}
	return e, nil
}

const selectEntry = `SELECT id, title, summary, source_type, source_url, source_session,
       topic_tags, entities, confidence, importance, verified, superseded_by,
       expires_at, created_at, updated_at
FROM knowledge_cache`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var sourceURL, sourceSession sql.NullString
	var tags, entities string
	var verified int
	err := row.Scan(&e.ID, &e.Title, &e.Summary, &e.SourceType, &sourceURL, &sourceSession,
		&tags, &entities, &e.Confidence, &e.Importance, &verified, &e.SupersededBy,
		&e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.SourceURL = sourceURL.String
	e.SourceSession = sourceSession.String
	e.TopicTags = unmarshalList(tags)
	e.Entities = unmarshalList(entities)
	e.Verified = verified != 0
	return &e, nil
}

// ftsQuery quotes each term so FTS5 operators in user input are treated
// literally. Embedded quotes are doubled per the FTS5 string syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// Search runs an FTS5 keyword search. Superseded and expired entries are
// excluded. Results are ordered by importance-weighted rank: FTS5 rank is
// negative with better matches more negative, so multiplying by
// (1 + importance) pushes important entries further down (better).
func (c *Cache) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, clawerr.NewValidation("search query is required")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT k.id, k.title, k.summary, k.source_type, k.source_url, k.source_session,
		        k.topic_tags, k.entities, k.confidence, k.importance, k.verified,
		        k.superseded_by, k.expires_at, k.created_at, k.updated_at,
		        knowledge_fts.rank * (1 + k.importance) AS weighted
		 FROM knowledge_fts
		 JOIN knowledge_cache k ON k.id = knowledge_fts.rowid
		 WHERE knowledge_fts MATCH ?
		   AND k.superseded_by IS NULL
		   AND (k.expires_at IS NULL OR k.expires_at > CURRENT_TIMESTAMP)
		 ORDER BY weighted ASC
		 LIMIT ?`, ftsQuery(query), limit)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "knowledge search", Err: err}
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var e Entry
		var sourceURL, sourceSession sql.NullString
		var tags, entities string
		var verified int
		var weighted float64
		if err := rows.Scan(&e.ID, &e.Title, &e.Summary, &e.SourceType, &sourceURL, &sourceSession,
			&tags, &entities, &e.Confidence, &e.Importance, &verified,
			&e.SupersededBy, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt, &weighted); err != nil {
			return nil, err
		}
		e.SourceURL = sourceURL.String
		e.SourceSession = sourceSession.String
		e.TopicTags = unmarshalList(tags)
		e.Entities = unmarshalList(entities)
		e.Verified = verified != 0
		out = append(out, Match{Entry: e, Score: weighted})
	}
	return out, rows.Err()
}

// semanticThreshold is the minimum cosine similarity for a semantic hit.
const semanticThreshold = 0.4

// SemanticSearch embeds the query and scans stored vectors.
func (c *Cache) SemanticSearch(ctx context.Context, query string, limit int) ([]Match, error) {
	if c.embedder == nil {
		return nil, clawerr.NewValidation("semantic search requires an embedding client")
	}
	if limit <= 0 {
		limit = 10
	}
	queryVec, err := c.embedder.Generate(ctx, query)
	if err != nil {
		return nil, err
	}
	return c.semanticScan(ctx, queryVec, limit)
}

func (c *Cache) semanticScan(ctx context.Context, queryVec []float32, limit int) ([]Match, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, title, summary, source_type, source_url, source_session,
		        topic_tags, entities, confidence, importance, verified, superseded_by,
		        expires_at, created_at, updated_at, embedding
		 FROM knowledge_cache
		 WHERE embedding IS NOT NULL
		   AND superseded_by IS NULL
		   AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)`)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "knowledge semantic search", Err: err}
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var e Entry
		var sourceURL, sourceSession sql.NullString
		var tags, entities string
		var verified int
		var blob []byte
		if err := rows.Scan(&e.ID, &e.Title, &e.Summary, &e.SourceType, &sourceURL, &sourceSession,
			&tags, &entities, &e.Confidence, &e.Importance, &verified, &e.SupersededBy,
			&e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt, &blob); err != nil {
			return nil, err
		}
		vec, err := embedding.Unpack(blob)
		if err != nil {
			c.logger.Warn("knowledge entry %d has a corrupt embedding, skipping: %v", e.ID, err)
			continue
		}
		score := embedding.Cosine(queryVec, vec)
		if score < semanticThreshold {
			continue
		}
		e.SourceURL = sourceURL.String
		e.SourceSession = sourceSession.String
		e.TopicTags = unmarshalList(tags)
		e.Entities = unmarshalList(entities)
		e.Verified = verified != 0
		matches = append(matches, Match{Entry: e, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Verify marks an entry verified and lifts its confidence to at least 0.8.
func (c *Cache) Verify(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE knowledge_cache
		 SET verified = 1, confidence = MAX(confidence, 0.8),
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, id)
	if err != nil {
		return &clawerr.StorageError{Op: "verify knowledge", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &clawerr.NotFoundError{Entity: "knowledge entry", ID: id}
	}
	return nil
}

// Supersede inserts the replacement entry and points the old entry at it.
// The old entry keeps its row for provenance but drops out of searches.
func (c *Cache) Supersede(ctx context.Context, oldID int64, replacement Entry) (int64, error) {
	if _, err := c.Get(ctx, oldID); err != nil {
		return 0, err
	}
	newID, err := c.Add(ctx, replacement, false)
	if err != nil {
		return 0, err
	}
	_, err = c.db.ExecContext(ctx,
		`UPDATE knowledge_cache SET superseded_by = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, newID, oldID)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "supersede knowledge", Err: err}
	}
	return newID, nil
}

// List returns current (non-superseded, non-expired) entries, newest first.
func (c *Cache) List(ctx context.Context, sourceType types.KnowledgeSource, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectEntry + `
		 WHERE superseded_by IS NULL
		   AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)`
	var args []any
	if sourceType != "" {
		query += ` AND source_type = ?`
		args = append(args, string(sourceType))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "list knowledge", Err: err}
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Stats summarises the cache contents.
type Stats struct {
	Total      int
	Verified   int
	Superseded int
	Expired    int
	BySource   map[string]int
	Embedded   int
}

// GetStats counts entries by state and source.
func (c *Cache) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{BySource: make(map[string]int)}

	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(verified), 0),
		        COALESCE(SUM(superseded_by IS NOT NULL), 0),
		        COALESCE(SUM(expires_at IS NOT NULL AND expires_at <= CURRENT_TIMESTAMP), 0),
		        COALESCE(SUM(embedding IS NOT NULL), 0)
		 FROM knowledge_cache`).
		Scan(&stats.Total, &stats.Verified, &stats.Superseded, &stats.Expired, &stats.Embedded)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "knowledge stats", Err: err}
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT source_type, COUNT(*) FROM knowledge_cache GROUP BY source_type`)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "knowledge stats", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		stats.BySource[source] = count
	}
	return stats, rows.Err()
}
