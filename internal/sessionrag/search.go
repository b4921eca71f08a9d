package sessionrag

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"openclaw/internal/clawerr"
	"openclaw/internal/embedding"
	"openclaw/internal/logging"
	"openclaw/internal/observability"
)

// SearchResult is one chunk hit.
type SearchResult struct {
	ChunkID       int64
	SessionID     string
	ChunkIndex    int
	Content       string
	ContextPrefix string
	Timestamp     *time.Time
	Speakers      []string
	TopicTags     []string
	HasDecision   bool
	HasAction     bool
	Score         float64
}

// SearchFilter narrows searches by chunk metadata.
type SearchFilter struct {
	SessionID   string
	After       *time.Time
	Before      *time.Time
	Tag         string
	Role        string
	HasDecision bool
	HasAction   bool
}

// Searcher runs vector, keyword, and hybrid queries over session chunks.
type Searcher struct {
	db       *sql.DB
	embedder embedding.Generator
	metrics  *observability.Metrics
	logger   logging.Logger
}

// NewSearcher creates a searcher. The embedder may be nil when only
// keyword search is needed.
func NewSearcher(db *sql.DB, embedder embedding.Generator, metrics *observability.Metrics, logger logging.Logger) *Searcher {
	return &Searcher{db: db, embedder: embedder, metrics: metrics, logger: logging.OrNop(logger)}
}

// vectorThreshold is the minimum cosine similarity for a vector hit.
const vectorThreshold = 0.4

// rrfK is the standard reciprocal-rank-fusion constant.
const rrfK = 60

func (s *Searcher) observe(mode string, start time.Time) {
	if s.metrics != nil {
		s.metrics.SearchLatency.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
}

// filterSQL renders a SearchFilter as additional WHERE conditions over a
// session_chunks alias.
func filterSQL(alias string, f SearchFilter) (string, []any) {
	var conds []string
	var args []any
	if f.SessionID != "" {
		conds = append(conds, alias+".session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.After != nil {
		conds = append(conds, alias+".timestamp >= ?")
		args = append(args, f.After.UTC().Format("2006-01-02 15:04:05"))
	}
	if f.Before != nil {
		conds = append(conds, alias+".timestamp <= ?")
		args = append(args, f.Before.UTC().Format("2006-01-02 15:04:05"))
	}
	if f.Tag != "" {
		conds = append(conds, alias+".topic_tags LIKE ?")
		args = append(args, `%"`+f.Tag+`"%`)
	}
	if f.Role != "" {
		conds = append(conds, alias+".speakers LIKE ?")
		args = append(args, `%"`+f.Role+`"%`)
	}
	if f.HasDecision {
		conds = append(conds, alias+".has_decision = 1")
	}
	if f.HasAction {
		conds = append(conds, alias+".has_action = 1")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conds, " AND "), args
}

func scanResult(rows *sql.Rows, withEmbedding bool) (SearchResult, []byte, error) {
	var r SearchResult
	var speakers, tags string
	var prefix sql.NullString
	var blob []byte
	dest := []any{&r.ChunkID, &r.SessionID, &r.ChunkIndex, &r.Content, &prefix,
		&r.Timestamp, &speakers, &tags, &r.HasDecision, &r.HasAction}
	if withEmbedding {
		dest = append(dest, &blob)
	}
	if err := rows.Scan(dest...); err != nil {
		return SearchResult{}, nil, err
	}
	r.ContextPrefix = prefix.String
	json.Unmarshal([]byte(speakers), &r.Speakers)
	json.Unmarshal([]byte(tags), &r.TopicTags)
	return r, blob, nil
}

const resultColumns = `c.id, c.session_id, c.chunk_index, c.content, c.context_prefix,
       c.timestamp, c.speakers, c.topic_tags, c.has_decision, c.has_action`

// VectorSearch embeds the query and scans stored chunk vectors by cosine
// similarity, applying metadata filters in SQL first.
func (s *Searcher) VectorSearch(ctx context.Context, query string, limit int, filter SearchFilter) ([]SearchResult, error) {
	if s.embedder == nil {
		return nil, clawerr.NewValidation("vector search requires an embedding client")
	}
	if limit <= 0 {
		limit = 10
	}
	defer s.observe("vector", time.Now())

	queryVec, err := s.embedder.Generate(ctx, query)
	if err != nil {
		return nil, err
	}

	where, args := filterSQL("c", filter)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+`, c.embedding
		 FROM session_chunks c
		 WHERE c.embedding IS NOT NULL`+where, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "vector search", Err: err}
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		r, blob, err := scanResult(rows, true)
		if err != nil {
			return nil, err
		}
		vec, err := embedding.Unpack(blob)
		if err != nil {
			s.logger.Warn("chunk %d has a corrupt embedding, skipping: %v", r.ChunkID, err)
			continue
		}
		score := embedding.Cosine(queryVec, vec)
		if score < vectorThreshold {
			continue
		}
		r.Score = score
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ftsQuery quotes terms so FTS5 operators in user input stay literal.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// KeywordSearch runs an FTS5 match over chunk content. Scores are FTS
// rank negated so higher is better, consistent with vector scores.
func (s *Searcher) KeywordSearch(ctx context.Context, query string, limit int, filter SearchFilter) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, clawerr.NewValidation("search query is required")
	}
	if limit <= 0 {
		limit = 10
	}
	defer s.observe("keyword", time.Now())

	where, filterArgs := filterSQL("c", filter)
	args := append([]any{ftsQuery(query)}, filterArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+`, chunks_fts.rank
		 FROM chunks_fts
		 JOIN session_chunks c ON c.id = chunks_fts.rowid
		 WHERE chunks_fts MATCH ?`+where+`
		 ORDER BY chunks_fts.rank ASC
		 LIMIT ?`, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "keyword search", Err: err}
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var speakers, tags string
		var prefix sql.NullString
		var rank float64
		if err := rows.Scan(&r.ChunkID, &r.SessionID, &r.ChunkIndex, &r.Content, &prefix,
			&r.Timestamp, &speakers, &tags, &r.HasDecision, &r.HasAction, &rank); err != nil {
			return nil, err
		}
		r.ContextPrefix = prefix.String
		json.Unmarshal([]byte(speakers), &r.Speakers)
		json.Unmarshal([]byte(tags), &r.TopicTags)
		r.Score = -rank
		results = append(results, r)
	}
	return results, rows.Err()
}

// HybridSearch fuses vector and keyword rankings with reciprocal rank
// fusion (k=60). A chunk appearing in both lists gets both contributions.
func (s *Searcher) HybridSearch(ctx context.Context, query string, limit int, filter SearchFilter) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	defer s.observe("hybrid", time.Now())

	// Overfetch both legs so fusion has material to work with.
	fetchN := limit * 3

	// Run both legs concurrently. Leg errors are handled below so one
	// failure cannot cancel the other leg; Wait only joins.
	var g errgroup.Group
	var vector, keyword []SearchResult
	var vectorErr, keywordErr error
	g.Go(func() error {
		vector, vectorErr = s.VectorSearch(ctx, query, fetchN, filter)
		return nil
	})
	g.Go(func() error {
		keyword, keywordErr = s.KeywordSearch(ctx, query, fetchN, filter)
		return nil
	})
	_ = g.Wait()

	// One leg failing degrades to the other; both failing is an error.
	if vectorErr != nil {
		if keywordErr != nil {
			return nil, keywordErr
		}
		s.logger.Warn("hybrid search vector leg failed, degrading to keyword: %v", vectorErr)
		vector = nil
	}
	if keywordErr != nil {
		s.logger.Warn("hybrid search keyword leg failed, degrading to vector: %v", keywordErr)
		keyword = nil
	}

	type fused struct {
		result SearchResult
		score  float64
	}
	byID := make(map[int64]*fused)
	accumulate := func(list []SearchResult) {
		for rank, r := range list {
			f, ok := byID[r.ChunkID]
			if !ok {
				f = &fused{result: r}
				byID[r.ChunkID] = f
			}
			f.score += 1.0 / float64(rrfK+rank+1)
		}
	}
	accumulate(vector)
	accumulate(keyword)

	out := make([]SearchResult, 0, len(byID))
	for _, f := range byID {
		f.result.Score = f.score
		out = append(out, f.result)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
