// Package usage records per-request token usage and cost, and maintains
// the per-session rollup. Rows are append-only; the session rollup is an
// upsert keyed by session id.
package usage

import (
	"context"
	"database/sql"
	"time"

	"openclaw/internal/clawerr"
	"openclaw/internal/logging"
)

// Record is one LLM or embedding request worth of accounting.
type Record struct {
	SessionID  string
	Source     string
	Model      string
	Provider   string
	TokensIn   int
	TokensOut  int
	CostUSD    float64
	TaskType   string
	TaskDetail string
	LatencyMS  int64
}

// Summary aggregates usage over some grouping.
type Summary struct {
	TokensIn  int64
	TokensOut int64
	CostUSD   float64
	Requests  int64
}

// Recorder writes usage rows to the shared database.
type Recorder struct {
	db     *sql.DB
	logger logging.Logger
}

// NewRecorder creates a usage recorder.
func NewRecorder(db *sql.DB, logger logging.Logger) *Recorder {
	return &Recorder{db: db, logger: logging.OrNop(logger)}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Record appends a token_usage row and, when the record carries a session
// id, upserts the session_costs rollup in the same transaction.
func (r *Recorder) Record(ctx context.Context, rec Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &clawerr.StorageError{Op: "usage.record", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO token_usage
			(session_id, source, model, provider, tokens_in, tokens_out, cost_usd, task_type, task_detail, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullable(rec.SessionID), nullable(rec.Source), rec.Model, rec.Provider,
		rec.TokensIn, rec.TokensOut, rec.CostUSD,
		nullable(rec.TaskType), nullable(rec.TaskDetail), rec.LatencyMS,
	)
	if err != nil {
		return &clawerr.StorageError{Op: "usage.record", Err: err}
	}

	if rec.SessionID != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO session_costs (session_id, tokens_in, tokens_out, cost_usd, requests, updated_at)
			 VALUES (?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
			 ON CONFLICT(session_id) DO UPDATE SET
				tokens_in = tokens_in + excluded.tokens_in,
				tokens_out = tokens_out + excluded.tokens_out,
				cost_usd = cost_usd + excluded.cost_usd,
				requests = requests + 1,
				updated_at = CURRENT_TIMESTAMP`,
			rec.SessionID, rec.TokensIn, rec.TokensOut, rec.CostUSD,
		)
		if err != nil {
			return &clawerr.StorageError{Op: "usage.session_cost", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &clawerr.StorageError{Op: "usage.record", Err: err}
	}
	return nil
}

// SessionCost returns the rollup for one session.
func (r *Recorder) SessionCost(ctx context.Context, sessionID string) (Summary, error) {
	var s Summary
	err := r.db.QueryRowContext(ctx,
		`SELECT tokens_in, tokens_out, cost_usd, requests FROM session_costs WHERE session_id = ?`,
		sessionID,
	).Scan(&s.TokensIn, &s.TokensOut, &s.CostUSD, &s.Requests)
	if err == sql.ErrNoRows {
		return Summary{}, nil
	}
	if err != nil {
		return Summary{}, &clawerr.StorageError{Op: "usage.session_cost", Err: err}
	}
	return s, nil
}

// ByProvider aggregates usage per provider since the given time.
func (r *Recorder) ByProvider(ctx context.Context, since time.Time) (map[string]Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider, SUM(tokens_in), SUM(tokens_out), SUM(cost_usd), COUNT(*)
		 FROM token_usage WHERE created_at >= ? GROUP BY provider`,
		since.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "usage.by_provider", Err: err}
	}
	defer rows.Close()

	out := make(map[string]Summary)
	for rows.Next() {
		var provider string
		var s Summary
		if err := rows.Scan(&provider, &s.TokensIn, &s.TokensOut, &s.CostUSD, &s.Requests); err != nil {
			continue
		}
		out[provider] = s
	}
	return out, rows.Err()
}
