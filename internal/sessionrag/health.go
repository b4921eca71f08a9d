package sessionrag

import (
	"context"
	"database/sql"

	"openclaw/internal/clawerr"
	"openclaw/internal/types"
)

// HealthState classifies the index's overall condition.
type HealthState string

const (
	HealthOK       HealthState = "OK"
	HealthDegraded HealthState = "DEGRADED"
	HealthError    HealthState = "ERROR"
)

// Health is the session index health report.
type Health struct {
	State            HealthState
	SessionsTracked  int
	SessionsComplete int
	SessionsPartial  int
	SessionsFailed   int
	TotalChunks      int
	EmbeddedChunks   int
	ContextFailed    int
	ContextPending   int
}

// CheckHealth inspects the index. ERROR means failed sessions or chunks
// missing embeddings; DEGRADED means partial sessions or failed
// contextualisation; otherwise OK.
func CheckHealth(ctx context.Context, db *sql.DB) (*Health, error) {
	h := &Health{}

	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(status = 'complete'), 0),
		        COALESCE(SUM(status = 'partial'), 0),
		        COALESCE(SUM(status = 'failed'), 0)
		 FROM session_files`).
		Scan(&h.SessionsTracked, &h.SessionsComplete, &h.SessionsPartial, &h.SessionsFailed)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "health sessions", Err: err}
	}

	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(embedding IS NOT NULL), 0),
		        COALESCE(SUM(context_status = ?), 0),
		        COALESCE(SUM(context_status = ?), 0)
		 FROM session_chunks`,
		string(types.ContextFailed), string(types.ContextPending)).
		Scan(&h.TotalChunks, &h.EmbeddedChunks, &h.ContextFailed, &h.ContextPending)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "health chunks", Err: err}
	}

	switch {
	case h.SessionsFailed > 0 || h.EmbeddedChunks < h.TotalChunks:
		h.State = HealthError
	case h.SessionsPartial > 0 || h.ContextFailed > 0:
		h.State = HealthDegraded
	default:
		h.State = HealthOK
	}
	return h, nil
}
