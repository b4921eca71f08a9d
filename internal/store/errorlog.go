package store

import (
	"context"
	"database/sql"
	"time"

	"openclaw/internal/clawerr"
)

// ErrorRecord is a persisted component failure, kept queryable for the
// weekly self-observation synthesis.
type ErrorRecord struct {
	ID        int64
	Component string
	Message   string
	Detail    string
	CreatedAt time.Time
}

// LogError persists a component failure. Unlike the activity log this is
// allowed to fail loudly; callers who must not fail use activity.Tool.
func (s *Store) LogError(ctx context.Context, component, message, detail string) error {
	if component == "" || message == "" {
		return clawerr.NewValidation("error log component and message are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO error_log (component, message, detail) VALUES (?, ?, ?)`,
		component, message, detail)
	if err != nil {
		return &clawerr.StorageError{Op: "log error", Err: err}
	}
	return nil
}

// RecentErrors returns errors since the cutoff, newest first.
func (s *Store) RecentErrors(ctx context.Context, since time.Time, limit int) ([]ErrorRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, component, message, detail, created_at
		 FROM error_log
		 WHERE created_at >= ?
		 ORDER BY created_at DESC LIMIT ?`, since, limit)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "recent errors", Err: err}
	}
	defer rows.Close()

	var out []ErrorRecord
	for rows.Next() {
		var e ErrorRecord
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Component, &e.Message, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}
