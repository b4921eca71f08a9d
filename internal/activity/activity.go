// Package activity implements the append-only audit stream. Every
// observable step of the runtime lands here; pipeline stage changes are
// appended inside the same transaction as the stage update.
package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"openclaw/internal/clawerr"
	"openclaw/internal/logging"
)

// Entry is one activity row.
type Entry struct {
	ID          int64
	Action      string
	Category    string
	Description string
	Metadata    map[string]any
	SessionID   string
	Source      string
	RelatedID   string
	CreatedAt   time.Time
}

// Filter narrows activity queries.
type Filter struct {
	Source    string
	RelatedID string
	Category  string
	Action    string
	Since     time.Time
	Until     time.Time
	Search    string
}

// Log writes and reads the activity stream.
type Log struct {
	db     *sql.DB
	logger logging.Logger
}

// NewLog creates an activity log over the shared database.
func NewLog(db *sql.DB, logger logging.Logger) *Log {
	return &Log{db: db, logger: logging.OrNop(logger)}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Record appends a simple entry.
func (l *Log) Record(ctx context.Context, action, description string, opts ...Option) error {
	entry := Entry{Action: action, Description: description}
	for _, opt := range opts {
		opt(&entry)
	}
	return l.Append(ctx, entry)
}

// Option adjusts a simple Record call.
type Option func(*Entry)

// WithCategory sets the entry category.
func WithCategory(category string) Option {
	return func(e *Entry) { e.Category = category }
}

// WithSource sets the entry source.
func WithSource(source string) Option {
	return func(e *Entry) { e.Source = source }
}

// WithRelated sets the typed related id ("kind:id").
func WithRelated(relatedID string) Option {
	return func(e *Entry) { e.RelatedID = relatedID }
}

// Append appends a full entry.
func (l *Log) Append(ctx context.Context, entry Entry) error {
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO activity (action, category, description, metadata, session_id, source, related_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Action, nullable(entry.Category), nullable(entry.Description), metadata,
		nullable(entry.SessionID), nullable(entry.Source), nullable(entry.RelatedID),
	)
	if err != nil {
		return &clawerr.StorageError{Op: "activity.append", Err: err}
	}
	return nil
}

// AppendTx appends an entry inside an existing transaction. Used by the
// pipeline so the stage update and its audit record commit atomically.
func (l *Log) AppendTx(ctx context.Context, tx *sql.Tx, entry Entry) error {
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO activity (action, category, description, metadata, session_id, source, related_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Action, nullable(entry.Category), nullable(entry.Description), metadata,
		nullable(entry.SessionID), nullable(entry.Source), nullable(entry.RelatedID),
	)
	if err != nil {
		return &clawerr.StorageError{Op: "activity.append", Err: err}
	}
	return nil
}

func marshalMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "activity.metadata", Err: err}
	}
	return string(data), nil
}

const selectColumns = `id, action, COALESCE(category, ''), COALESCE(description, ''),
	COALESCE(metadata, ''), COALESCE(session_id, ''), COALESCE(source, ''),
	COALESCE(related_id, ''), created_at`

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var metadata string
	if err := rows.Scan(&e.ID, &e.Action, &e.Category, &e.Description, &metadata,
		&e.SessionID, &e.Source, &e.RelatedID, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &e.Metadata)
	}
	return e, nil
}

// Recent returns the newest entries matching the filter.
func (l *Log) Recent(ctx context.Context, limit int, filter Filter) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT " + selectColumns + " FROM activity WHERE 1=1"
	var args []any
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if filter.RelatedID != "" {
		query += " AND related_id = ?"
		args = append(args, filter.RelatedID)
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format("2006-01-02 15:04:05"))
	}
	if !filter.Until.IsZero() {
		query += " AND created_at <= ?"
		args = append(args, filter.Until.UTC().Format("2006-01-02 15:04:05"))
	}
	if filter.Search != "" {
		query += " AND (description LIKE ? OR action LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "activity.recent", Err: err}
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats returns entry counts per category since the given time.
func (l *Log) Stats(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT COALESCE(category, 'uncategorized'), COUNT(*)
		 FROM activity WHERE created_at >= ? GROUP BY category`,
		since.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "activity.stats", Err: err}
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			continue
		}
		stats[category] = count
	}
	return stats, rows.Err()
}

// Digest returns a compact recent-history view: the newest entry per
// distinct action within the period, up to limit.
func (l *Log) Digest(ctx context.Context, since time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM activity
		 WHERE id IN (
			SELECT MAX(id) FROM activity WHERE created_at >= ? GROUP BY action
		 )
		 ORDER BY created_at DESC LIMIT ?`,
		since.UTC().Format("2006-01-02 15:04:05"), limit,
	)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "activity.digest", Err: err}
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
