package store

import (
	"context"
	"database/sql"
	"time"

	"openclaw/internal/clawerr"
)

// ContentItem tracks a piece of content through its drafting lifecycle.
type ContentItem struct {
	ID        int64
	Title     string
	Kind      string
	URL       string
	Status    string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddContentItem inserts a content item in 'idea' status.
func (s *Store) AddContentItem(ctx context.Context, title, kind, url string) (int64, error) {
	if title == "" {
		return 0, clawerr.NewValidation("content title is required")
	}
	if kind == "" {
		kind = "article"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO content_items (title, kind, url) VALUES (?, ?, ?)`,
		title, kind, url)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "add content", Err: err}
	}
	return res.LastInsertId()
}

// UpdateContentStatus moves a content item between drafting states and
// optionally appends notes.
func (s *Store) UpdateContentStatus(ctx context.Context, id int64, status, notes string) error {
	if status == "" {
		return clawerr.NewValidation("content status is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_items SET status = ?,
		        notes = CASE WHEN ? != '' THEN ? ELSE notes END,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, status, notes, notes, id)
	if err != nil {
		return &clawerr.StorageError{Op: "update content", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &clawerr.NotFoundError{Entity: "content item", ID: id}
	}
	return nil
}

// ListContentItems returns content items, optionally filtered by status.
func (s *Store) ListContentItems(ctx context.Context, status string) ([]ContentItem, error) {
	query := `SELECT id, title, kind, url, status, notes, created_at, updated_at
	          FROM content_items`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "list content", Err: err}
	}
	defer rows.Close()

	var out []ContentItem
	for rows.Next() {
		var c ContentItem
		var url sql.NullString
		if err := rows.Scan(&c.ID, &c.Title, &c.Kind, &url, &c.Status, &c.Notes,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.URL = url.String
		out = append(out, c)
	}
	return out, rows.Err()
}
