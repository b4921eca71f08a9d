package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"openclaw/internal/clawerr"
	"openclaw/internal/types"
)

// Project is a grouping for tasks and pipeline items.
type Project struct {
	ID          int64
	Name        string
	Description string
	Status      types.ProjectStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateProject inserts a project in 'active' status.
func (s *Store) CreateProject(ctx context.Context, name, description string) (int64, error) {
	if name == "" {
		return 0, clawerr.NewValidation("project name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, description) VALUES (?, ?)`, name, description)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "create project", Err: err}
	}
	return res.LastInsertId()
}

// GetProject loads one project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, status, created_at, updated_at
		 FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &clawerr.NotFoundError{Entity: "project", ID: id}
	}
	if err != nil {
		return nil, &clawerr.StorageError{Op: "get project", Err: err}
	}
	return &p, nil
}

// ListProjects returns projects, optionally filtered by status.
func (s *Store) ListProjects(ctx context.Context, status types.ProjectStatus) ([]Project, error) {
	query := `SELECT id, name, description, status, created_at, updated_at FROM projects`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "list projects", Err: err}
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetProjectStatus moves a project between lifecycle states.
func (s *Store) SetProjectStatus(ctx context.Context, id int64, status types.ProjectStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), id)
	if err != nil {
		return &clawerr.StorageError{Op: "update project", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &clawerr.NotFoundError{Entity: "project", ID: id}
	}
	return nil
}
