package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"openclaw/internal/clawerr"
	"openclaw/internal/types"
)

// Task is an operator to-do item.
type Task struct {
	ID          int64
	Title       string
	Description string
	Status      types.TaskStatus
	Priority    int
	ProjectID   *int64
	DueDate     *time.Time
	CompletedAt *time.Time
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskInput carries the writable task fields. Nil pointers in updates
// mean "leave unchanged".
type TaskInput struct {
	Title       *string
	Description *string
	Status      *types.TaskStatus
	Priority    *int
	ProjectID   *int64
	DueDate     *time.Time
	Tags        []string
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	Status    types.TaskStatus
	ProjectID int64
	Tag       string
	DueBefore *time.Time
	Limit     int
}

func validateTaskStatus(status types.TaskStatus) error {
	for _, s := range types.TaskStatuses() {
		if s == status {
			return nil
		}
	}
	return clawerr.NewValidation("invalid task status %q (valid: %s)",
		status, joinStatuses(types.TaskStatuses()))
}

func joinStatuses(statuses []types.TaskStatus) string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return strings.Join(out, ", ")
}

// CreateTask inserts a task in 'todo' status. Priority defaults to 2.
func (s *Store) CreateTask(ctx context.Context, in TaskInput) (int64, error) {
	if in.Title == nil || *in.Title == "" {
		return 0, clawerr.NewValidation("task title is required")
	}
	priority := 2
	if in.Priority != nil {
		priority = *in.Priority
	}
	if priority < 1 || priority > 4 {
		return 0, clawerr.NewValidation("task priority must be 1-4, got %d", priority)
	}
	description := ""
	if in.Description != nil {
		description = *in.Description
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (title, description, priority, project_id, due_date, tags)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		*in.Title, description, priority, in.ProjectID, in.DueDate, marshalTags(in.Tags))
	if err != nil {
		return 0, &clawerr.StorageError{Op: "create task", Err: err}
	}
	return res.LastInsertId()
}

// GetTask loads one task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, status, priority, project_id,
		        due_date, completed_at, tags, created_at, updated_at
		 FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &clawerr.NotFoundError{Entity: "task", ID: id}
	}
	if err != nil {
		return nil, &clawerr.StorageError{Op: "get task", Err: err}
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var tags string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.ProjectID, &t.DueDate, &t.CompletedAt, &tags, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Tags = unmarshalTags(tags)
	return &t, nil
}

// UpdateTask applies a partial update. Moving to 'done' stamps
// completed_at; moving out of 'done' clears it.
func (s *Store) UpdateTask(ctx context.Context, id int64, in TaskInput) error {
	var sets []string
	var args []any

	if in.Title != nil {
		if *in.Title == "" {
			return clawerr.NewValidation("task title cannot be empty")
		}
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *in.Description)
	}
	if in.Status != nil {
		if err := validateTaskStatus(*in.Status); err != nil {
			return err
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*in.Status))
		if *in.Status == types.TaskDone {
			sets = append(sets, "completed_at = CURRENT_TIMESTAMP")
		} else {
			sets = append(sets, "completed_at = NULL")
		}
	}
	if in.Priority != nil {
		if *in.Priority < 1 || *in.Priority > 4 {
			return clawerr.NewValidation("task priority must be 1-4, got %d", *in.Priority)
		}
		sets = append(sets, "priority = ?")
		args = append(args, *in.Priority)
	}
	if in.ProjectID != nil {
		sets = append(sets, "project_id = ?")
		args = append(args, *in.ProjectID)
	}
	if in.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, *in.DueDate)
	}
	if in.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, marshalTags(in.Tags))
	}
	if len(sets) == 0 {
		return clawerr.NewValidation("no task fields to update")
	}

	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &clawerr.StorageError{Op: "update task", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &clawerr.NotFoundError{Entity: "task", ID: id}
	}
	return nil
}

// ListTasks returns tasks matching the filter, most urgent first.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	query := `SELECT id, title, description, status, priority, project_id,
	                 due_date, completed_at, tags, created_at, updated_at
	          FROM tasks WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.ProjectID != 0 {
		query += ` AND project_id = ?`
		args = append(args, f.ProjectID)
	}
	if f.Tag != "" {
		query += ` AND tags LIKE ?`
		args = append(args, `%"`+f.Tag+`"%`)
	}
	if f.DueBefore != nil {
		query += ` AND due_date IS NOT NULL AND due_date <= ?`
		args = append(args, *f.DueBefore)
	}
	query += ` ORDER BY priority ASC, due_date IS NULL, due_date ASC, created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "list tasks", Err: err}
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteTask removes a task permanently.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return &clawerr.StorageError{Op: "delete task", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &clawerr.NotFoundError{Entity: "task", ID: id}
	}
	return nil
}
