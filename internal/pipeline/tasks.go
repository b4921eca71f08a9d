package pipeline

import (
	"context"
	"database/sql"
	"errors"

	"openclaw/internal/clawerr"
	"openclaw/internal/types"
)

// AddTask attaches a sub-task to a pipeline item.
func (s *Service) AddTask(ctx context.Context, pipelineID int64, title, description string) (int64, error) {
	if title == "" {
		return 0, clawerr.NewValidation("task title is required")
	}
	if _, err := s.Get(ctx, pipelineID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_tasks (pipeline_id, title, description) VALUES (?, ?, ?)`,
		pipelineID, title, description)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "add pipeline task", Err: err}
	}
	return res.LastInsertId()
}

// UpdateTaskStatus moves a sub-task between todo/doing/done/blocked and
// records completion time and optional output.
func (s *Service) UpdateTaskStatus(ctx context.Context, taskID int64, status types.PipelineTaskStatus, output string) error {
	switch status {
	case types.PipelineTaskTodo, types.PipelineTaskDoing, types.PipelineTaskDone, types.PipelineTaskBlocked:
	default:
		return clawerr.NewValidation("invalid pipeline task status %q", status)
	}

	completed := "NULL"
	if status == types.PipelineTaskDone {
		completed = "CURRENT_TIMESTAMP"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_tasks
		 SET status = ?, completed_at = `+completed+`,
		     output = CASE WHEN ? != '' THEN ? ELSE output END
		 WHERE id = ?`, string(status), output, output, taskID)
	if err != nil {
		return &clawerr.StorageError{Op: "update pipeline task", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &clawerr.NotFoundError{Entity: "pipeline task", ID: taskID}
	}
	return nil
}

// Tasks lists the sub-tasks of a pipeline item, oldest first.
func (s *Service) Tasks(ctx context.Context, pipelineID int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline_id, title, description, status,
		        COALESCE(assigned_to, ''), COALESCE(output, ''), completed_at, created_at
		 FROM pipeline_tasks WHERE pipeline_id = ? ORDER BY created_at ASC, id ASC`,
		pipelineID)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "list pipeline tasks", Err: err}
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.PipelineID, &t.Title, &t.Description, &t.Status,
			&t.AssignedTo, &t.Output, &t.CompletedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddNote appends a note to a pipeline item. Notes are append-only;
// there is no update or delete path.
func (s *Service) AddNote(ctx context.Context, pipelineID int64, agentRole string, noteType types.NoteType, content string) (int64, error) {
	if content == "" {
		return 0, clawerr.NewValidation("note content is required")
	}
	if agentRole == "" {
		return 0, clawerr.NewValidation("note agent role is required")
	}
	if _, err := s.Get(ctx, pipelineID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_notes (pipeline_id, agent_role, note_type, content)
		 VALUES (?, ?, ?, ?)`,
		pipelineID, agentRole, string(noteType), content)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "add pipeline note", Err: err}
	}
	return res.LastInsertId()
}

// Notes lists a pipeline item's notes, oldest first.
func (s *Service) Notes(ctx context.Context, pipelineID int64) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline_id, agent_role, note_type, content, created_at
		 FROM pipeline_notes WHERE pipeline_id = ? ORDER BY created_at ASC, id ASC`,
		pipelineID)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "list pipeline notes", Err: err}
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.PipelineID, &n.AgentRole, &n.NoteType, &n.Content, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// LatestNote returns the newest note of a given type, or nil.
func (s *Service) LatestNote(ctx context.Context, pipelineID int64, noteType types.NoteType) (*Note, error) {
	var n Note
	err := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline_id, agent_role, note_type, content, created_at
		 FROM pipeline_notes
		 WHERE pipeline_id = ? AND note_type = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		pipelineID, string(noteType)).
		Scan(&n.ID, &n.PipelineID, &n.AgentRole, &n.NoteType, &n.Content, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &clawerr.StorageError{Op: "latest pipeline note", Err: err}
	}
	return &n, nil
}
