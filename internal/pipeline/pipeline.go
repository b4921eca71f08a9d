// Package pipeline implements the typed development work-item state
// machine: features with per-type stage sets, child stories, sub-tasks,
// append-only notes, and atomic stage changes with their audit records.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"openclaw/internal/activity"
	"openclaw/internal/clawerr"
	"openclaw/internal/logging"
	"openclaw/internal/types"
)

// Item is one pipeline work item.
type Item struct {
	ID                 int64
	Type               types.ItemType
	ParentID           *int64
	ProjectID          *int64
	Title              string
	Description        string
	Stage              string
	SpecDoc            string
	AcceptanceCriteria []string
	ApprovedBy         string
	ApprovedAt         *time.Time
	BranchName         string
	ReviewNotes        string
	ReviewPassed       bool
	Priority           int
	AssignedAgent      string
	AssignedTo         string
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Task is a sub-task under a pipeline item.
type Task struct {
	ID          int64
	PipelineID  int64
	Title       string
	Description string
	Status      types.PipelineTaskStatus
	AssignedTo  string
	Output      string
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// Note is an append-only agent note on a pipeline item.
type Note struct {
	ID         int64
	PipelineID int64
	AgentRole  string
	NoteType   types.NoteType
	Content    string
	CreatedAt  time.Time
}

// Service implements the pipeline operations.
type Service struct {
	db       *sql.DB
	activity *activity.Log
	logger   logging.Logger

	// AutoTransitions enables the advisory parent-stage rules: a story
	// entering in-progress moves an idle parent feature to building, and
	// the last story reaching done moves the parent to final-review.
	AutoTransitions bool
}

// NewService creates the pipeline service.
func NewService(db *sql.DB, log *activity.Log, logger logging.Logger) *Service {
	return &Service{db: db, activity: log, logger: logging.OrNop(logger)}
}

// CreateInput carries the writable fields for Create.
type CreateInput struct {
	Type        types.ItemType
	ParentID    *int64
	ProjectID   *int64
	Title       string
	Description string
	Priority    int
	SpecDoc     string
}

// Create inserts a work item at the first stage of its type's machine.
// Only stories may have a parent, and the parent must be a feature.
func (s *Service) Create(ctx context.Context, in CreateInput) (int64, error) {
	if in.Title == "" {
		return 0, clawerr.NewValidation("pipeline item title is required")
	}
	if in.Type == "" {
		in.Type = types.ItemFeature
	}
	stages := types.ValidStages(in.Type)
	if len(stages) == 0 {
		return 0, clawerr.NewValidation("invalid pipeline item type %q", in.Type)
	}
	if in.Priority == 0 {
		in.Priority = 2
	}
	if in.Priority < 1 || in.Priority > 4 {
		return 0, clawerr.NewValidation("priority must be 1-4, got %d", in.Priority)
	}

	if in.ParentID != nil {
		if in.Type != types.ItemStory {
			return 0, clawerr.NewValidation("only stories may have a parent, got type %q", in.Type)
		}
		parent, err := s.Get(ctx, *in.ParentID)
		if err != nil {
			return 0, err
		}
		if parent.Type != types.ItemFeature {
			return 0, clawerr.NewValidation("parent %d is a %s; stories attach to features only",
				parent.ID, parent.Type)
		}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline (type, parent_id, project_id, title, description, stage, spec_doc, priority)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(in.Type), in.ParentID, in.ProjectID, in.Title, in.Description,
		stages[0], in.SpecDoc, in.Priority)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "create pipeline item", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	s.record(ctx, id, "pipeline_item_created",
		fmt.Sprintf("%s created: %s", in.Type, in.Title),
		map[string]any{"type": string(in.Type), "stage": stages[0]})
	return id, nil
}

// Get loads one item by id.
func (s *Service) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, selectItem+` WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &clawerr.NotFoundError{Entity: "pipeline item", ID: id}
	}
	if err != nil {
		return nil, &clawerr.StorageError{Op: "get pipeline item", Err: err}
	}
	return item, nil
}

const selectItem = `SELECT id, type, parent_id, project_id, title, description, stage,
       spec_doc, acceptance_criteria, COALESCE(approved_by, ''), approved_at,
       COALESCE(branch_name, ''), review_notes, review_passed, priority,
       COALESCE(assigned_agent, ''), COALESCE(assigned_to, ''),
       started_at, completed_at, created_at, updated_at
FROM pipeline`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var it Item
	var criteria string
	var reviewPassed int
	err := row.Scan(&it.ID, &it.Type, &it.ParentID, &it.ProjectID, &it.Title, &it.Description,
		&it.Stage, &it.SpecDoc, &criteria, &it.ApprovedBy, &it.ApprovedAt,
		&it.BranchName, &it.ReviewNotes, &reviewPassed, &it.Priority,
		&it.AssignedAgent, &it.AssignedTo, &it.StartedAt, &it.CompletedAt,
		&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	it.ReviewPassed = reviewPassed != 0
	if criteria != "" {
		json.Unmarshal([]byte(criteria), &it.AcceptanceCriteria)
	}
	return &it, nil
}

// UpdateStage validates and applies a stage transition. The update and
// its activity record commit in one transaction; source attributes the
// change on the activity row (operator session, agent label, "auto").
// Transitions are monotonic within the type's stage order except into
// "blocked", which is reachable from anywhere (for types that have it)
// and can return to any stage. Setting the current stage again is a
// no-op and produces no activity.
func (s *Service) UpdateStage(ctx context.Context, id int64, stage, source string) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Stage == stage {
		return nil
	}
	if !types.IsValidStage(item.Type, stage) {
		return clawerr.NewValidation("invalid stage %q for %s (valid: %s)",
			stage, item.Type, strings.Join(types.ValidStages(item.Type), ", "))
	}
	if stage != "blocked" && item.Stage != "blocked" {
		fromRank := types.StageRank(item.Type, item.Stage)
		toRank := types.StageRank(item.Type, stage)
		// Legacy stored stages rank -1 and may move anywhere valid.
		if fromRank >= 0 && toRank < fromRank {
			return clawerr.NewValidation("cannot move %s from %q back to %q",
				item.Type, item.Stage, stage)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &clawerr.StorageError{Op: "update stage", Err: err}
	}
	defer tx.Rollback()

	stamp := ""
	switch stage {
	case "building", "in-progress":
		stamp = ", started_at = COALESCE(started_at, CURRENT_TIMESTAMP)"
	case "live", "done", "resolved", "accepted", "validated", "invalidated":
		stamp = ", completed_at = CURRENT_TIMESTAMP"
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE pipeline SET stage = ?, updated_at = CURRENT_TIMESTAMP`+stamp+` WHERE id = ?`,
		stage, id)
	if err != nil {
		return &clawerr.StorageError{Op: "update stage", Err: err}
	}

	err = s.activity.AppendTx(ctx, tx, activity.Entry{
		Action:      "pipeline_stage_changed",
		Category:    "pipeline",
		Description: fmt.Sprintf("%s: %s -> %s", item.Title, item.Stage, stage),
		Metadata:    map[string]any{"from": item.Stage, "to": stage, "title": item.Title},
		Source:      source,
		RelatedID:   fmt.Sprintf("pipeline:%d", id),
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &clawerr.StorageError{Op: "update stage", Err: err}
	}

	if s.AutoTransitions && item.Type == types.ItemStory && item.ParentID != nil {
		s.applyAutoTransitions(ctx, *item.ParentID, stage)
	}
	return nil
}

// applyAutoTransitions moves a parent feature forward based on story
// progress. Failures are logged only; the story transition already
// committed.
func (s *Service) applyAutoTransitions(ctx context.Context, parentID int64, storyStage string) {
	parent, err := s.Get(ctx, parentID)
	if err != nil {
		s.logger.Warn("auto-transition: load parent %d: %v", parentID, err)
		return
	}

	switch storyStage {
	case "in-progress":
		if parent.Stage == "spec-review" || parent.Stage == "spec" || parent.Stage == "idea" {
			return // feature not yet approved for building
		}
		if parent.Stage != "building" && types.IsValidStage(parent.Type, "building") &&
			types.StageRank(parent.Type, parent.Stage) < types.StageRank(parent.Type, "building") {
			if err := s.UpdateStage(ctx, parentID, "building", "auto"); err != nil {
				s.logger.Warn("auto-transition to building failed for %d: %v", parentID, err)
			}
		}
	case "done":
		stats, err := s.StoryStats(ctx, parentID)
		if err != nil {
			s.logger.Warn("auto-transition: story stats for %d: %v", parentID, err)
			return
		}
		if stats.Total > 0 && stats.Done == stats.Total && parent.Stage == "building" {
			if err := s.UpdateStage(ctx, parentID, "final-review", "auto"); err != nil {
				s.logger.Warn("auto-transition to final-review failed for %d: %v", parentID, err)
			}
		}
	}
}

// Approve records spec approval and moves a feature out of spec-review.
// Only features in spec-review can be approved; "ready" is not in the
// feature stage set, so the approved stage is building. source attributes
// the change on the activity row.
func (s *Service) Approve(ctx context.Context, id int64, approvedBy, source string) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Type != types.ItemFeature {
		return clawerr.NewValidation("only features are approved, %d is a %s", id, item.Type)
	}
	if item.Stage != "spec-review" {
		return clawerr.NewValidation("feature %d is in %q, approval requires spec-review", id, item.Stage)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &clawerr.StorageError{Op: "approve", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE pipeline SET stage = 'building', approved_by = ?, approved_at = CURRENT_TIMESTAMP,
		        started_at = COALESCE(started_at, CURRENT_TIMESTAMP),
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, approvedBy, id)
	if err != nil {
		return &clawerr.StorageError{Op: "approve", Err: err}
	}
	err = s.activity.AppendTx(ctx, tx, activity.Entry{
		Action:      "pipeline_stage_changed",
		Category:    "pipeline",
		Description: fmt.Sprintf("%s approved by %s", item.Title, approvedBy),
		Metadata:    map[string]any{"from": item.Stage, "to": "building", "title": item.Title, "approved_by": approvedBy},
		Source:      source,
		RelatedID:   fmt.Sprintf("pipeline:%d", id),
	})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &clawerr.StorageError{Op: "approve", Err: err}
	}
	return nil
}

// SetSpec stores a feature's spec document and acceptance criteria.
func (s *Service) SetSpec(ctx context.Context, id int64, specDoc string, criteria []string) error {
	raw, err := json.Marshal(criteria)
	if err != nil {
		return &clawerr.StorageError{Op: "set spec", Err: err}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline SET spec_doc = ?, acceptance_criteria = ?,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, specDoc, string(raw), id)
	if err != nil {
		return &clawerr.StorageError{Op: "set spec", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &clawerr.NotFoundError{Entity: "pipeline item", ID: id}
	}
	return nil
}

// ListFilter narrows List.
type ListFilter struct {
	Type            types.ItemType
	Stage           string
	ParentID        int64
	ProjectID       int64
	IncludeFinished bool // include done and live items
}

// List returns items matching the filter. Finished items (done, live)
// are excluded unless requested.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Item, error) {
	query := selectItem + ` WHERE 1=1`
	var args []any
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, f.Stage)
	}
	if f.ParentID != 0 {
		query += ` AND parent_id = ?`
		args = append(args, f.ParentID)
	}
	if f.ProjectID != 0 {
		query += ` AND project_id = ?`
		args = append(args, f.ProjectID)
	}
	if !f.IncludeFinished {
		query += ` AND stage NOT IN ('done', 'live')`
	}
	query += ` ORDER BY priority ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "list pipeline", Err: err}
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// Children returns the child items of a feature, oldest first.
func (s *Service) Children(ctx context.Context, parentID int64) ([]Item, error) {
	return s.List(ctx, ListFilter{ParentID: parentID, IncludeFinished: true})
}

// StoryStats summarises the child stories of a feature.
type StoryStatsResult struct {
	Total   int
	Done    int
	ByStage map[string]int
}

// StoryStats counts a feature's child stories by stage.
func (s *Service) StoryStats(ctx context.Context, parentID int64) (*StoryStatsResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*) FROM pipeline
		 WHERE parent_id = ? AND type = 'story'
		 GROUP BY stage`, parentID)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "story stats", Err: err}
	}
	defer rows.Close()

	stats := &StoryStatsResult{ByStage: make(map[string]int)}
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		stats.ByStage[stage] = count
		stats.Total += count
		if stage == "done" {
			stats.Done = count
		}
	}
	return stats, rows.Err()
}

// record writes an activity entry outside any transaction. Failures are
// logged only.
func (s *Service) record(ctx context.Context, id int64, action, description string, metadata map[string]any) {
	err := s.activity.Append(ctx, activity.Entry{
		Action:      action,
		Category:    "pipeline",
		Description: description,
		Metadata:    metadata,
		RelatedID:   fmt.Sprintf("pipeline:%d", id),
	})
	if err != nil {
		s.logger.Warn("pipeline activity append failed: %v", err)
	}
}
