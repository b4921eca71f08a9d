package pipeline

import (
	"context"
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openclaw/internal/activity"
	"openclaw/internal/clawerr"
	"openclaw/internal/storage"
	"openclaw/internal/types"
)

func newTestService(t *testing.T) (*Service, *sql.DB, *activity.Log) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	log := activity.NewLog(db.Handle(), nil)
	return NewService(db.Handle(), log, nil), db.Handle(), log
}

func TestCreateStartsAtFirstStage(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	featID, err := s.Create(ctx, CreateInput{Type: types.ItemFeature, Title: "dark mode"})
	require.NoError(t, err)
	feat, err := s.Get(ctx, featID)
	require.NoError(t, err)
	assert.Equal(t, "idea", feat.Stage)

	riskID, err := s.Create(ctx, CreateInput{Type: types.ItemRisk, Title: "vendor lock-in"})
	require.NoError(t, err)
	risk, err := s.Get(ctx, riskID)
	require.NoError(t, err)
	assert.Equal(t, "identified", risk.Stage)
}

func TestParentMustBeFeature(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	storyID, err := s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "standalone"})
	require.NoError(t, err)

	// Story under a story is rejected.
	_, err = s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "child", ParentID: &storyID})
	require.Error(t, err)

	// Non-story with a parent is rejected.
	featID, err := s.Create(ctx, CreateInput{Type: types.ItemFeature, Title: "parent"})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateInput{Type: types.ItemRisk, Title: "r", ParentID: &featID})
	require.Error(t, err)

	// Story under a feature works.
	_, err = s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "ok", ParentID: &featID})
	require.NoError(t, err)
}

func TestStageValidationPerType(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	riskID, err := s.Create(ctx, CreateInput{Type: types.ItemRisk, Title: "risk"})
	require.NoError(t, err)

	// "building" belongs to features, not risks, even though the stored
	// stage union admits it.
	err = s.UpdateStage(ctx, riskID, "building", "main")
	require.Error(t, err)
	var vErr *clawerr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, err.Error(), "mitigating")

	require.NoError(t, s.UpdateStage(ctx, riskID, "mitigating", "main"))
}

func TestStageMonotonic(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateInput{Type: types.ItemFeature, Title: "f"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStage(ctx, id, "spec", "main"))
	require.NoError(t, s.UpdateStage(ctx, id, "spec-review", "main"))

	// No going backwards.
	err = s.UpdateStage(ctx, id, "idea", "main")
	require.Error(t, err)
}

func TestBlockedEscapesMonotonicity(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "story"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStage(ctx, id, "in-progress", "main"))
	require.NoError(t, s.UpdateStage(ctx, id, "qa", "main"))

	// Blocked from anywhere, then back to an earlier stage.
	require.NoError(t, s.UpdateStage(ctx, id, "blocked", "main"))
	require.NoError(t, s.UpdateStage(ctx, id, "in-progress", "main"))
}

func TestSameStageIsNoOp(t *testing.T) {
	s, _, log := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "story"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStage(ctx, id, "in-progress", "main"))

	before, err := log.Recent(ctx, 100, activity.Filter{Action: "pipeline_stage_changed"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateStage(ctx, id, "in-progress", "main"))
	after, err := log.Recent(ctx, 100, activity.Filter{Action: "pipeline_stage_changed"})
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after), "same-stage update must not log activity")
}

func TestStageChangeWritesAtomicActivity(t *testing.T) {
	s, _, log := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateInput{Type: types.ItemFeature, Title: "audit me"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStage(ctx, id, "spec", "main"))

	entries, err := log.Recent(ctx, 10, activity.Filter{Action: "pipeline_stage_changed"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline", entries[0].Category)
	assert.Equal(t, "idea", entries[0].Metadata["from"])
	assert.Equal(t, "spec", entries[0].Metadata["to"])
	assert.Equal(t, "audit me", entries[0].Metadata["title"])
	assert.Equal(t, "main", entries[0].Source)
}

func TestStageChangeAttributesSource(t *testing.T) {
	s, _, log := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "s"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStage(ctx, id, "in-progress", "developer-a1b2c3d4"))

	entries, err := log.Recent(ctx, 10, activity.Filter{Source: "developer-a1b2c3d4"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline_stage_changed", entries[0].Action)
}

func TestApproveAttributesSource(t *testing.T) {
	s, _, log := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateInput{Type: types.ItemFeature, Title: "f"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStage(ctx, id, "spec", "main"))
	require.NoError(t, s.UpdateStage(ctx, id, "spec-review", "main"))
	require.NoError(t, s.Approve(ctx, id, "operator", "main"))

	entries, err := log.Recent(ctx, 10, activity.Filter{
		Action: "pipeline_stage_changed", RelatedID: "pipeline:" + itoa(id)})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "main", entries[0].Source)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestApprove(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateInput{Type: types.ItemFeature, Title: "f"})
	require.NoError(t, err)

	// Not yet in spec-review.
	require.Error(t, s.Approve(ctx, id, "operator", "main"))

	require.NoError(t, s.UpdateStage(ctx, id, "spec", "main"))
	require.NoError(t, s.UpdateStage(ctx, id, "spec-review", "main"))
	require.NoError(t, s.Approve(ctx, id, "operator", "main"))

	feat, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "building", feat.Stage)
	assert.Equal(t, "operator", feat.ApprovedBy)
	require.NotNil(t, feat.ApprovedAt)
	require.NotNil(t, feat.StartedAt)
}

func TestListExcludesFinished(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	openID, err := s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "open"})
	require.NoError(t, err)
	doneID, err := s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "done"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStage(ctx, doneID, "in-progress", "main"))
	require.NoError(t, s.UpdateStage(ctx, doneID, "qa", "main"))
	require.NoError(t, s.UpdateStage(ctx, doneID, "done", "main"))

	open, err := s.List(ctx, ListFilter{Type: types.ItemStory})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, openID, open[0].ID)

	all, err := s.List(ctx, ListFilter{Type: types.ItemStory, IncludeFinished: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStoryStats(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	featID, err := s.Create(ctx, CreateInput{Type: types.ItemFeature, Title: "f"})
	require.NoError(t, err)
	for _, target := range []string{"done", "in-progress", ""} {
		id, err := s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "s", ParentID: &featID})
		require.NoError(t, err)
		if target == "done" {
			require.NoError(t, s.UpdateStage(ctx, id, "in-progress", "main"))
			require.NoError(t, s.UpdateStage(ctx, id, "qa", "main"))
			require.NoError(t, s.UpdateStage(ctx, id, "done", "main"))
		} else if target != "" {
			require.NoError(t, s.UpdateStage(ctx, id, target, "main"))
		}
	}

	stats, err := s.StoryStats(ctx, featID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 1, stats.ByStage["backlog"])
	assert.Equal(t, 1, stats.ByStage["in-progress"])
}

func TestAutoTransitions(t *testing.T) {
	s, _, log := newTestService(t)
	s.AutoTransitions = true
	ctx := context.Background()

	featID, err := s.Create(ctx, CreateInput{Type: types.ItemFeature, Title: "f"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStage(ctx, featID, "spec", "main"))
	require.NoError(t, s.UpdateStage(ctx, featID, "spec-review", "main"))
	require.NoError(t, s.Approve(ctx, featID, "operator", "main"))

	storyID, err := s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "s", ParentID: &featID})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStage(ctx, storyID, "in-progress", "main"))
	require.NoError(t, s.UpdateStage(ctx, storyID, "qa", "main"))
	require.NoError(t, s.UpdateStage(ctx, storyID, "done", "main"))

	feat, err := s.Get(ctx, featID)
	require.NoError(t, err)
	assert.Equal(t, "final-review", feat.Stage, "all stories done moves feature to final-review")

	// The automatic parent move is attributed to "auto", not the story's
	// own source.
	entries, err := log.Recent(ctx, 10, activity.Filter{
		Source: "auto", RelatedID: "pipeline:" + itoa(featID)})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "final-review", entries[0].Metadata["to"])
}

func TestPipelineTasksAndNotes(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateInput{Type: types.ItemStory, Title: "s"})
	require.NoError(t, err)

	taskID, err := s.AddTask(ctx, id, "write handler", "")
	require.NoError(t, err)
	require.NoError(t, s.UpdateTaskStatus(ctx, taskID, types.PipelineTaskDone, "merged"))

	tasks, err := s.Tasks(ctx, id)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, types.PipelineTaskDone, tasks[0].Status)
	assert.Equal(t, "merged", tasks[0].Output)
	assert.NotNil(t, tasks[0].CompletedAt)

	_, err = s.AddNote(ctx, id, "developer", types.NoteHandover, "auth middleware is half done")
	require.NoError(t, err)
	_, err = s.AddNote(ctx, id, "qa", types.NoteBlocker, "staging is down")
	require.NoError(t, err)

	notes, err := s.Notes(ctx, id)
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	latest, err := s.LatestNote(ctx, id, types.NoteBlocker)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "staging is down", latest.Content)
}

func TestNotesRequireExistingItem(t *testing.T) {
	s, _, _ := newTestService(t)
	_, err := s.AddNote(context.Background(), 404, "developer", types.NoteInfo, "x")
	require.Error(t, err)
	assert.True(t, clawerr.IsNotFound(err))
}
