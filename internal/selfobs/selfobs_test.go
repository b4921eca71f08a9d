package selfobs

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openclaw/internal/activity"
	"openclaw/internal/storage"
	"openclaw/internal/store"
	"openclaw/internal/types"
)

func newObserver(t *testing.T) (*Observer, *sql.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	log := activity.NewLog(db.Handle(), nil)
	st := store.New(db.Handle(), nil, nil)
	return NewObserver(db.Handle(), log, st, nil), db.Handle()
}

func TestCaptureRejectsUnknownAction(t *testing.T) {
	o, _ := newObserver(t)
	err := o.Capture(context.Background(), "self_obs_invented", "x", nil)
	require.Error(t, err)
}

func TestCaptureWritesActivity(t *testing.T) {
	o, db := newObserver(t)
	ctx := context.Background()

	require.NoError(t, o.Capture(ctx, ActionTaskDelegated, "sent research to agent", nil))

	var category string
	require.NoError(t, db.QueryRow(
		`SELECT category FROM activity WHERE action = ?`, ActionTaskDelegated).Scan(&category))
	assert.Equal(t, "self_obs_task_preference", category)
}

func TestSynthesizeDelegationSkew(t *testing.T) {
	o, _ := newObserver(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, o.Capture(ctx, ActionTaskDelegated, "delegated a task", nil))
	}
	require.NoError(t, o.Capture(ctx, ActionTaskSelfDone, "did one personally", nil))

	obs, err := o.Synthesize(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotEmpty(t, obs)

	var found *Observation
	for i := range obs {
		if obs[i].Category == types.ObsTaskPreference {
			found = &obs[i]
		}
	}
	require.NotNil(t, found)
	assert.Contains(t, found.Observation, "Delegated 7 of 8")
	assert.NotEmpty(t, found.Evidence)
	assert.GreaterOrEqual(t, found.Confidence, 0.3)
	assert.LessOrEqual(t, found.Confidence, 0.9)
}

func TestSynthesizeCapsAtFive(t *testing.T) {
	o, _ := newObserver(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, o.Capture(ctx, ActionTaskDelegated, "d", nil))
		require.NoError(t, o.Capture(ctx, ActionMessageSent, "m", nil))
		require.NoError(t, o.Capture(ctx, ActionDecisionMade, "y", nil))
		require.NoError(t, o.Capture(ctx, ActionErrorHit, "e", nil))
	}

	obs, err := o.Synthesize(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(obs), 5)
	assert.GreaterOrEqual(t, len(obs), 3)
}

func TestSynthesizeRerunReplacesWeek(t *testing.T) {
	o, _ := newObserver(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, o.Capture(ctx, ActionMessageSent, "m", nil))
	}

	_, err := o.Synthesize(ctx, time.Now().UTC())
	require.NoError(t, err)
	_, err = o.Synthesize(ctx, time.Now().UTC())
	require.NoError(t, err)

	all, err := o.List(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, all, 1, "re-running a week must not duplicate observations")
}

func TestFeedbackPromotesUsefulToMemory(t *testing.T) {
	o, db := newObserver(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, o.Capture(ctx, ActionMessageSent, "m", nil))
	}
	obs, err := o.Synthesize(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.NotEmpty(t, obs)

	require.NoError(t, o.SetFeedback(ctx, obs[0].ID, true, "spot on"))

	listed, err := o.List(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "useful", listed[0].Feedback)
	assert.Equal(t, "spot on", listed[0].FeedbackNote)

	var memories int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM memory WHERE category = 'lesson'`).Scan(&memories))
	assert.Equal(t, 1, memories)
}

func TestFeedbackNotUsefulDoesNotPromote(t *testing.T) {
	o, db := newObserver(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, o.Capture(ctx, ActionMessageSent, "m", nil))
	}
	obs, err := o.Synthesize(ctx, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, o.SetFeedback(ctx, obs[0].ID, false, ""))

	var memories int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM memory`).Scan(&memories))
	assert.Equal(t, 0, memories)
}

func TestTruncateToMonday(t *testing.T) {
	// 2026-08-24 is a Monday.
	monday := time.Date(2026, 8, 24, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-24", truncateToMonday(monday).Format("2006-01-02"))

	sunday := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-24", truncateToMonday(sunday).Format("2006-01-02"))
}
