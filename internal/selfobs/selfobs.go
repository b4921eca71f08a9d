// Package selfobs captures behavioural signals about the operator into
// the activity stream and synthesises them into weekly observations the
// operator can confirm or reject.
package selfobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"openclaw/internal/activity"
	"openclaw/internal/clawerr"
	"openclaw/internal/logging"
	"openclaw/internal/store"
	"openclaw/internal/types"
)

// Signal actions recorded into the activity stream, by category.
const (
	ActionTaskDelegated   = "self_obs_task_delegated"
	ActionTaskSelfDone    = "self_obs_task_self_done"
	ActionMessageSent     = "self_obs_message_sent"
	ActionDecisionMade    = "self_obs_decision_made"
	ActionDecisionDropped = "self_obs_decision_dropped"
	ActionErrorHit        = "self_obs_error_hit"
)

var actionCategories = map[string]types.ObservationCategory{
	ActionTaskDelegated:   types.ObsTaskPreference,
	ActionTaskSelfDone:    types.ObsTaskPreference,
	ActionMessageSent:     types.ObsCommunication,
	ActionDecisionMade:    types.ObsDecision,
	ActionDecisionDropped: types.ObsDecision,
	ActionErrorHit:        types.ObsError,
}

// Observer captures signals and synthesises observations.
type Observer struct {
	db       *sql.DB
	activity *activity.Log
	store    *store.Store
	logger   logging.Logger
}

// NewObserver creates an observer over the shared database.
func NewObserver(db *sql.DB, log *activity.Log, st *store.Store, logger logging.Logger) *Observer {
	return &Observer{db: db, activity: log, store: st, logger: logging.OrNop(logger)}
}

// Capture records one behavioural signal. Unknown actions are rejected so
// the synthesis query stays closed over a known action set.
func (o *Observer) Capture(ctx context.Context, action, description string, metadata map[string]any) error {
	category, ok := actionCategories[action]
	if !ok {
		return clawerr.NewValidation("unknown self-observation action %q", action)
	}
	return o.activity.Append(ctx, activity.Entry{
		Action:      action,
		Category:    "self_obs_" + string(category),
		Description: description,
		Metadata:    metadata,
	})
}

// Observation is one synthesised weekly insight.
type Observation struct {
	ID           int64
	WeekStart    string
	Category     types.ObservationCategory
	Observation  string
	Evidence     []string
	Confidence   float64
	Feedback     string
	FeedbackNote string
	CreatedAt    time.Time
}

// Synthesize aggregates the week's signals into three to five
// observations. Weeks start Monday; weekStart is truncated accordingly.
// Re-running for the same week replaces that week's observations.
func (o *Observer) Synthesize(ctx context.Context, weekStart time.Time) ([]Observation, error) {
	weekStart = truncateToMonday(weekStart)
	weekEnd := weekStart.AddDate(0, 0, 7)
	weekKey := weekStart.Format("2006-01-02")

	counts, samples, err := o.weekSignals(ctx, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}

	candidates := deriveObservations(counts, samples)
	if len(candidates) > 5 {
		candidates = candidates[:5]
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "synthesize", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM self_observations WHERE week_start = ?`, weekKey); err != nil {
		return nil, &clawerr.StorageError{Op: "synthesize", Err: err}
	}

	var out []Observation
	for _, c := range candidates {
		evidence, _ := json.Marshal(c.Evidence)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO self_observations (week_start, category, observation, evidence, confidence)
			 VALUES (?, ?, ?, ?, ?)`,
			weekKey, string(c.Category), c.Observation, string(evidence), c.Confidence)
		if err != nil {
			return nil, &clawerr.StorageError{Op: "synthesize insert", Err: err}
		}
		c.ID, _ = res.LastInsertId()
		c.WeekStart = weekKey
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, &clawerr.StorageError{Op: "synthesize", Err: err}
	}

	o.logger.Info("synthesised %d observations for week %s", len(out), weekKey)
	return out, nil
}

func truncateToMonday(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// weekSignals counts the week's signal actions and keeps sample
// descriptions as evidence.
func (o *Observer) weekSignals(ctx context.Context, from, to time.Time) (map[string]int, map[string][]string, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT action, COALESCE(description, '')
		 FROM activity
		 WHERE action LIKE 'self_obs_%' AND created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC`,
		from.UTC().Format("2006-01-02 15:04:05"), to.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, nil, &clawerr.StorageError{Op: "week signals", Err: err}
	}
	defer rows.Close()

	counts := make(map[string]int)
	samples := make(map[string][]string)
	for rows.Next() {
		var action, description string
		if err := rows.Scan(&action, &description); err != nil {
			return nil, nil, err
		}
		counts[action]++
		if len(samples[action]) < 3 && description != "" {
			samples[action] = append(samples[action], description)
		}
	}
	return counts, samples, rows.Err()
}

// deriveObservations turns signal tallies into worded observations.
// Confidence scales with sample size and skew.
func deriveObservations(counts map[string]int, samples map[string][]string) []Observation {
	var out []Observation

	delegated, selfDone := counts[ActionTaskDelegated], counts[ActionTaskSelfDone]
	if total := delegated + selfDone; total >= 3 {
		ratio := float64(delegated) / float64(total)
		var text string
		switch {
		case ratio >= 0.7:
			text = fmt.Sprintf("Delegated %d of %d tracked tasks this week; comfortable handing work off.", delegated, total)
		case ratio <= 0.3:
			text = fmt.Sprintf("Kept %d of %d tracked tasks this week; tends to do things personally.", selfDone, total)
		default:
			text = fmt.Sprintf("Split tracked tasks roughly evenly this week (%d delegated, %d kept).", delegated, selfDone)
		}
		out = append(out, Observation{
			Category:    types.ObsTaskPreference,
			Observation: text,
			Evidence:    append(samples[ActionTaskDelegated], samples[ActionTaskSelfDone]...),
			Confidence:  confidence(total),
		})
	}

	if sent := counts[ActionMessageSent]; sent >= 3 {
		out = append(out, Observation{
			Category:    types.ObsCommunication,
			Observation: fmt.Sprintf("Sent %d tracked messages this week.", sent),
			Evidence:    samples[ActionMessageSent],
			Confidence:  confidence(sent),
		})
	}

	made, dropped := counts[ActionDecisionMade], counts[ActionDecisionDropped]
	if total := made + dropped; total >= 3 {
		text := fmt.Sprintf("Closed %d of %d open decisions this week.", made, total)
		if dropped > made {
			text = fmt.Sprintf("Let %d of %d decisions lapse this week; open questions tend to linger.", dropped, total)
		}
		out = append(out, Observation{
			Category:    types.ObsDecision,
			Observation: text,
			Evidence:    append(samples[ActionDecisionMade], samples[ActionDecisionDropped]...),
			Confidence:  confidence(total),
		})
	}

	if errs := counts[ActionErrorHit]; errs >= 2 {
		out = append(out, Observation{
			Category:    types.ObsError,
			Observation: fmt.Sprintf("Hit %d recurring errors this week; see evidence for the hot spots.", errs),
			Evidence:    samples[ActionErrorHit],
			Confidence:  confidence(errs),
		})
	}
	return out
}

// confidence maps a sample count into [0.3, 0.9].
func confidence(n int) float64 {
	c := 0.3 + float64(n)*0.05
	if c > 0.9 {
		c = 0.9
	}
	return c
}

// List returns observations for a week, or all weeks when weekStart is
// zero.
func (o *Observer) List(ctx context.Context, weekStart time.Time) ([]Observation, error) {
	query := `SELECT id, week_start, category, observation, evidence, confidence,
	                 COALESCE(feedback, ''), COALESCE(feedback_note, ''), created_at
	          FROM self_observations`
	var args []any
	if !weekStart.IsZero() {
		query += ` WHERE week_start = ?`
		args = append(args, truncateToMonday(weekStart).Format("2006-01-02"))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "list observations", Err: err}
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var obs Observation
		var evidence string
		if err := rows.Scan(&obs.ID, &obs.WeekStart, &obs.Category, &obs.Observation,
			&evidence, &obs.Confidence, &obs.Feedback, &obs.FeedbackNote, &obs.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(evidence), &obs.Evidence)
		out = append(out, obs)
	}
	return out, rows.Err()
}

// SetFeedback records the operator's verdict on an observation. A useful
// observation is promoted into long-term memory as a lesson.
func (o *Observer) SetFeedback(ctx context.Context, id int64, useful bool, note string) error {
	feedback := "not_useful"
	if useful {
		feedback = "useful"
	}
	res, err := o.db.ExecContext(ctx,
		`UPDATE self_observations SET feedback = ?, feedback_note = ? WHERE id = ?`,
		feedback, note, id)
	if err != nil {
		return &clawerr.StorageError{Op: "observation feedback", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &clawerr.NotFoundError{Entity: "observation", ID: id}
	}

	if useful && o.store != nil {
		var text string
		if err := o.db.QueryRowContext(ctx,
			`SELECT observation FROM self_observations WHERE id = ?`, id).Scan(&text); err == nil {
			if _, err := o.store.AddMemory(ctx, store.MemoryInput{
				Category:   types.MemoryLesson,
				Content:    text,
				Importance: 6,
				Source:     fmt.Sprintf("self_observation:%d", id),
			}); err != nil {
				o.logger.Warn("promote observation %d to memory failed: %v", id, err)
			}
		}
	}
	return nil
}
