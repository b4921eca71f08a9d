package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"openclaw/internal/types"
)

// Migration adds a single column to an existing table. Migrations are
// additive and self-detecting: each one checks PRAGMA table_info before
// altering, so running the sequence any number of times is a no-op after
// the first.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists column additions for databases created before
// the column existed in the bootstrap schema.
var pendingMigrations = []Migration{
	{"memory", "last_accessed", "DATETIME"},
	{"memory", "access_count", "INTEGER DEFAULT 0"},
	{"memory", "embedding", "BLOB"},
	{"knowledge_cache", "superseded_by", "INTEGER REFERENCES knowledge_cache(id)"},
	{"knowledge_cache", "embedding", "BLOB"},
	{"pipeline", "assigned_agent", "TEXT"},
	{"pipeline", "health_check", "TEXT DEFAULT '{}'"},
	{"pipeline", "branch_name", "TEXT"},
	{"session_chunks", "context_prefix", "TEXT"},
	{"token_usage", "task_detail", "TEXT"},
	{"self_observations", "feedback_note", "TEXT"},
}

func (d *DB) migrate() error {
	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(d.sql, m.Table) {
			continue
		}
		if columnExists(d.sql, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := d.sql.Exec(stmt); err != nil {
			// Column may exist in a different form; additive migrations
			// never fail the boot.
			d.logger.Warn("migration skipped %s.%s: %v", m.Table, m.Column, err)
			continue
		}
		d.logger.Info("migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}

	if err := d.migratePipelineStageConstraint(); err != nil {
		return err
	}

	if applied > 0 {
		d.logger.Info("schema migrations complete: applied=%d", applied)
	}
	return nil
}

// migratePipelineStageConstraint detects databases whose pipeline CHECK
// constraint predates the current stage union, by trial-inserting a row
// with a newer stage value inside a rolled-back transaction. On constraint
// failure the table is rebuilt with the new constraint and data copied,
// all inside one transaction.
func (d *DB) migratePipelineStageConstraint() error {
	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin stage check transaction: %w", err)
	}

	stagesAccepted := true
	for _, stage := range types.StageUnion() {
		if _, err := tx.Exec(
			`INSERT INTO pipeline (type, title, stage) VALUES ('feature', '__stagecheck__', ?)`, stage,
		); err != nil {
			if strings.Contains(err.Error(), "constraint") {
				stagesAccepted = false
				break
			}
			tx.Rollback()
			return fmt.Errorf("stage check failed: %w", err)
		}
	}
	tx.Rollback() // trial rows are never kept

	if stagesAccepted {
		return nil
	}

	d.logger.Info("pipeline stage constraint is stale, rebuilding table")
	return d.rebuildPipelineTable()
}

// rebuildPipelineTable applies the create-copy-drop-rename pattern to
// replace the pipeline CHECK constraint, recreating indexes afterwards.
func (d *DB) rebuildPipelineTable() error {
	tx, err := d.sql.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	stageUnion := quoteList(types.StageUnion())
	itemTypes := quoteList(types.ItemTypes())

	create := fmt.Sprintf(`CREATE TABLE pipeline_new (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL DEFAULT 'feature' CHECK (type IN (%s)),
		parent_id INTEGER REFERENCES pipeline(id),
		project_id INTEGER REFERENCES projects(id),
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		stage TEXT NOT NULL CHECK (stage IN (%s)),
		spec_doc TEXT DEFAULT '',
		acceptance_criteria TEXT DEFAULT '[]',
		approved_by TEXT,
		approved_at DATETIME,
		branch_name TEXT,
		review_notes TEXT DEFAULT '',
		review_passed INTEGER DEFAULT 0,
		health_check TEXT DEFAULT '{}',
		priority INTEGER NOT NULL DEFAULT 2 CHECK (priority BETWEEN 1 AND 4),
		assigned_agent TEXT,
		assigned_to TEXT,
		started_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`, itemTypes, stageUnion)

	steps := []string{
		create,
		`INSERT INTO pipeline_new SELECT * FROM pipeline`,
		`DROP TABLE pipeline`,
		`ALTER TABLE pipeline_new RENAME TO pipeline`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_stage ON pipeline(stage)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_parent ON pipeline(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_project ON pipeline(project_id)`,
	}
	for _, stmt := range steps {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("pipeline rebuild failed: %w", err)
		}
	}

	return tx.Commit()
}

// columnExists checks for a column using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks whether a table exists.
func tableExists(db *sql.DB, table string) bool {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
	).Scan(&count)
	return err == nil && count > 0
}
