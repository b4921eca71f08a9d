package storage

import (
	"fmt"
	"strings"

	"openclaw/internal/types"
)

// quoteList renders enum values for use inside a CHECK (... IN (...)).
func quoteList[T ~string](values []T) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + string(v) + "'"
	}
	return strings.Join(quoted, ", ")
}

// schemaStatements returns the idempotent bootstrap DDL. Enum CHECK sets
// are rendered from internal/types so the constraint lists exist in one
// place only.
func schemaStatements() []string {
	stageUnion := quoteList(types.StageUnion())
	itemTypes := quoteList(types.ItemTypes())
	taskStatuses := quoteList(types.TaskStatuses())

	return []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active'
				CHECK (status IN ('active', 'paused', 'completed', 'archived')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			status TEXT NOT NULL DEFAULT 'todo' CHECK (status IN (%s)),
			priority INTEGER NOT NULL DEFAULT 2 CHECK (priority BETWEEN 1 AND 4),
			project_id INTEGER REFERENCES projects(id),
			due_date DATETIME,
			completed_at DATETIME,
			tags TEXT DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, taskStatuses),
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pipeline (
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
		)`, itemTypes, stageUnion),
		`CREATE INDEX IF NOT EXISTS idx_pipeline_stage ON pipeline(stage)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_parent ON pipeline(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_project ON pipeline(project_id)`,

		`CREATE TABLE IF NOT EXISTS pipeline_tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pipeline_id INTEGER NOT NULL REFERENCES pipeline(id),
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			status TEXT NOT NULL DEFAULT 'todo'
				CHECK (status IN ('todo', 'doing', 'done', 'blocked')),
			assigned_to TEXT,
			output TEXT,
			completed_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_tasks_item ON pipeline_tasks(pipeline_id)`,

		`CREATE TABLE IF NOT EXISTS pipeline_notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pipeline_id INTEGER NOT NULL REFERENCES pipeline(id),
			agent_role TEXT NOT NULL,
			note_type TEXT NOT NULL CHECK (note_type IN
				('handover', 'blocker', 'question', 'decision', 'info', 'started', 'progress', 'complete')),
			content TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_notes_item ON pipeline_notes(pipeline_id)`,

		`CREATE TABLE IF NOT EXISTS memory (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category TEXT NOT NULL DEFAULT 'fact' CHECK (category IN
				('fact', 'preference', 'lesson', 'todo', 'person', 'project', 'other')),
			subject TEXT,
			content TEXT NOT NULL,
			importance INTEGER NOT NULL DEFAULT 5 CHECK (importance BETWEEN 1 AND 10),
			source TEXT,
			expires_at DATETIME,
			last_accessed DATETIME,
			access_count INTEGER DEFAULT 0,
			embedding BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_category ON memory(category)`,

		`CREATE TABLE IF NOT EXISTS memory_embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_id INTEGER NOT NULL REFERENCES memory(id) ON DELETE CASCADE,
			model TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(memory_id, model)
		)`,

		`CREATE TABLE IF NOT EXISTS knowledge_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			source_type TEXT NOT NULL DEFAULT 'manual' CHECK (source_type IN
				('research', 'web', 'conversation', 'manual')),
			source_url TEXT,
			source_session TEXT,
			topic_tags TEXT DEFAULT '[]',
			entities TEXT DEFAULT '[]',
			confidence REAL NOT NULL DEFAULT 0.5 CHECK (confidence BETWEEN 0 AND 1),
			importance REAL NOT NULL DEFAULT 0.5 CHECK (importance BETWEEN 0 AND 1),
			verified INTEGER DEFAULT 0,
			superseded_by INTEGER REFERENCES knowledge_cache(id),
			expires_at DATETIME,
			embedding BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
			title, summary, topic_tags,
			content='knowledge_cache', content_rowid='id'
		)`,
		`CREATE TRIGGER IF NOT EXISTS knowledge_cache_ai AFTER INSERT ON knowledge_cache BEGIN
			INSERT INTO knowledge_fts(rowid, title, summary, topic_tags)
			VALUES (new.id, new.title, new.summary, new.topic_tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS knowledge_cache_ad AFTER DELETE ON knowledge_cache BEGIN
			INSERT INTO knowledge_fts(knowledge_fts, rowid, title, summary, topic_tags)
			VALUES ('delete', old.id, old.title, old.summary, old.topic_tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS knowledge_cache_au AFTER UPDATE ON knowledge_cache BEGIN
			INSERT INTO knowledge_fts(knowledge_fts, rowid, title, summary, topic_tags)
			VALUES ('delete', old.id, old.title, old.summary, old.topic_tags);
			INSERT INTO knowledge_fts(rowid, title, summary, topic_tags)
			VALUES (new.id, new.title, new.summary, new.topic_tags);
		END`,

		`CREATE TABLE IF NOT EXISTS session_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			timestamp DATETIME,
			speakers TEXT DEFAULT '[]',
			topic_tags TEXT DEFAULT '[]',
			has_decision INTEGER DEFAULT 0,
			has_action INTEGER DEFAULT 0,
			content TEXT NOT NULL,
			context_prefix TEXT,
			context_status TEXT NOT NULL DEFAULT 'pending'
				CHECK (context_status IN ('pending', 'complete', 'failed')),
			token_count INTEGER DEFAULT 0,
			embedding BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, chunk_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_session ON session_chunks(session_id)`,

		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			content,
			content='session_chunks', content_rowid='id'
		)`,
		`CREATE TRIGGER IF NOT EXISTS session_chunks_ai AFTER INSERT ON session_chunks BEGIN
			INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS session_chunks_ad AFTER DELETE ON session_chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS session_chunks_au AFTER UPDATE ON session_chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
			INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
		END`,

		`CREATE TABLE IF NOT EXISTS session_files (
			session_id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			file_hash TEXT NOT NULL,
			last_indexed DATETIME,
			chunk_count INTEGER DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'partial'
				CHECK (status IN ('complete', 'partial', 'failed'))
		)`,

		`CREATE TABLE IF NOT EXISTS token_usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			source TEXT,
			model TEXT NOT NULL,
			provider TEXT NOT NULL,
			tokens_in INTEGER NOT NULL DEFAULT 0,
			tokens_out INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0 CHECK (cost_usd >= 0),
			task_type TEXT,
			task_detail TEXT,
			latency_ms INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_session ON token_usage(session_id)`,

		`CREATE TABLE IF NOT EXISTS session_costs (
			session_id TEXT PRIMARY KEY,
			tokens_in INTEGER NOT NULL DEFAULT 0,
			tokens_out INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			requests INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			category TEXT,
			description TEXT,
			metadata TEXT,
			session_id TEXT,
			source TEXT,
			related_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_action ON activity(action)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_category ON activity(category)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_related ON activity(related_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_created ON activity(created_at)`,

		`CREATE TABLE IF NOT EXISTS self_observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			week_start TEXT NOT NULL,
			category TEXT NOT NULL CHECK (category IN
				('task_preference', 'communication', 'decision', 'error', 'other')),
			observation TEXT NOT NULL,
			evidence TEXT DEFAULT '[]',
			confidence REAL NOT NULL DEFAULT 0.5 CHECK (confidence BETWEEN 0 AND 1),
			feedback TEXT CHECK (feedback IN ('useful', 'not_useful') OR feedback IS NULL),
			feedback_note TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			relationship TEXT,
			email TEXT,
			phone TEXT,
			notes TEXT DEFAULT '',
			last_contacted DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS content_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'article',
			url TEXT,
			status TEXT NOT NULL DEFAULT 'idea',
			notes TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS social_posts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			platform TEXT NOT NULL,
			content TEXT NOT NULL,
			posted_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_social_platform ON social_posts(platform)`,

		`CREATE TABLE IF NOT EXISTS health_checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			unit TEXT,
			recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS error_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			component TEXT NOT NULL,
			message TEXT NOT NULL,
			detail TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

// bootstrap creates every table, index, and trigger if missing.
func (d *DB) bootstrap() error {
	for _, stmt := range schemaStatements() {
		if _, err := d.sql.Exec(stmt); err != nil {
			return fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}
	return nil
}
