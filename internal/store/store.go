// Package store implements the structured domain stores: tasks,
// projects, contacts, content, social posts, long-term memory, health
// metrics, and the component error log. All stores share one SQLite
// handle.
package store

import (
	"database/sql"
	"encoding/json"

	"openclaw/internal/embedding"
	"openclaw/internal/logging"
)

// Store bundles the domain stores over a shared database handle.
type Store struct {
	db       *sql.DB
	embedder embedding.Generator // nil disables semantic features
	logger   logging.Logger
}

// New creates a Store. The embedder is optional; without it AddMemory
// still works but semantic search returns nothing for new rows.
func New(db *sql.DB, embedder embedding.Generator, logger logging.Logger) *Store {
	return &Store{db: db, embedder: embedder, logger: logging.OrNop(logger)}
}

// marshalTags renders a tag list as the JSON array stored in TEXT columns.
func marshalTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

// unmarshalTags parses a stored JSON tag array, tolerating bad rows.
func unmarshalTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}
