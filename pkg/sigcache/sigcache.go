// Package sigcache persists Google thought signatures keyed by tool-call id
// so they can be restored on follow-up requests after clients strip them.
package sigcache

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Cache is a durable keyed store. Safe for concurrent use; writes are
// last-writer-wins.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the cache database at path. Use ":memory:" in tests.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open signature cache: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS thought_signatures (
		tool_call_id TEXT PRIMARY KEY,
		signature    TEXT NOT NULL,
		updated_at   TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize signature cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Store saves a signature for a tool-call id, replacing any existing value.
func (c *Cache) Store(toolCallID, signature string) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO thought_signatures (tool_call_id, signature, updated_at) VALUES (?, ?, ?)`,
		toolCallID, signature, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store signature for %s: %w", toolCallID, err)
	}
	return nil
}

// BatchRetrieve returns the signatures for the given ids. Missing ids are
// simply absent from the result.
func (c *Cache) BatchRetrieve(ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := c.db.Query(
		`SELECT tool_call_id, signature FROM thought_signatures WHERE tool_call_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve signatures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, sig string
		if err := rows.Scan(&id, &sig); err != nil {
			return nil, err
		}
		result[id] = sig
	}

	return result, rows.Err()
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
