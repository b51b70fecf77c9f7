// Package logstore persists completed exchanges: metadata rows in SQLite,
// request/response payloads as JSON blobs on disk. Appends are serialized
// through a single writer; reads may run concurrently.
package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one completed exchange.
type Entry struct {
	RequestID  string
	Method     string
	URL        string
	StatusCode int
	Model      string
	Provider   string
	Operation  string

	RequestBody          any
	ResponseBody         any
	ProviderRequestBody  any
	ProviderResponseBody any
}

// Appended reports where an entry landed.
type Appended struct {
	ID    int64
	Paths map[string]string
}

// Record is a stored metadata row.
type Record struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	Operation  string    `json:"operation"`
	CreatedAt  time.Time `json:"created_at"`
}

type Store struct {
	db       *sql.DB
	blobRoot string

	// writeMu serializes disk writes; sqlite and the blob tree share one
	// writer.
	writeMu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	model TEXT,
	provider TEXT,
	operation TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_exchanges_request_id ON exchanges(request_id);
CREATE INDEX IF NOT EXISTS idx_exchanges_created_at ON exchanges(created_at);
`

func Open(dbPath, blobRoot string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := os.MkdirAll(blobRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open log database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize log schema: %w", err)
	}

	return &Store{db: db, blobRoot: blobRoot}, nil
}

// blobNames maps logical payloads to their file names under the request dir.
var blobNames = []string{"request", "response", "provider-request", "provider-response"}

// Append stores one exchange. Blob writes that fail are skipped; metadata is
// written for whatever landed.
func (s *Store) Append(ctx context.Context, entry Entry) (*Appended, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	dir := filepath.Join(s.blobRoot, entry.RequestID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	payloads := map[string]any{
		"request":           entry.RequestBody,
		"response":          entry.ResponseBody,
		"provider-request":  entry.ProviderRequestBody,
		"provider-response": entry.ProviderResponseBody,
	}
	paths := make(map[string]string, len(blobNames))
	for _, name := range blobNames {
		payload := payloads[name]
		if payload == nil {
			continue
		}
		path := filepath.Join(dir, name+".json")
		if err := writeJSON(path, payload); err != nil {
			return nil, fmt.Errorf("failed to write %s blob: %w", name, err)
		}
		paths[name] = path
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (request_id, method, url, status_code, model, provider, operation)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Method, entry.URL, entry.StatusCode,
		entry.Model, entry.Provider, entry.Operation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert exchange row: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &Appended{ID: id, Paths: paths}, nil
}

func writeJSON(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Recent returns the newest metadata rows.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, method, url, status_code, model, provider, operation, created_at
		 FROM exchanges ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var model, provider, operation sql.NullString
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Method, &r.URL, &r.StatusCode,
			&model, &provider, &operation, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Model = model.String
		r.Provider = provider.String
		r.Operation = operation.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
