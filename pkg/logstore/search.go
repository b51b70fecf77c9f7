package logstore

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Match is one blob file containing the search term.
type Match struct {
	RequestID string `json:"request_id"`
	Blob      string `json:"blob"`
	Path      string `json:"path"`
}

// Search finds logged payloads containing the literal query. Uses ripgrep
// when available, falling back to a plain tree walk.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	files, err := s.ripgrep(ctx, query)
	if err != nil {
		files, err = s.walkSearch(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	matches := make([]Match, 0, len(files))
	for _, path := range files {
		if len(matches) >= limit {
			break
		}
		rel, err := filepath.Rel(s.blobRoot, path)
		if err != nil {
			continue
		}
		requestID := filepath.Dir(rel)
		blob := strings.TrimSuffix(filepath.Base(rel), ".json")
		matches = append(matches, Match{RequestID: requestID, Blob: blob, Path: path})
	}
	return matches, nil
}

func (s *Store) ripgrep(ctx context.Context, query string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "rg",
		"--files-with-matches", "--fixed-strings", "--glob", "*.json",
		query, s.blobRoot,
	)
	out, err := cmd.Output()
	if err != nil {
		// Exit status 1 means no matches; anything else falls back.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func (s *Store) walkSearch(ctx context.Context, query string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.blobRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if strings.Contains(string(data), query) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
