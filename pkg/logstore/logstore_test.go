package logstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "logs.db"), filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendWritesBlobsAndMetadata(t *testing.T) {
	store := testStore(t)

	appended, err := store.Append(context.Background(), Entry{
		RequestID:            "req_abc123",
		Method:               "POST",
		URL:                  "/v1/chat/completions",
		StatusCode:           200,
		Model:                "fast",
		Provider:             "openai",
		Operation:            "chat",
		RequestBody:          map[string]any{"model": "fast"},
		ResponseBody:         map[string]any{"id": "chatcmpl-1"},
		ProviderRequestBody:  map[string]any{"model": "gpt-4o-mini"},
		ProviderResponseBody: map[string]any{"choices": []any{}},
	})
	require.NoError(t, err)
	assert.Positive(t, appended.ID)

	for _, name := range []string{"request", "response", "provider-request", "provider-response"} {
		path, ok := appended.Paths[name]
		require.True(t, ok, name)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}

	records, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "req_abc123", records[0].RequestID)
	assert.Equal(t, 200, records[0].StatusCode)
	assert.Equal(t, "openai", records[0].Provider)
}

func TestAppendSkipsMissingPayloads(t *testing.T) {
	store := testStore(t)

	appended, err := store.Append(context.Background(), Entry{
		RequestID:   "req_short",
		Method:      "POST",
		URL:         "/v1/messages",
		StatusCode:  500,
		RequestBody: map[string]any{"model": "m"},
	})
	require.NoError(t, err)

	assert.Contains(t, appended.Paths, "request")
	assert.NotContains(t, appended.Paths, "provider-response")
}

func TestConcurrentAppends(t *testing.T) {
	store := testStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.Append(context.Background(), Entry{
				RequestID:   "req_" + string(rune('a'+n%26)) + "x",
				Method:      "POST",
				URL:         "/v1/chat/completions",
				StatusCode:  200,
				RequestBody: map[string]any{"n": n},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	records, err := store.Recent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}

func TestSearchFindsPayloads(t *testing.T) {
	store := testStore(t)

	_, err := store.Append(context.Background(), Entry{
		RequestID:    "req_needle",
		Method:       "POST",
		URL:          "/v1/chat/completions",
		StatusCode:   200,
		RequestBody:  map[string]any{"content": "the quick brown fox"},
		ResponseBody: map[string]any{"content": "nothing to see"},
	})
	require.NoError(t, err)
	_, err = store.Append(context.Background(), Entry{
		RequestID:   "req_other",
		Method:      "POST",
		URL:         "/v1/chat/completions",
		StatusCode:  200,
		RequestBody: map[string]any{"content": "unrelated"},
	})
	require.NoError(t, err)

	matches, err := store.Search(context.Background(), "quick brown", 10)
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, "req_needle", matches[0].RequestID)
	assert.Equal(t, "request", matches[0].Blob)
}

func TestSearchEmptyQuery(t *testing.T) {
	store := testStore(t)

	matches, err := store.Search(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestWalkSearchFallback(t *testing.T) {
	store := testStore(t)

	_, err := store.Append(context.Background(), Entry{
		RequestID:   "req_walk",
		Method:      "POST",
		URL:         "/v1/responses",
		StatusCode:  200,
		RequestBody: map[string]any{"content": "fallback target"},
	})
	require.NoError(t, err)

	files, err := store.walkSearch(context.Background(), "fallback target")
	require.NoError(t, err)
	require.Len(t, files, 1)
}
