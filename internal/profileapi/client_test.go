package profileapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, users map[string]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimPrefix(r.URL.Path, "/users/")
		profile, ok := users[userID]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(profile)
	}))
}

func TestGet(t *testing.T) {
	server := newTestServer(t, map[string]map[string]any{
		"u1": {"name": "Lin", "city": "Shanghai"},
	})
	defer server.Close()

	client, err := New(&Config{BaseURL: server.URL})
	require.NoError(t, err)

	profile, err := client.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Lin", profile["name"])
}

func TestGetNotFound(t *testing.T) {
	server := newTestServer(t, nil)
	defer server.Close()

	client, err := New(&Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetBatchMissingUsersDegrade(t *testing.T) {
	server := newTestServer(t, map[string]map[string]any{
		"u1": {"name": "Lin"},
	})
	defer server.Close()

	client, err := New(&Config{BaseURL: server.URL})
	require.NoError(t, err)

	results := client.GetBatch(context.Background(), []string{"u1", "ghost"})
	require.Len(t, results, 2)
	assert.Equal(t, "Lin", results["u1"]["name"])
	assert.Equal(t, "User does not exist", results["ghost"]["error"])
}

func TestGetBatchConcurrencyCap(t *testing.T) {
	var current, peak int64
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := atomic.AddInt64(&current, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	client, err := New(&Config{BaseURL: server.URL})
	require.NoError(t, err)

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = string(rune('a' + i%26))
	}
	results := client.GetBatch(context.Background(), ids)
	assert.NotEmpty(t, results)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(maxConcurrentFetches))
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)
}
