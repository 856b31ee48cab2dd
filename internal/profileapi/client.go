// Package profileapi fetches full user profiles from the internal profile
// service. The vector store carries only a compact payload per user; this
// client supplies the rest on demand.
package profileapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNotFound means the profile service answered 404 for the user.
var ErrNotFound = errors.New("user profile not found")

// maxConcurrentFetches caps parallel requests per batch so a large
// candidate list cannot stampede the profile service.
const maxConcurrentFetches = 32

// Client talks to the profile HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config configures the profile API client.
type Config struct {
	BaseURL string
	Timeout time.Duration // per-request timeout, default 10s
}

// New creates a profile API client.
func New(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("profileapi: base URL not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Get fetches a single user profile as a generic document.
func (c *Client) Get(ctx context.Context, userID string) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("profileapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profileapi: get %s: %w", userID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("profileapi: %w: %s", ErrNotFound, userID)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("profileapi: get %s: status %d: %s", userID, resp.StatusCode, msg)
	}

	var profile map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("profileapi: decode %s: %w", userID, err)
	}
	return profile, nil
}

// GetBatch fetches profiles for all IDs with bounded concurrency. Missing
// users are reported as documents with an "error" field instead of failing
// the batch; transport errors for individual users degrade the same way so
// a single flaky fetch never sinks a whole candidate list.
func (c *Client) GetBatch(ctx context.Context, userIDs []string) map[string]map[string]any {
	results := make(map[string]map[string]any, len(userIDs))
	if len(userIDs) == 0 {
		return results
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for _, userID := range userIDs {
		g.Go(func() error {
			profile, err := c.Get(gctx, userID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					profile = map[string]any{"error": "User does not exist"}
				} else {
					slog.Warn("profileapi: batch fetch failed", "user_id", userID, "error", err)
					profile = map[string]any{"error": "Profile temporarily unavailable"}
				}
			}
			mu.Lock()
			results[userID] = profile
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, they degrade in place

	return results
}
