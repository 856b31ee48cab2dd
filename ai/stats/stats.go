// Package stats tracks process-wide counters for the conversation agent.
// Counters only ever increase; a snapshot is attached to every response
// envelope so operators can spot drift between restarts.
package stats

import (
	"sync"
	"time"
)

// Counters accumulates request counters for the lifetime of the process.
// 所有方法并发安全。
type Counters struct {
	mu              sync.Mutex
	totalRequests   int64
	searchCount     int64
	casualCount     int64
	llmCalls        int64
	cacheHits       int64
	vectorQueries   int64
	failures        int64
	totalSearchTime time.Duration
}

// New creates an empty counter set.
func New() *Counters {
	return &Counters{}
}

// RecordRequest increments the conversation turn counter.
func (c *Counters) RecordRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

// RecordSearch increments the search turn counter and accumulates the
// turn's wall-clock time.
func (c *Counters) RecordSearch(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searchCount++
	c.totalSearchTime += elapsed
}

// RecordCasual increments the casual turn counter.
func (c *Counters) RecordCasual() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.casualCount++
}

// RecordLLMCall increments the LLM invocation counter.
func (c *Counters) RecordLLMCall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llmCalls++
}

// RecordCacheHit increments the cache hit counter.
func (c *Counters) RecordCacheHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheHits++
}

// RecordVectorQuery increments the vector store query counter.
func (c *Counters) RecordVectorQuery() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectorQueries++
}

// RecordFailure increments the failed turn counter.
func (c *Counters) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
}

// Snapshot is a coherent point-in-time copy of all counters.
type Snapshot struct {
	TotalRequests  int64 `json:"total_requests"`
	SearchCount    int64 `json:"search_count"`
	CasualCount    int64 `json:"casual_count"`
	LLMCalls       int64 `json:"llm_calls"`
	CacheHits      int64 `json:"cache_hits"`
	VectorSearches int64 `json:"vector_searches"`
	Failures       int64 `json:"failures"`

	// TotalSearchTime is cumulative search wall-clock time in seconds,
	// matching the envelope's processing_time unit.
	TotalSearchTime float64 `json:"total_search_time"`
}

// Snapshot returns all counters read under one lock, so the values are
// mutually consistent even under concurrent updates.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		TotalRequests:   c.totalRequests,
		SearchCount:     c.searchCount,
		CasualCount:     c.casualCount,
		LLMCalls:        c.llmCalls,
		CacheHits:       c.cacheHits,
		VectorSearches:  c.vectorQueries,
		Failures:        c.failures,
		TotalSearchTime: c.totalSearchTime.Seconds(),
	}
}
