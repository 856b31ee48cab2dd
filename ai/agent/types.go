package agent

import (
	"context"
	"time"

	"github.com/luoshen/linkmate/ai/evaluate"
	"github.com/luoshen/linkmate/ai/intent"
	"github.com/luoshen/linkmate/ai/retrieval"
	"github.com/luoshen/linkmate/ai/stats"
	"github.com/luoshen/linkmate/store"
)

// Request is one conversation turn as received from the transport layer.
type Request struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`

	// ReferencedUserIDs are people already on screen that the message may
	// refer to ("tell me more about her").
	ReferencedUserIDs []string `json:"referenced_user_ids,omitempty"`

	// ViewedUserIDs are excluded from new search results server-side.
	ViewedUserIDs []string `json:"viewed_user_ids,omitempty"`

	// SwipedUserIDs are excluded from results after fusion.
	SwipedUserIDs []string `json:"swiped_user_ids,omitempty"`

	// Limit caps returned candidates. Defaults to 10.
	Limit int `json:"limit,omitempty"`
}

// ResponseType discriminates the envelope payload.
type ResponseType string

const (
	TypeSearchResults   ResponseType = "search_results"
	TypeInquiryAnalysis ResponseType = "inquiry_analysis"
	TypeChatReply       ResponseType = "chat_reply"
	TypeCasualAck       ResponseType = "casual_ack"
	TypeError           ResponseType = "error_response"
)

// Response is the envelope returned for every turn. Query, Timestamp,
// Status, ProcessingTime and Stats are always present, whatever the
// outcome.
type Response struct {
	Type      ResponseType `json:"type"`
	RequestID string       `json:"request_id"`
	Message   string       `json:"message"`

	// Query echoes the user's message; Status is "success" or "error".
	Query     string    `json:"query"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`

	Language           string  `json:"language"`
	LanguageConfidence float64 `json:"language_confidence"`

	Intent           intent.Intent `json:"intent,omitempty"`
	IntentConfidence float64       `json:"intent_confidence,omitempty"`

	// Search results
	Candidates []evaluate.Selection `json:"candidates,omitempty"`
	Quality    evaluate.Quality     `json:"quality,omitempty"`
	Strategy   retrieval.Strategy   `json:"strategy,omitempty"`

	// CandidateCount counts returned candidates; TotalCandidatesFound is
	// how many the last retrieval pass found before the limit cut;
	// SearchAttempts is how many strategies ran.
	CandidateCount       int `json:"candidate_count,omitempty"`
	TotalCandidatesFound int `json:"total_candidates_found,omitempty"`
	SearchAttempts       int `json:"search_attempts,omitempty"`

	// Inquiry analysis
	Analysis map[string]any `json:"analysis,omitempty"`

	// Casual acknowledgement
	Casual *CasualAck `json:"casual,omitempty"`

	// ProcessingTime is wall-clock seconds for the whole turn.
	ProcessingTime float64 `json:"processing_time"`

	// Stats is the process-wide counter snapshot after this turn.
	Stats stats.Snapshot `json:"stats"`
}

// CasualAck reports what the casual pipeline recorded and found.
type CasualAck struct {
	Activity       string        `json:"activity"`
	OptimizedQuery string        `json:"optimized_query"`
	Matches        []CasualMatch `json:"matches,omitempty"`
}

// CasualMatch is a user with a compatible standing casual request.
type CasualMatch struct {
	UserID   string  `json:"user_id"`
	Activity string  `json:"activity"`
	Score    float64 `json:"score"`
}

// CasualMatcher finds compatible standing requests for a newly recorded
// one. Matching runs in a separate system; the default implementation
// returns nothing.
type CasualMatcher interface {
	Match(ctx context.Context, request *store.CasualRequest) ([]CasualMatch, error)
}

// NoopMatcher is the default CasualMatcher: record now, match elsewhere.
type NoopMatcher struct{}

func (NoopMatcher) Match(context.Context, *store.CasualRequest) ([]CasualMatch, error) {
	return nil, nil
}
