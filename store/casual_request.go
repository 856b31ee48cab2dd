package store

// CasualRequestStatus is the lifecycle state of a casual activity request.
type CasualRequestStatus string

const (
	CasualRequestActive   CasualRequestStatus = "active"
	CasualRequestInactive CasualRequestStatus = "inactive"
)

// CasualRequest is a user's standing ask for a casual activity partner
// ("weekend tennis", "coffee near the office"). At most one active record
// exists per user; a new ask replaces the previous one in place.
type CasualRequest struct {
	ID             int64
	UserID         string
	Activity       string // normalized activity label, e.g. "tennis"
	RawMessage     string // the utterance that produced this request
	OptimizedQuery string // LLM-rewritten match query
	Preferences    string // JSON document: time window, area, skill level

	// Embedding of the optimized query, written through for the external
	// matcher. Nil when the embedding engine was unavailable at write time.
	Embedding []float32

	Status         CasualRequestStatus
	CreatedTs      int64
	UpdatedTs      int64
	LastActivityTs int64
}

// UpsertCasualRequest creates or replaces a user's active request.
type UpsertCasualRequest struct {
	UserID         string
	Activity       string
	RawMessage     string
	OptimizedQuery string
	Preferences    string
	Embedding      []float32
	UpdatedTs      int64
}

// FindCasualRequest filters casual request lookups.
type FindCasualRequest struct {
	UserID   *string
	Activity *string
	Status   *CasualRequestStatus
}
