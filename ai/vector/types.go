// Package vector wraps the Qdrant collection holding user profile vectors.
package vector

// Candidate is a single scored hit from the profile collection.
type Candidate struct {
	UserID  string         `json:"user_id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`

	// Details is filled later by profile enrichment, not by the store.
	Details map[string]any `json:"details,omitempty"`
}

// Filter restricts a query server-side.
type Filter struct {
	// ExcludeUserIDs translates to a user_id NOT IN condition.
	ExcludeUserIDs []string

	// Match adds keyword equality conditions on payload fields.
	Match map[string]string
}

// ProfilePoint is one user profile to index.
type ProfilePoint struct {
	UserID  string
	Dense   []float32
	Sparse  map[string]float32
	Payload map[string]any
}
