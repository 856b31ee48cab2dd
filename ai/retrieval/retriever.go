// Package retrieval runs strategy-driven hybrid people search against the
// profile vector store.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/luoshen/linkmate/ai/preprocess"
	"github.com/luoshen/linkmate/ai/vector"
)

// Strategy selects a retrieval recipe. The scheduler escalates through
// them in order when result quality is insufficient.
type Strategy string

const (
	// StrategyStandard is the first attempt: tight prefetch, score fusion
	// weighted toward the sparse leg.
	StrategyStandard Strategy = "standard"
	// StrategyExpanded widens the prefetch and switches to rank fusion.
	StrategyExpanded Strategy = "expanded"
	// StrategyCustom is the last resort: widest comparable scoring via
	// z-score fusion.
	StrategyCustom Strategy = "custom"
)

// EscalationOrder lists strategies from cheapest to most aggressive.
var EscalationOrder = []Strategy{StrategyStandard, StrategyExpanded, StrategyCustom}

type strategyParams struct {
	prefetch int
	fuse     func(r *Retriever, dense, sparse []vector.Candidate) []vector.Candidate
}

var strategyTable = map[Strategy]strategyParams{
	StrategyStandard: {
		prefetch: 50,
		fuse: func(r *Retriever, dense, sparse []vector.Candidate) []vector.Candidate {
			return dbsfFusion(dense, sparse, r.denseWeight)
		},
	},
	StrategyExpanded: {
		prefetch: 150,
		fuse: func(_ *Retriever, dense, sparse []vector.Candidate) []vector.Candidate {
			return rrfFusion(dense, sparse)
		},
	},
	StrategyCustom: {
		prefetch: 120,
		fuse: func(r *Retriever, dense, sparse []vector.Candidate) []vector.Candidate {
			if len(sparse) == 0 {
				// Nothing to standardize against; dense ordering stands.
				return assembleDenseOnly(dense)
			}
			return zscoreFusion(dense, sparse, r.denseWeight)
		},
	},
}

// Embedder is the slice of the embedding service retrieval needs.
type Embedder interface {
	EncodeDense(ctx context.Context, text string) ([]float32, error)
	EncodeSparse(ctx context.Context, text string) (map[string]float32, error)
}

// VectorStore is the slice of the vector client retrieval needs.
type VectorStore interface {
	DualQuery(ctx context.Context, dense []float32, sparse map[string]float32, limit int, filter *vector.Filter) ([]vector.Candidate, []vector.Candidate, error)
}

// ProfileFetcher supplies full profile documents for enrichment.
type ProfileFetcher interface {
	GetBatch(ctx context.Context, userIDs []string) map[string]map[string]any
}

// Request is one retrieval invocation.
type Request struct {
	Queries  preprocess.Queries
	Strategy Strategy
	Limit    int

	// ViewedIDs are excluded inside the store query.
	ViewedIDs []string
	// SwipedIDs are filtered after fusion; the store never sees them.
	SwipedIDs []string

	// FetchDetails pulls full profiles for the final candidates.
	FetchDetails bool
	RequestID    string
}

// Result is an ordered candidate list plus bookkeeping for the caller.
type Result struct {
	Candidates []vector.Candidate
	Strategy   Strategy
	RequestID  string
	ElapsedMs  int64

	// TotalFound counts candidates that survived fusion and swipe
	// filtering, before the limit cut. The caller escalates when this
	// falls short of the requested limit.
	TotalFound int
}

// Options tunes retrieval defaults.
type Options struct {
	// DenseWeight is the dense share in standard-strategy score fusion.
	// Default 0.2: profile text is short, lexical overlap carries more
	// signal than the dense leg for first-pass people search.
	DenseWeight float64

	// DetailTimeout bounds profile enrichment. Default 30s.
	DetailTimeout time.Duration
}

// Retriever executes hybrid search requests.
type Retriever struct {
	embedder      Embedder
	store         VectorStore
	profiles      ProfileFetcher
	denseWeight   float64
	detailTimeout time.Duration
}

// New creates a retriever. opts may be nil.
func New(embedder Embedder, store VectorStore, profiles ProfileFetcher, opts *Options) *Retriever {
	r := &Retriever{
		embedder:      embedder,
		store:         store,
		profiles:      profiles,
		denseWeight:   0.2,
		detailTimeout: 30 * time.Second,
	}
	if opts != nil {
		if opts.DenseWeight > 0 {
			r.denseWeight = opts.DenseWeight
		}
		if opts.DetailTimeout > 0 {
			r.detailTimeout = opts.DetailTimeout
		}
	}
	return r
}

// Retrieve runs one hybrid search pass. The dense embedding is mandatory;
// a failed sparse embedding degrades to dense-only search. Store failures
// after retries return an error, never a partial list.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	params, ok := strategyTable[req.Strategy]
	if !ok {
		return nil, fmt.Errorf("retrieval: unknown strategy %q", req.Strategy)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = shortuuid.New()
	}

	dense, err := r.embedder.EncodeDense(ctx, req.Queries.Dense)
	if err != nil {
		return nil, fmt.Errorf("retrieval: dense embedding: %w", err)
	}

	sparse, err := r.embedder.EncodeSparse(ctx, req.Queries.Sparse)
	if err != nil {
		slog.Warn("retrieval: sparse embedding failed, running dense-only",
			"request_id", requestID, "error", err)
		sparse = nil
	}

	prefetch := params.prefetch
	if floor := 5 * limit; floor > prefetch {
		prefetch = floor
	}
	if prefetch < 50 {
		prefetch = 50
	}

	var filter *vector.Filter
	if len(req.ViewedIDs) > 0 {
		filter = &vector.Filter{ExcludeUserIDs: req.ViewedIDs}
	}

	denseHits, sparseHits, err := r.store.DualQuery(ctx, dense, sparse, prefetch, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieval: store query: %w", err)
	}

	fused := params.fuse(r, denseHits, sparseHits)
	fused = excludeSwiped(fused, req.SwipedIDs)
	totalFound := len(fused)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	if req.FetchDetails && len(fused) > 0 {
		r.enrich(ctx, fused, requestID)
	}

	elapsed := time.Since(start)
	slog.Info("retrieval: completed",
		"request_id", requestID,
		"strategy", req.Strategy,
		"dense_hits", len(denseHits),
		"sparse_hits", len(sparseHits),
		"total_found", totalFound,
		"results", len(fused),
		"elapsed_ms", elapsed.Milliseconds(),
	)

	return &Result{
		Candidates: fused,
		Strategy:   req.Strategy,
		RequestID:  requestID,
		ElapsedMs:  elapsed.Milliseconds(),
		TotalFound: totalFound,
	}, nil
}

// enrich attaches full profile documents under its own deadline. Candidates
// the profile service cannot resolve keep a marker document so callers can
// tell missing from never-fetched.
func (r *Retriever) enrich(ctx context.Context, candidates []vector.Candidate, requestID string) {
	enrichCtx, cancel := context.WithTimeout(ctx, r.detailTimeout)
	defer cancel()

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.UserID
	}

	details := r.profiles.GetBatch(enrichCtx, ids)
	for i := range candidates {
		if doc, ok := details[candidates[i].UserID]; ok {
			candidates[i].Details = doc
		} else {
			candidates[i].Details = map[string]any{"error": "User does not exist"}
		}
	}
	slog.Debug("retrieval: enriched candidates", "request_id", requestID, "count", len(candidates))
}

// excludeSwiped drops already-swiped users after fusion. Swipes arrive with
// the request and change too often to be worth a server-side index.
func excludeSwiped(candidates []vector.Candidate, swipedIDs []string) []vector.Candidate {
	if len(swipedIDs) == 0 {
		return candidates
	}
	swiped := make(map[string]struct{}, len(swipedIDs))
	for _, id := range swipedIDs {
		swiped[id] = struct{}{}
	}

	out := candidates[:0]
	for _, c := range candidates {
		if _, ok := swiped[c.UserID]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// assembleDenseOnly keeps the dense ordering but re-ranks ties by user_id
// for determinism.
func assembleDenseOnly(dense []vector.Candidate) []vector.Candidate {
	fused := make(map[string]float64, len(dense))
	for _, c := range dense {
		fused[c.UserID] = c.Score
	}
	return assemble(fused, dense, nil)
}

// NextStrategy returns the following strategy in escalation order and
// whether one exists.
func NextStrategy(current Strategy) (Strategy, bool) {
	for i, s := range EscalationOrder {
		if s == current && i+1 < len(EscalationOrder) {
			return EscalationOrder[i+1], true
		}
	}
	return current, false
}
