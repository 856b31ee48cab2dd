package vector

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/luoshen/linkmate/ai/stats"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"

	// sparse payload copy used by the degraded rerank path
	sparsePayloadKey = "sparse_vector"

	maxAttempts   = 3
	backoffBase   = 1 * time.Second
	backoffFactor = 1.5
)

// Config configures the profile vector store.
type Config struct {
	Endpoint   string // host:port of the gRPC endpoint
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int // dense vector size, default 1024

	// Counters receives one RecordVectorQuery per query leg. Optional.
	Counters *stats.Counters
}

// Store is the Qdrant-backed profile vector store.
type Store struct {
	client     *qdrant.Client
	collection string
	dimensions int
	counters   *stats.Counters

	// degraded flips to true when the collection cannot serve sparse
	// queries; the sparse leg is then approximated client-side.
	degraded atomic.Bool
}

// New connects to the vector store. The connection is lazy on the gRPC
// level; the first query surfaces connectivity errors.
func New(cfg *Config) (*Store, error) {
	host, port, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: connect %s: %w", cfg.Endpoint, err)
	}

	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = 1024
	}

	return &Store{
		client:     client,
		collection: cfg.Collection,
		dimensions: dimensions,
		counters:   cfg.Counters,
	}, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the profile collection when it does not exist:
// a named 1024-dim cosine dense vector plus a named sparse vector.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("vector: check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	slog.Info("vector: creating collection", "collection", s.collection, "dimensions", s.dimensions)
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {
				Size:     uint64(s.dimensions),
				Distance: qdrant.Distance_Cosine,
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVectorName: {},
		}),
	})
	if err != nil {
		return fmt.Errorf("vector: create collection %s: %w", s.collection, err)
	}
	return nil
}

// DualQuery runs the dense and sparse legs of a hybrid search and returns
// both result lists, each at most limit long. Fusion happens in the caller.
//
// 稀疏腿不可用时自动降级: 仅查 dense, 再用 payload 里的稀疏向量重排出稀疏腿。
// One leg failing hard degrades to the other; both failing returns an error.
func (s *Store) DualQuery(ctx context.Context, dense []float32, sparse map[string]float32, limit int, filter *Filter) (denseHits, sparseHits []Candidate, err error) {
	if s.degraded.Load() || len(sparse) == 0 {
		return s.denseWithRerank(ctx, dense, sparse, limit, filter)
	}

	type legResult struct {
		hits []Candidate
		err  error
	}
	denseCh := make(chan legResult, 1)
	sparseCh := make(chan legResult, 1)

	go func() {
		hits, err := s.queryDense(ctx, dense, limit, filter)
		denseCh <- legResult{hits, err}
	}()
	go func() {
		hits, err := s.querySparse(ctx, sparse, limit, filter)
		sparseCh <- legResult{hits, err}
	}()

	denseRes := <-denseCh
	sparseRes := <-sparseCh

	if sparseRes.err != nil && isSchemaError(sparseRes.err) {
		// Collection has no sparse index. Remember and rerank instead.
		s.degraded.Store(true)
		slog.Warn("vector: sparse index unavailable, switching to payload rerank", "error", sparseRes.err)
		if denseRes.err == nil {
			sparseRes.hits = rerankBySparsePayload(denseRes.hits, sparse, limit)
			sparseRes.err = nil
		}
	}

	switch {
	case denseRes.err != nil && sparseRes.err != nil:
		return nil, nil, fmt.Errorf("vector: both query legs failed: dense: %v; sparse: %v", denseRes.err, sparseRes.err)
	case denseRes.err != nil:
		slog.Warn("vector: dense leg failed, continuing sparse-only", "error", denseRes.err)
		return nil, sparseRes.hits, nil
	case sparseRes.err != nil:
		slog.Warn("vector: sparse leg failed, continuing dense-only", "error", sparseRes.err)
		return denseRes.hits, nil, nil
	}
	return denseRes.hits, sparseRes.hits, nil
}

// denseWithRerank serves the degraded hybrid path: one dense query, sparse
// leg synthesized by cosine against sparse vectors stored in payload.
func (s *Store) denseWithRerank(ctx context.Context, dense []float32, sparse map[string]float32, limit int, filter *Filter) ([]Candidate, []Candidate, error) {
	hits, err := s.queryDense(ctx, dense, limit, filter)
	if err != nil {
		return nil, nil, err
	}
	if len(sparse) == 0 {
		return hits, nil, nil
	}
	return hits, rerankBySparsePayload(hits, sparse, limit), nil
}

func (s *Store) queryDense(ctx context.Context, dense []float32, limit int, filter *Filter) ([]Candidate, error) {
	if len(dense) == 0 {
		return nil, fmt.Errorf("vector: empty dense query vector")
	}
	return s.query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(dense),
		Using:          qdrant.PtrOf(denseVectorName),
		Filter:         buildFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
}

func (s *Store) querySparse(ctx context.Context, sparse map[string]float32, limit int, filter *Filter) ([]Candidate, error) {
	indices, values := sparseIndices(sparse)
	return s.query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuerySparse(indices, values),
		Using:          qdrant.PtrOf(sparseVectorName),
		Filter:         buildFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
}

func (s *Store) query(ctx context.Context, req *qdrant.QueryPoints) ([]Candidate, error) {
	var points []*qdrant.ScoredPoint
	err := s.withRetry(ctx, func() error {
		if s.counters != nil {
			s.counters.RecordVectorQuery()
		}
		var qerr error
		points, qerr = s.client.Query(ctx, req)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	return toCandidates(points), nil
}

// Upsert writes profile points. Point IDs derive from the user_id hash so
// re-indexing a user overwrites in place.
func (s *Store) Upsert(ctx context.Context, points []ProfilePoint) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		vectors := map[string]*qdrant.Vector{
			denseVectorName: qdrant.NewVector(p.Dense...),
		}
		if len(p.Sparse) > 0 {
			indices, values := sparseIndices(p.Sparse)
			vectors[sparseVectorName] = qdrant.NewVectorSparse(indices, values)
		}

		payload := make(map[string]any, len(p.Payload)+2)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload["user_id"] = p.UserID
		if len(p.Sparse) > 0 {
			sparseCopy := make(map[string]any, len(p.Sparse))
			for token, weight := range p.Sparse {
				sparseCopy[token] = float64(weight)
			}
			payload[sparsePayloadKey] = sparseCopy
		}

		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(pointID(p.UserID)),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	return s.withRetry(ctx, func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         qdrantPoints,
		})
		if err != nil {
			return fmt.Errorf("vector: upsert %d points: %w", len(qdrantPoints), err)
		}
		return nil
	})
}

// withRetry retries transient store failures with exponential backoff
// (1.0s base, 1.5x factor, 3 attempts). Auth and schema errors surface
// immediately.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			slog.Warn("vector: retrying after transient failure",
				"attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("vector: %d attempts exhausted: %w", maxAttempts, lastErr)
}

func backoffDelay(attempt int) time.Duration {
	delay := float64(backoffBase)
	for i := 1; i < attempt; i++ {
		delay *= backoffFactor
	}
	return time.Duration(delay)
}

func isTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return true
	}
	return false
}

// isSchemaError reports whether the failure means the collection cannot
// serve the request shape at all (missing sparse index, wrong vector name).
func isSchemaError(err error) bool {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound:
		return true
	}
	return false
}

// buildFilter translates the portable filter into store conditions.
// ExcludeUserIDs becomes a must_not keyword match, equality predicates
// become must matches.
func buildFilter(f *Filter) *qdrant.Filter {
	if f == nil || (len(f.ExcludeUserIDs) == 0 && len(f.Match) == 0) {
		return nil
	}

	out := &qdrant.Filter{}
	if len(f.ExcludeUserIDs) > 0 {
		out.MustNot = append(out.MustNot, qdrant.NewMatchKeywords("user_id", f.ExcludeUserIDs...))
	}

	// Deterministic condition order for tests and request logs.
	fields := make([]string, 0, len(f.Match))
	for field := range f.Match {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		out.Must = append(out.Must, qdrant.NewMatch(field, f.Match[field]))
	}
	return out
}

// rerankBySparsePayload orders dense hits by cosine similarity between the
// query sparse vector and the sparse vector stored in each hit's payload.
// Hits without a stored sparse vector score 0 and sink to the tail.
func rerankBySparsePayload(hits []Candidate, query map[string]float32, limit int) []Candidate {
	if len(hits) == 0 {
		return nil
	}

	reranked := make([]Candidate, len(hits))
	for i, hit := range hits {
		reranked[i] = hit
		reranked[i].Score = sparseCosine(query, payloadSparse(hit.Payload))
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].Score != reranked[j].Score {
			return reranked[i].Score > reranked[j].Score
		}
		return reranked[i].UserID < reranked[j].UserID
	})
	if len(reranked) > limit {
		reranked = reranked[:limit]
	}
	return reranked
}

func payloadSparse(payload map[string]any) map[string]float32 {
	raw, ok := payload[sparsePayloadKey].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float32, len(raw))
	for token, v := range raw {
		if weight, ok := v.(float64); ok {
			out[token] = float32(weight)
		}
	}
	return out
}

func toCandidates(points []*qdrant.ScoredPoint) []Candidate {
	candidates := make([]Candidate, 0, len(points))
	for _, p := range points {
		payload := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = valueToAny(v)
		}

		userID, _ := payload["user_id"].(string)
		if userID == "" {
			// Point predates the payload convention; fall back to the raw ID.
			userID = pointIDString(p.Id)
		}

		candidates = append(candidates, Candidate{
			UserID:  userID,
			Score:   float64(p.Score),
			Payload: payload,
		})
	}
	return candidates
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(kind.ListValue.Values))
		for _, item := range kind.ListValue.Values {
			items = append(items, valueToAny(item))
		}
		return items
	case *qdrant.Value_StructValue:
		fields := make(map[string]any, len(kind.StructValue.Fields))
		for k, item := range kind.StructValue.Fields {
			fields[k] = valueToAny(item)
		}
		return fields
	default:
		return nil
	}
}

func pointID(userID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	return h.Sum64()
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func splitEndpoint(endpoint string) (string, int, error) {
	host := endpoint
	port := 6334
	for i := len(endpoint) - 1; i >= 0; i-- {
		if endpoint[i] == ':' {
			host = endpoint[:i]
			if _, err := fmt.Sscanf(endpoint[i+1:], "%d", &port); err != nil {
				return "", 0, fmt.Errorf("vector: invalid endpoint %q: %w", endpoint, err)
			}
			break
		}
	}
	if host == "" {
		return "", 0, fmt.Errorf("vector: invalid endpoint %q", endpoint)
	}
	return host, port, nil
}
