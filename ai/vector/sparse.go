package vector

import (
	"hash/fnv"
	"math"
	"sort"
)

// sparseIndices converts a token-weighted sparse vector into the parallel
// index/value arrays the store expects. Token strings hash to uint32 via
// FNV-1a; collisions merge by keeping the larger weight. Output is sorted by
// index so repeated encodes of the same vector are byte-identical.
func sparseIndices(sparse map[string]float32) ([]uint32, []float32) {
	if len(sparse) == 0 {
		return nil, nil
	}

	merged := make(map[uint32]float32, len(sparse))
	for token, weight := range sparse {
		idx := hashToken(token)
		if existing, ok := merged[idx]; !ok || weight > existing {
			merged[idx] = weight
		}
	}

	indices := make([]uint32, 0, len(merged))
	for idx := range merged {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = merged[idx]
	}
	return indices, values
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return h.Sum32()
}

// sparseCosine computes cosine similarity between two token-weighted
// vectors. Returns 0 when either side is empty or zero.
func sparseCosine(a, b map[string]float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Iterate the smaller map.
	if len(b) < len(a) {
		a, b = b, a
	}

	var dot, normA, normB float64
	for token, wa := range a {
		if wb, ok := b[token]; ok {
			dot += float64(wa) * float64(wb)
		}
		normA += float64(wa) * float64(wa)
	}
	for _, wb := range b {
		normB += float64(wb) * float64(wb)
	}
	if dot == 0 || normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
