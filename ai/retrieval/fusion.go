package retrieval

import (
	"math"
	"sort"

	"github.com/luoshen/linkmate/ai/vector"
)

// rrfK is the rank smoothing constant for reciprocal rank fusion.
const rrfK = 60

// dbsfFusion merges two result lists with distribution-based score fusion.
// Each list's scores are min-max normalized against the 3-sigma band around
// the list mean, then combined as denseWeight*dense + (1-denseWeight)*sparse.
// Candidates present in only one list contribute only that leg's term.
func dbsfFusion(dense, sparse []vector.Candidate, denseWeight float64) []vector.Candidate {
	denseNorm := sigmoidBandNormalize(dense)
	sparseNorm := sigmoidBandNormalize(sparse)

	fused := make(map[string]float64)
	for userID, score := range denseNorm {
		fused[userID] += denseWeight * score
	}
	for userID, score := range sparseNorm {
		fused[userID] += (1 - denseWeight) * score
	}

	return assemble(fused, dense, sparse)
}

// rrfFusion merges two result lists by reciprocal rank: each candidate
// scores sum(1 / (k + rank)) over the lists containing it, rank starting
// at 1. Robust to incomparable score scales.
func rrfFusion(dense, sparse []vector.Candidate) []vector.Candidate {
	fused := make(map[string]float64)
	for rank, c := range dense {
		fused[c.UserID] += 1.0 / float64(rrfK+rank+1)
	}
	for rank, c := range sparse {
		fused[c.UserID] += 1.0 / float64(rrfK+rank+1)
	}
	return assemble(fused, dense, sparse)
}

// zscoreFusion merges two result lists by standardizing each leg to zero
// mean and unit variance, then blending as denseWeight*dense +
// (1-denseWeight)*sparse. A leg with no score spread contributes 0 for all
// of its members.
func zscoreFusion(dense, sparse []vector.Candidate, denseWeight float64) []vector.Candidate {
	denseNorm := zscoreNormalize(dense)
	sparseNorm := zscoreNormalize(sparse)

	fused := make(map[string]float64)
	for userID, score := range denseNorm {
		fused[userID] += denseWeight * score
	}
	for userID, score := range sparseNorm {
		fused[userID] += (1 - denseWeight) * score
	}
	return assemble(fused, dense, sparse)
}

// sigmoidBandNormalize maps scores into [0,1] relative to the mean±3σ band.
// Degenerate lists (no spread) normalize to 0.5 for every member.
func sigmoidBandNormalize(list []vector.Candidate) map[string]float64 {
	if len(list) == 0 {
		return nil
	}
	mean, stddev := meanStddev(list)

	out := make(map[string]float64, len(list))
	if stddev == 0 {
		for _, c := range list {
			out[c.UserID] = 0.5
		}
		return out
	}

	low := mean - 3*stddev
	high := mean + 3*stddev
	for _, c := range list {
		v := (c.Score - low) / (high - low)
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		out[c.UserID] = v
	}
	return out
}

func zscoreNormalize(list []vector.Candidate) map[string]float64 {
	if len(list) == 0 {
		return nil
	}
	mean, stddev := meanStddev(list)

	out := make(map[string]float64, len(list))
	for _, c := range list {
		if stddev == 0 {
			out[c.UserID] = 0
		} else {
			out[c.UserID] = (c.Score - mean) / stddev
		}
	}
	return out
}

func meanStddev(list []vector.Candidate) (float64, float64) {
	var sum float64
	for _, c := range list {
		sum += c.Score
	}
	mean := sum / float64(len(list))

	var variance float64
	for _, c := range list {
		d := c.Score - mean
		variance += d * d
	}
	variance /= float64(len(list))
	return mean, math.Sqrt(variance)
}

// assemble turns a fused score map back into an ordered candidate list,
// preferring the dense leg's payload for candidates present in both.
// Score ties break by ascending user_id so results are deterministic.
func assemble(fused map[string]float64, dense, sparse []vector.Candidate) []vector.Candidate {
	byID := make(map[string]vector.Candidate, len(fused))
	for _, c := range sparse {
		byID[c.UserID] = c
	}
	for _, c := range dense {
		byID[c.UserID] = c
	}

	out := make([]vector.Candidate, 0, len(fused))
	for userID, score := range fused {
		c := byID[userID]
		c.Score = score
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
