package search

import (
	"sort"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage"
)

// MergeHybrid fuses dense and BM25 hit lists into one ranked list for entry
// point selection. BM25 scores are normalized against their batch maximum
// before weighting, the same treatment the reranker applies later. A node
// present in only one list contributes zero on the other channel.
func MergeHybrid(dense, keyword []storage.SearchHit, p config.HybridParams, limit int) []storage.SearchHit {
	maxBM25 := 0.0
	for _, h := range keyword {
		if h.Score > maxBM25 {
			maxBM25 = h.Score
		}
	}

	fused := make(map[string]float64, len(dense)+len(keyword))
	for _, h := range dense {
		fused[h.NodeID] += p.DenseWeight * clamp01(h.Score)
	}
	if maxBM25 > 0 {
		for _, h := range keyword {
			fused[h.NodeID] += p.BM25Weight * clamp01(h.Score/maxBM25)
		}
	}

	out := make([]storage.SearchHit, 0, len(fused))
	for id, score := range fused {
		out = append(out, storage.SearchHit{NodeID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].NodeID < out[j].NodeID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
