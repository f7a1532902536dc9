package search

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Reranker fuses six normalized signals into a single score per candidate.
// Semantic, keyword, and graph scores arrive with the candidates; recency,
// authority, and affinity are computed here from store facts. A store
// failure degrades the affected signals to zero instead of failing the
// batch.
type Reranker struct {
	store  storage.GraphReader
	params config.RerankerParams
}

// NewReranker builds a reranker. The weight vector must cover all six
// signals and sum to 1.0; configuration is validated at load time, but the
// check is repeated here so a hand-built parameter struct fails fast.
func NewReranker(store storage.GraphReader, params config.RerankerParams) (*Reranker, error) {
	sum := 0.0
	for _, sig := range []string{
		types.SignalSemantic, types.SignalKeyword, types.SignalGraph,
		types.SignalRecency, types.SignalAuthority, types.SignalAffinity,
	} {
		w, ok := params.Weights[sig]
		if !ok {
			return nil, fmt.Errorf("search: reranker weights missing signal %q", sig)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-3 {
		return nil, fmt.Errorf("search: reranker weights sum to %f, want 1.0", sum)
	}
	return &Reranker{store: store, params: params}, nil
}

// Rank scores candidates and returns them best first. Keyword scores are
// normalized against the batch maximum, so a candidate's keyword signal is
// relative to this batch, not to any absolute BM25 scale.
func (r *Reranker) Rank(ctx context.Context, now time.Time, candidates []types.ScoredNode) []types.RankedNode {
	if len(candidates) == 0 {
		return nil
	}

	metrics, err := r.store.GetGraphMetrics(ctx)
	if err != nil {
		log.Printf("search: graph metrics unavailable, authority degrades to zero: %v", err)
		metrics = nil
	}

	maxKeyword := 0.0
	for _, c := range candidates {
		if c.Keyword > maxKeyword {
			maxKeyword = c.Keyword
		}
	}

	ranked := make([]types.RankedNode, 0, len(candidates))
	for _, c := range candidates {
		breakdown := types.SignalBreakdown{
			Semantic: clamp01(c.Semantic),
			Graph:    clamp01(c.Graph),
		}
		if maxKeyword > 0 {
			breakdown.Keyword = clamp01(c.Keyword / maxKeyword)
		}

		facts, err := r.store.GetRerankFacts(ctx, c.NodeID)
		if err != nil {
			// Recency, authority, and affinity all need store facts;
			// without them those signals contribute nothing.
			log.Printf("search: rerank facts for %s unavailable: %v", c.NodeID, err)
		} else {
			breakdown.Recency = r.recency(facts, now)
			breakdown.Authority = r.authority(facts, metrics)
			breakdown.Affinity = r.affinity(facts, breakdown.Recency, now)
		}

		score, dominant := r.fuse(breakdown)
		ranked = append(ranked, types.RankedNode{
			NodeID:         c.NodeID,
			Score:          score,
			Breakdown:      breakdown,
			DominantSignal: dominant,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].NodeID < ranked[j].NodeID
	})
	return ranked
}

// recency decays with time since last access, half-life configured in days.
// Content created within the new-content window gets a flat boost so brand
// new nodes are not buried before their first access.
func (r *Reranker) recency(facts *storage.RerankFacts, now time.Time) float64 {
	ref := facts.LastAccessedAt
	if ref.IsZero() {
		ref = facts.CreatedAt
	}
	days := now.Sub(ref).Hours() / 24
	if days < 0 {
		days = 0
	}
	v := math.Pow(0.5, days/r.params.RecencyHalfLifeDays)

	ageDays := now.Sub(facts.CreatedAt).Hours() / 24
	if ageDays >= 0 && ageDays <= r.params.NewContentDays {
		v += r.params.NewContentBoost
	}
	return clamp01(v)
}

// authority is inbound degree relative to the graph average, capped at a
// configured multiple of that average and normalized by the cap.
func (r *Reranker) authority(facts *storage.RerankFacts, metrics *storage.GraphMetrics) float64 {
	if metrics == nil || metrics.AvgInbound <= 0 {
		return 0
	}
	ratio := float64(facts.InboundEdgeCount) / metrics.AvgInbound
	if ratio > r.params.AuthorityCapMultiple {
		ratio = r.params.AuthorityCapMultiple
	}
	return clamp01(ratio / r.params.AuthorityCapMultiple)
}

// affinity measures how habitually the node is touched: accesses per day of
// age, weighted toward recently active nodes, saturating at the configured
// ceiling.
func (r *Reranker) affinity(facts *storage.RerankFacts, recency float64, now time.Time) float64 {
	ageDays := now.Sub(facts.CreatedAt).Hours() / 24
	if ageDays < 1 {
		ageDays = 1
	}
	rate := float64(facts.AccessCount) / ageDays
	raw := rate * (0.5 + 0.5*recency)
	if raw > r.params.AffinityCeiling {
		raw = r.params.AffinityCeiling
	}
	if r.params.AffinityCeiling <= 0 {
		return 0
	}
	return clamp01(raw / r.params.AffinityCeiling)
}

// fuse computes the weighted sum and names the signal with the largest
// weighted contribution. Ties break on the fixed signal order so the
// dominant label is deterministic.
func (r *Reranker) fuse(b types.SignalBreakdown) (float64, string) {
	contributions := []struct {
		name  string
		value float64
	}{
		{types.SignalSemantic, b.Semantic},
		{types.SignalKeyword, b.Keyword},
		{types.SignalGraph, b.Graph},
		{types.SignalRecency, b.Recency},
		{types.SignalAuthority, b.Authority},
		{types.SignalAffinity, b.Affinity},
	}

	score := 0.0
	dominant := contributions[0].name
	best := -1.0
	for _, c := range contributions {
		weighted := r.params.Weights[c.name] * c.value
		score += weighted
		if weighted > best {
			best = weighted
			dominant = c.name
		}
	}
	return clamp01(score), dominant
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
