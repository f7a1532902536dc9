package types

// Signal names used in rerank breakdowns and weight configuration.
const (
	SignalSemantic  = "semantic"
	SignalKeyword   = "keyword"
	SignalGraph     = "graph"
	SignalRecency   = "recency"
	SignalAuthority = "authority"
	SignalAffinity  = "affinity"
)

// ScoredNode is a rerank candidate with its raw per-signal inputs. Semantic,
// Keyword, and Graph come from retrieval; the remaining signals are computed
// by the reranker from store facts.
type ScoredNode struct {
	// NodeID identifies the candidate.
	NodeID string `json:"node_id"`

	// Semantic is the dense-similarity score in [0, 1].
	Semantic float64 `json:"semantic"`

	// Keyword is the raw BM25 score (unnormalized; the reranker normalizes
	// against the batch maximum).
	Keyword float64 `json:"keyword"`

	// Graph is the spreading-activation score in [0, 1].
	Graph float64 `json:"graph"`
}

// SignalBreakdown is the normalized per-signal contribution of one candidate.
type SignalBreakdown struct {
	Semantic  float64 `json:"semantic"`
	Keyword   float64 `json:"keyword"`
	Graph     float64 `json:"graph"`
	Recency   float64 `json:"recency"`
	Authority float64 `json:"authority"`
	Affinity  float64 `json:"affinity"`
}

// RankedNode is the reranker output for one candidate: the fused score, the
// full per-signal breakdown, and the dominant signal for explainability.
type RankedNode struct {
	// NodeID identifies the candidate.
	NodeID string `json:"node_id"`

	// Score is the weighted fusion of all six signals, in [0, 1].
	Score float64 `json:"score"`

	// Breakdown holds each normalized signal value.
	Breakdown SignalBreakdown `json:"breakdown"`

	// DominantSignal names the signal with the largest weighted contribution.
	DominantSignal string `json:"dominant_signal"`
}

// ActivatedNode is a node reached by spreading activation.
//
// Activation never exceeds the seed's initial activation and is monotonically
// non-increasing along any single traversal path.
type ActivatedNode struct {
	// NodeID identifies the reached node.
	NodeID string `json:"node_id"`

	// Activation is the (possibly aggregated) activation value.
	Activation float64 `json:"activation"`

	// Path is the node-ID sequence that produced this activation, seed first.
	Path []string `json:"path"`
}
