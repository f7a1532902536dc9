package storage

import (
	"errors"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates the backing store failed or timed out. Callers
	// treat it as retryable and degrade the affected signal instead of
	// aborting the pipeline.
	ErrUnavailable = errors.New("store unavailable")
)

// GraphMetrics summarizes graph shape. The budget controller derives
// traversal limits from it and the reranker normalizes authority against it.
type GraphMetrics struct {
	// TotalNodes is the number of live nodes.
	TotalNodes int

	// TotalEdges is the number of live edges.
	TotalEdges int

	// Density is edges / nodes (0 when the graph is empty).
	Density float64

	// AvgInbound is the mean inbound-edge count per node.
	AvgInbound float64

	// AvgOutbound is the mean outbound-edge count per node.
	AvgOutbound float64
}

// Neighbor is one adjacent node together with the connecting edge. Weight is
// the effective propagation weight (stored edge weight, falling back to the
// relation-type default).
type Neighbor struct {
	Node   *types.Node
	Edge   *types.Edge
	Weight float64
}

// SearchHit is one result from vector or keyword search.
type SearchHit struct {
	// NodeID identifies the matched node.
	NodeID string

	// Score is the backend's relevance score. Vector hits are cosine
	// similarity in [0, 1]; keyword hits are raw rank scores normalized
	// later by the reranker.
	Score float64
}

// RerankFacts are the per-node facts the reranker needs beyond retrieval
// scores.
type RerankFacts struct {
	// LastAccessedAt is when the node was last read; zero if never.
	LastAccessedAt time.Time

	// CreatedAt is the node's creation time.
	CreatedAt time.Time

	// AccessCount is the total read count.
	AccessCount int

	// InboundEdgeCount is the node's inbound degree.
	InboundEdgeCount int
}

// DecayUpdate is the write-back payload for one node after a decay pass.
type DecayUpdate struct {
	// NodeID identifies the node.
	NodeID string

	// Stability is the new stability in days.
	Stability float64

	// Retrievability is the new retrievability in (0, 1].
	Retrievability float64

	// State is the new lifecycle state.
	State types.LifecycleState
}
