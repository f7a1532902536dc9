// Package storage provides composable storage interfaces for the recall
// system.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The retrieval core issues
// no retries: a failed call surfaces as ErrUnavailable and the affected
// signal degrades to zero rather than aborting the pipeline.
package storage

import (
	"context"

	"github.com/scrypster/recall/pkg/types"
)

// GraphReader is the read surface consumed by the per-query pipeline
// (spreading activation, reranking, classification).
type GraphReader interface {
	// GetNode retrieves a node by ID. Returns ErrNotFound when absent.
	GetNode(ctx context.Context, id string) (*types.Node, error)

	// GetNeighbors returns the outgoing neighbors of a node with their
	// connecting edges and effective propagation weights.
	GetNeighbors(ctx context.Context, id string) ([]Neighbor, error)

	// VectorSearch returns the nodes nearest to the embedding by cosine
	// similarity, best first.
	VectorSearch(ctx context.Context, embedding []float32, limit int) ([]SearchHit, error)

	// BM25Search returns nodes matching the given terms by keyword rank,
	// best first. Scores are backend-relative; callers normalize against
	// the batch maximum.
	BM25Search(ctx context.Context, terms []string, limit int) ([]SearchHit, error)

	// GetGraphMetrics returns current graph shape metrics.
	GetGraphMetrics(ctx context.Context) (*GraphMetrics, error)

	// GetRerankFacts returns the per-node facts needed for reranking.
	// Returns ErrNotFound when the node is absent.
	GetRerankFacts(ctx context.Context, id string) (*RerankFacts, error)
}

// GraphWriter is the mutation surface used by ingestion, access recording,
// and the decay batch.
type GraphWriter interface {
	// CreateNode inserts a node. The caller is expected to have applied the
	// behavior-type decay defaults already.
	CreateNode(ctx context.Context, node *types.Node) error

	// CreateEdge inserts an edge between two existing nodes.
	CreateEdge(ctx context.Context, edge *types.Edge) error

	// RecordAccess applies an access event: increments access_count, stamps
	// last_accessed_at, and writes the post-access stability and
	// retrievability computed by the decay engine.
	RecordAccess(ctx context.Context, id string, stability, retrievability float64) error

	// UpdateNodeDecay writes back the result of a decay pass for one node.
	UpdateNodeDecay(ctx context.Context, upd DecayUpdate) error

	// UpdateEdgeWeight writes a cascaded edge weight.
	UpdateEdgeWeight(ctx context.Context, edgeID string, weight float64) error
}

// DecayLister enumerates nodes for the periodic decay batch.
type DecayLister interface {
	// ListDecayCandidates returns nodes whose lifecycle state is not yet
	// terminal (archived), in stable ID order, paged by offset/limit.
	ListDecayCandidates(ctx context.Context, offset, limit int) ([]*types.Node, error)

	// GetOutgoingEdges returns all outgoing edges of a node, for cascade.
	GetOutgoingEdges(ctx context.Context, nodeID string) ([]*types.Edge, error)
}

// GraphStore is the full contract implemented by the postgres and sqlite
// backends.
type GraphStore interface {
	GraphReader
	GraphWriter
	DecayLister

	// Close releases any resources held by the store.
	Close() error
}
