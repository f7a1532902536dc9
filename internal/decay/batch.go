package decay

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

const (
	// batchPageSize is how many nodes a batch pass loads per page.
	batchPageSize = 500

	// writeBackEpsilon is the minimum retrievability change required to
	// persist a row; smaller drifts are left for the next pass.
	writeBackEpsilon = 0.001
)

// BatchRunner walks all non-terminal nodes, recomputes their decay state, and
// persists the rows that changed. It is driven by an external scheduler; one
// Run call is one complete pass.
type BatchRunner struct {
	engine *Engine
	store  storage.GraphStore
}

// NewBatchRunner returns a batch runner over the given store.
func NewBatchRunner(engine *Engine, store storage.GraphStore) *BatchRunner {
	return &BatchRunner{engine: engine, store: store}
}

// BatchStats summarizes one decay pass.
type BatchStats struct {
	// Scanned is the number of candidate nodes examined.
	Scanned int

	// Updated is the number of node rows written back.
	Updated int

	// EdgesCascaded is the number of edge weights written back.
	EdgesCascaded int
}

// Run executes one full decay pass at the given instant. Errors on
// individual rows are logged and skipped so one bad node never stalls the
// pass; a store-level page failure aborts with partial stats.
func (b *BatchRunner) Run(ctx context.Context, now time.Time) (BatchStats, error) {
	var stats BatchStats

	for offset := 0; ; offset += batchPageSize {
		nodes, err := b.store.ListDecayCandidates(ctx, offset, batchPageSize)
		if err != nil {
			return stats, fmt.Errorf("decay: list candidates at offset %d: %w", offset, err)
		}
		if len(nodes) == 0 {
			break
		}

		for _, node := range nodes {
			stats.Scanned++
			if err := b.processNode(ctx, node, now, &stats); err != nil {
				log.Printf("decay: node %s skipped: %v", node.ID, err)
			}
		}

		if len(nodes) < batchPageSize {
			break
		}
	}

	log.Printf("decay: pass complete, scanned=%d updated=%d edges=%d",
		stats.Scanned, stats.Updated, stats.EdgesCascaded)
	return stats, nil
}

func (b *BatchRunner) processNode(ctx context.Context, node *types.Node, now time.Time, stats *BatchStats) error {
	state := b.engine.Compute(node, now)

	// Lifecycle never regresses without an access event; keep the later
	// stage when the stored row is already further along.
	lifecycle := state.Lifecycle
	if types.IsLaterStage(node.State, lifecycle) {
		lifecycle = node.State
	}

	changed := math.Abs(state.Retrievability-node.Retrievability) >= writeBackEpsilon ||
		lifecycle != node.State

	if !changed {
		return nil
	}

	dropped := state.Retrievability < node.Retrievability

	if err := b.store.UpdateNodeDecay(ctx, storage.DecayUpdate{
		NodeID:         node.ID,
		Stability:      node.Stability,
		Retrievability: state.Retrievability,
		State:          lifecycle,
	}); err != nil {
		return err
	}
	stats.Updated++

	// Cascade only when retrievability actually fell; rounding jitter must
	// not erode edge weights.
	if !dropped {
		return nil
	}

	edges, err := b.store.GetOutgoingEdges(ctx, node.ID)
	if err != nil {
		return fmt.Errorf("outgoing edges: %w", err)
	}
	for _, edge := range edges {
		newWeight := b.engine.CascadeWeight(edge.Weight, state.Retrievability)
		if newWeight >= edge.Weight {
			continue
		}
		if err := b.store.UpdateEdgeWeight(ctx, edge.ID, newWeight); err != nil {
			log.Printf("decay: edge %s cascade skipped: %v", edge.ID, err)
			continue
		}
		stats.EdgesCascaded++
	}
	return nil
}
