package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// fakeGraph is an in-memory GraphReader for traversal and rerank tests.
type fakeGraph struct {
	neighbors map[string][]storage.Neighbor
	facts     map[string]*storage.RerankFacts
	metrics   *storage.GraphMetrics

	neighborErr map[string]error
	factsErr    map[string]error
	metricsErr  error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		neighbors:   make(map[string][]storage.Neighbor),
		facts:       make(map[string]*storage.RerankFacts),
		metrics:     &storage.GraphMetrics{TotalNodes: 1000, TotalEdges: 2000, Density: 2, AvgInbound: 2},
		neighborErr: make(map[string]error),
		factsErr:    make(map[string]error),
	}
}

func (g *fakeGraph) addEdge(from, to string, weight float64) {
	g.neighbors[from] = append(g.neighbors[from], storage.Neighbor{
		Node:   &types.Node{ID: to},
		Weight: weight,
	})
}

func (g *fakeGraph) GetNode(ctx context.Context, id string) (*types.Node, error) {
	return &types.Node{ID: id}, nil
}

func (g *fakeGraph) GetNeighbors(ctx context.Context, id string) ([]storage.Neighbor, error) {
	if err := g.neighborErr[id]; err != nil {
		return nil, err
	}
	return g.neighbors[id], nil
}

func (g *fakeGraph) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]storage.SearchHit, error) {
	return nil, nil
}

func (g *fakeGraph) BM25Search(ctx context.Context, terms []string, limit int) ([]storage.SearchHit, error) {
	return nil, nil
}

func (g *fakeGraph) GetGraphMetrics(ctx context.Context) (*storage.GraphMetrics, error) {
	if g.metricsErr != nil {
		return nil, g.metricsErr
	}
	return g.metrics, nil
}

func (g *fakeGraph) GetRerankFacts(ctx context.Context, id string) (*storage.RerankFacts, error) {
	if err := g.factsErr[id]; err != nil {
		return nil, err
	}
	if f, ok := g.facts[id]; ok {
		return f, nil
	}
	return nil, storage.ErrNotFound
}

func defaultActivation() config.ActivationParams {
	return config.DefaultParameters().Activation
}

func wideBudget() Budget {
	return Budget{EntryPoints: 5, MaxHops: 4, MaxNodes: 100}
}

func TestActivationNeverExceedsInitial(t *testing.T) {
	g := newFakeGraph()
	// Diamond: both paths from the seed converge on d, so sum aggregation
	// would overshoot without the cap.
	g.addEdge("a", "b", 1.0)
	g.addEdge("a", "c", 1.0)
	g.addEdge("b", "d", 1.0)
	g.addEdge("c", "d", 1.0)

	s := NewActivationSearch(g, defaultActivation())
	out, err := s.Run(context.Background(), []string{"a"}, wideBudget(), nil)
	require.NoError(t, err)

	for _, n := range out {
		assert.LessOrEqual(t, n.Activation, defaultActivation().InitialActivation,
			"node %s exceeds initial activation", n.NodeID)
	}
}

func TestActivationStrictlyDecreasesAlongPath(t *testing.T) {
	g := newFakeGraph()
	g.addEdge("a", "b", 0.9)
	g.addEdge("b", "c", 0.9)
	g.addEdge("c", "d", 0.9)

	params := defaultActivation()
	params.Aggregation = "max" // single path, no aggregation effects

	s := NewActivationSearch(g, params)
	out, err := s.Run(context.Background(), []string{"a"}, wideBudget(), nil)
	require.NoError(t, err)

	byID := make(map[string]float64)
	for _, n := range out {
		byID[n.NodeID] = n.Activation
	}
	assert.Greater(t, byID["a"], byID["b"])
	assert.Greater(t, byID["b"], byID["c"])
	assert.Greater(t, byID["c"], byID["d"])
}

func TestActivationRespectsMaxNodes(t *testing.T) {
	g := newFakeGraph()
	// Star with many leaves; expansion must stop at the node budget.
	for i := 0; i < 50; i++ {
		leaf := fmt.Sprintf("leaf%02d", i)
		g.addEdge("a", leaf, 1.0)
		g.addEdge(leaf, leaf+"-deep", 1.0)
	}

	budget := Budget{EntryPoints: 1, MaxHops: 4, MaxNodes: 5}
	s := NewActivationSearch(g, defaultActivation())
	out, err := s.Run(context.Background(), []string{"a"}, budget, nil)
	require.NoError(t, err)

	// The seed plus four leaves exhaust the budget, so at most four deep
	// nodes can be produced and nothing beyond depth two exists.
	deep := 0
	for _, n := range out {
		assert.LessOrEqual(t, len(n.Path), 3)
		if len(n.Path) == 3 {
			deep++
		}
	}
	assert.LessOrEqual(t, deep, 4)
}

func TestActivationHaltsBelowMinThreshold(t *testing.T) {
	g := newFakeGraph()
	g.addEdge("a", "b", 0.1) // 1.0 * 0.7 * 0.1 = 0.07, above the 0.05 floor
	g.addEdge("b", "c", 0.1) // next hop lands well below the floor

	s := NewActivationSearch(g, defaultActivation())
	out, err := s.Run(context.Background(), []string{"a"}, wideBudget(), nil)
	require.NoError(t, err)

	ids := make([]string, 0, len(out))
	for _, n := range out {
		ids = append(ids, n.NodeID)
	}
	assert.Contains(t, ids, "b")
	assert.NotContains(t, ids, "c")
}

func TestActivationRetainsStrongestPath(t *testing.T) {
	g := newFakeGraph()
	g.addEdge("a", "b", 0.9)
	g.addEdge("a", "c", 0.3)
	g.addEdge("b", "d", 0.9)
	g.addEdge("c", "d", 0.9)

	s := NewActivationSearch(g, defaultActivation())
	out, err := s.Run(context.Background(), []string{"a"}, wideBudget(), nil)
	require.NoError(t, err)

	var d *types.ActivatedNode
	for i := range out {
		if out[i].NodeID == "d" {
			d = &out[i]
		}
	}
	require.NotNil(t, d)
	assert.Equal(t, []string{"a", "b", "d"}, d.Path)
}

func TestActivationSeedsTruncatedToEntryPoints(t *testing.T) {
	g := newFakeGraph()
	s := NewActivationSearch(g, defaultActivation())

	budget := Budget{EntryPoints: 2, MaxHops: 2, MaxNodes: 50}
	out, err := s.Run(context.Background(), []string{"a", "b", "c", "d"}, budget, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestActivationDegradesOnNeighborError(t *testing.T) {
	g := newFakeGraph()
	g.addEdge("a", "b", 1.0)
	g.addEdge("a", "c", 1.0)
	g.addEdge("b", "d", 1.0)
	g.neighborErr["b"] = storage.ErrUnavailable

	s := NewActivationSearch(g, defaultActivation())
	out, err := s.Run(context.Background(), []string{"a"}, wideBudget(), nil)
	require.NoError(t, err)

	ids := make([]string, 0, len(out))
	for _, n := range out {
		ids = append(ids, n.NodeID)
	}
	assert.Contains(t, ids, "b")
	assert.Contains(t, ids, "c")
	assert.NotContains(t, ids, "d")
}

func TestActivationEmptySeeds(t *testing.T) {
	s := NewActivationSearch(newFakeGraph(), defaultActivation())
	out, err := s.Run(context.Background(), nil, wideBudget(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestActivationMaxAggregationKeepsStrongest(t *testing.T) {
	g := newFakeGraph()
	g.addEdge("a", "b", 0.8)
	g.addEdge("a", "c", 0.8)
	g.addEdge("b", "d", 0.9)
	g.addEdge("c", "d", 0.5)

	params := defaultActivation()
	params.Aggregation = "max"

	s := NewActivationSearch(g, params)
	out, err := s.Run(context.Background(), []string{"a"}, wideBudget(), nil)
	require.NoError(t, err)

	var got float64
	for _, n := range out {
		if n.NodeID == "d" {
			got = n.Activation
		}
	}
	want := 1.0 * 0.7 * 0.8 * 0.7 * 0.9
	assert.InDelta(t, want, got, 1e-9)
}
