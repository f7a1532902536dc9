package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

var pipelineNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

// fakeStore is an in-memory GraphReader for pipeline tests.
type fakeStore struct {
	nodes     map[string]*types.Node
	vector    []storage.SearchHit
	bm25      []storage.SearchHit
	neighbors map[string][]storage.Neighbor
	metrics   *storage.GraphMetrics

	vectorErr error
	bm25Err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:     make(map[string]*types.Node),
		neighbors: make(map[string][]storage.Neighbor),
		metrics:   &storage.GraphMetrics{TotalNodes: 5000, TotalEdges: 9000, Density: 1.8, AvgInbound: 1.8},
	}
}

func (s *fakeStore) addNode(id string, createdAt time.Time) {
	s.nodes[id] = &types.Node{ID: id, CreatedAt: createdAt, Retrievability: 1, Stability: 30}
}

func (s *fakeStore) GetNode(ctx context.Context, id string) (*types.Node, error) {
	if n, ok := s.nodes[id]; ok {
		return n, nil
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) GetNeighbors(ctx context.Context, id string) ([]storage.Neighbor, error) {
	return s.neighbors[id], nil
}

func (s *fakeStore) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]storage.SearchHit, error) {
	if s.vectorErr != nil {
		return nil, s.vectorErr
	}
	return s.vector, nil
}

func (s *fakeStore) BM25Search(ctx context.Context, terms []string, limit int) ([]storage.SearchHit, error) {
	if s.bm25Err != nil {
		return nil, s.bm25Err
	}
	return s.bm25, nil
}

func (s *fakeStore) GetGraphMetrics(ctx context.Context) (*storage.GraphMetrics, error) {
	return s.metrics, nil
}

func (s *fakeStore) GetRerankFacts(ctx context.Context, id string) (*storage.RerankFacts, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.RerankFacts{
		CreatedAt:        n.CreatedAt,
		LastAccessedAt:   pipelineNow.AddDate(0, 0, -1),
		AccessCount:      5,
		InboundEdgeCount: 2,
	}, nil
}

// fakeEmbedder returns a fixed vector or a degraded result.
type fakeEmbedder struct {
	degraded bool
	err      error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) (*types.EmbeddingResult, error) {
	if e.err != nil {
		return &types.EmbeddingResult{FallbackLevel: types.FallbackDegraded}, e.err
	}
	if e.degraded {
		return &types.EmbeddingResult{FallbackLevel: types.FallbackDegraded}, nil
	}
	return &types.EmbeddingResult{
		Vector:        []float32{0.1, 0.2, 0.3},
		Provider:      "test",
		FallbackLevel: types.FallbackPrimary,
	}, nil
}

func newTestPipeline(t *testing.T, store *fakeStore, emb Embedder) *Pipeline {
	t.Helper()
	p, err := New(store, emb, config.DefaultParameters())
	require.NoError(t, err)
	return p
}

func TestPipelineLookupAnswersDirectly(t *testing.T) {
	store := newFakeStore()
	store.addNode("contact-john", pipelineNow.AddDate(0, -6, 0))
	store.vector = []storage.SearchHit{{NodeID: "contact-john", Score: 0.92}}
	store.bm25 = []storage.SearchHit{{NodeID: "contact-john", Score: 8.1}}

	p := newTestPipeline(t, store, &fakeEmbedder{})
	res, err := p.Run(context.Background(), "What's John's phone number?", pipelineNow, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionSkip, res.Classification.Decision)
	assert.Equal(t, types.QueryLookup, res.Classification.QueryType)
	assert.Nil(t, res.Classification.Handoff)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "contact-john", res.Results[0].NodeID)
	assert.Equal(t, types.FallbackPrimary, res.FallbackLevel)
}

func TestPipelineRecordsCPUStageOverruns(t *testing.T) {
	store := newFakeStore()
	store.addNode("contact-john", pipelineNow.AddDate(0, -6, 0))
	store.vector = []storage.SearchHit{{NodeID: "contact-john", Score: 0.92}}

	// Nanosecond allotments: any real work overruns them, so every
	// elapsed-checked stage must show up as degraded.
	params := config.DefaultParameters()
	params.Pipeline.TemporalParse = time.Nanosecond
	params.Pipeline.EntityExtract = time.Nanosecond
	params.Pipeline.Confidence = time.Nanosecond
	params.Pipeline.Handoff = time.Nanosecond
	p, err := New(store, &fakeEmbedder{}, params)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), "what did John say yesterday", pipelineNow, time.UTC)
	require.NoError(t, err)

	assert.Contains(t, res.DegradedStages, "temporal_parse")
	assert.Contains(t, res.DegradedStages, "entity_extract")
	assert.Contains(t, res.DegradedStages, "confidence")
	assert.Contains(t, res.DegradedStages, "handoff")
}

func TestPipelineAssemblyOverrunIsReported(t *testing.T) {
	store := newFakeStore()
	store.addNode("n1", pipelineNow.AddDate(0, -1, 0))
	store.vector = []storage.SearchHit{{NodeID: "n1", Score: 0.9}}

	params := config.DefaultParameters()
	params.Pipeline.Assembly = time.Nanosecond
	p, err := New(store, &fakeEmbedder{}, params)
	require.NoError(t, err)

	res, err := p.Run(context.Background(), "What's John's phone number?", pipelineNow, time.UTC)
	require.NoError(t, err)

	// Reranking still produces an ordered result; only the allotment is
	// reported as blown.
	require.NotEmpty(t, res.Results)
	assert.Contains(t, res.DegradedStages, "assembly")
}

func TestPipelineDisqualifiedEscalatesWithCandidates(t *testing.T) {
	store := newFakeStore()
	store.addNode("n1", pipelineNow.AddDate(0, -1, 0))
	store.vector = []storage.SearchHit{{NodeID: "n1", Score: 0.9}}

	p := newTestPipeline(t, store, &fakeEmbedder{})
	res, err := p.Run(context.Background(), "why did John not call me back", pipelineNow, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionPhase2, res.Classification.Decision)
	require.NotNil(t, res.Classification.Handoff)
	// Reasoning is checked before negation, so it is the reported reason.
	assert.Contains(t, res.Classification.Handoff.Reason, "reasoning")
	assert.NotEmpty(t, res.Classification.Handoff.Results)
}

func TestPipelineNoResultsEscalates(t *testing.T) {
	store := newFakeStore()

	p := newTestPipeline(t, store, &fakeEmbedder{})
	res, err := p.Run(context.Background(), "What's John's phone number?", pipelineNow, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionPhase2, res.Classification.Decision)
	require.NotNil(t, res.Classification.Handoff)
	assert.Empty(t, res.Classification.Handoff.Results)
}

func TestPipelineTemporalFilterDropsOutOfRange(t *testing.T) {
	store := newFakeStore()
	// "yesterday" is 2025-01-14; one node from that day, one far older.
	store.addNode("fresh", time.Date(2025, 1, 14, 15, 0, 0, 0, time.UTC))
	store.addNode("stale", pipelineNow.AddDate(0, -8, 0))
	store.vector = []storage.SearchHit{
		{NodeID: "fresh", Score: 0.7},
		{NodeID: "stale", Score: 0.9},
	}

	p := newTestPipeline(t, store, &fakeEmbedder{})
	res, err := p.Run(context.Background(), "what did I write down yesterday", pipelineNow, time.UTC)
	require.NoError(t, err)

	// Time-referenced queries escalate, but the handoff candidates must
	// respect the parsed window.
	require.NotNil(t, res.Temporal)
	for _, r := range res.Results {
		assert.NotEqual(t, "stale", r.NodeID)
	}
}

func TestPipelineDegradedEmbeddingFallsBackToKeyword(t *testing.T) {
	store := newFakeStore()
	store.addNode("n1", pipelineNow.AddDate(0, -1, 0))
	store.bm25 = []storage.SearchHit{{NodeID: "n1", Score: 4.2}}

	p := newTestPipeline(t, store, &fakeEmbedder{degraded: true})
	res, err := p.Run(context.Background(), "What's John's phone number?", pipelineNow, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, types.FallbackDegraded, res.FallbackLevel)
	assert.Contains(t, res.DegradedStages, "semantic_filter")
	assert.NotEmpty(t, res.Results)
}

func TestPipelineVectorSearchFailureDegrades(t *testing.T) {
	store := newFakeStore()
	store.addNode("n1", pipelineNow.AddDate(0, -1, 0))
	store.vectorErr = storage.ErrUnavailable
	store.bm25 = []storage.SearchHit{{NodeID: "n1", Score: 4.2}}

	p := newTestPipeline(t, store, &fakeEmbedder{})
	res, err := p.Run(context.Background(), "What's John's phone number?", pipelineNow, time.UTC)
	require.NoError(t, err)

	assert.Contains(t, res.DegradedStages, "vector_search")
	assert.NotEmpty(t, res.Results)
}

func TestPipelineCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, newFakeStore(), &fakeEmbedder{})
	_, err := p.Run(ctx, "What's John's phone number?", pipelineNow, time.UTC)
	assert.True(t, errors.Is(err, context.Canceled))
}
