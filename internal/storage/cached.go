package storage

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/scrypster/recall/pkg/types"
)

const (
	// rerankFactsCacheSize bounds the per-node fact cache. Reranking hits
	// the same popular nodes repeatedly within and across queries.
	rerankFactsCacheSize = 4096

	// metricsTTL is how long graph metrics may be served stale. Budgets and
	// authority normalization tolerate slightly old counts.
	metricsTTL = 30 * time.Second
)

// metricsKey is the single key under which graph metrics are cached.
const metricsKey = "metrics"

// CachedStore decorates a GraphStore with read caches for the two hottest
// lookups on the query path: graph metrics and rerank facts. Writes pass
// through and invalidate what they may have changed.
type CachedStore struct {
	GraphStore

	facts   *lru.Cache[string, *RerankFacts]
	metrics *expirable.LRU[string, *GraphMetrics]
}

// NewCachedStore wraps inner with read caches.
func NewCachedStore(inner GraphStore) (*CachedStore, error) {
	facts, err := lru.New[string, *RerankFacts](rerankFactsCacheSize)
	if err != nil {
		return nil, fmt.Errorf("storage: build facts cache: %w", err)
	}
	return &CachedStore{
		GraphStore: inner,
		facts:      facts,
		metrics:    expirable.NewLRU[string, *GraphMetrics](1, nil, metricsTTL),
	}, nil
}

// GetGraphMetrics serves metrics from cache for up to metricsTTL.
func (c *CachedStore) GetGraphMetrics(ctx context.Context) (*GraphMetrics, error) {
	if m, ok := c.metrics.Get(metricsKey); ok {
		return m, nil
	}
	m, err := c.GraphStore.GetGraphMetrics(ctx)
	if err != nil {
		return nil, err
	}
	c.metrics.Add(metricsKey, m)
	return m, nil
}

// GetRerankFacts serves facts from the LRU, falling back to the inner store.
func (c *CachedStore) GetRerankFacts(ctx context.Context, id string) (*RerankFacts, error) {
	if f, ok := c.facts.Get(id); ok {
		return f, nil
	}
	f, err := c.GraphStore.GetRerankFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	c.facts.Add(id, f)
	return f, nil
}

// RecordAccess invalidates the accessed node's cached facts.
func (c *CachedStore) RecordAccess(ctx context.Context, id string, stability, retrievability float64) error {
	if err := c.GraphStore.RecordAccess(ctx, id, stability, retrievability); err != nil {
		return err
	}
	c.facts.Remove(id)
	return nil
}

// CreateNode invalidates cached metrics: node counts changed.
func (c *CachedStore) CreateNode(ctx context.Context, node *types.Node) error {
	if err := c.GraphStore.CreateNode(ctx, node); err != nil {
		return err
	}
	c.metrics.Remove(metricsKey)
	return nil
}

// CreateEdge invalidates cached metrics and the target's facts: edge counts
// and the target's inbound degree changed.
func (c *CachedStore) CreateEdge(ctx context.Context, edge *types.Edge) error {
	if err := c.GraphStore.CreateEdge(ctx, edge); err != nil {
		return err
	}
	c.metrics.Remove(metricsKey)
	c.facts.Remove(edge.TargetID)
	return nil
}
