// Package search implements graph retrieval for the query pipeline:
// spreading-activation traversal under adaptive budgets, hybrid dense/BM25
// candidate gathering, and multi-signal reranking.
package search

import (
	"strings"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage"
)

// Complexity classifies how much traversal a query deserves.
type Complexity string

// Query complexity classes.
const (
	ComplexitySimple   Complexity = "simple"
	ComplexityStandard Complexity = "standard"
	ComplexityComplex  Complexity = "complex"
)

// ClassifyComplexity buckets a query by length and extracted entity count.
// Short single-entity lookups traverse narrowly; long multi-entity queries
// get the widest budgets.
func ClassifyComplexity(query string, entityCount int) Complexity {
	tokens := len(strings.Fields(query))
	switch {
	case tokens <= 5 && entityCount <= 1:
		return ComplexitySimple
	case tokens <= 12 && entityCount <= 3:
		return ComplexityStandard
	default:
		return ComplexityComplex
	}
}

// Budget is the traversal limit set for one query.
type Budget struct {
	// EntryPoints is how many seed nodes activation starts from.
	EntryPoints int

	// MaxHops bounds traversal depth.
	MaxHops int

	// MaxNodes bounds the total nodes visited.
	MaxNodes int
}

// BudgetController derives per-query traversal budgets from graph shape and
// query complexity, and owns the convergence-termination rule.
type BudgetController struct {
	params config.BudgetParams
}

// NewBudgetController returns a controller using the given parameters.
func NewBudgetController(params config.BudgetParams) *BudgetController {
	return &BudgetController{params: params}
}

// denseGraphThreshold is the edges-per-node density above which traversal
// depth is reduced: in a highly connected graph each extra hop multiplies
// the frontier too fast.
const denseGraphThreshold = 5.0

// BudgetFor computes the traversal budget for one query. Small graphs use
// the cold-start tier regardless of complexity; otherwise the complexity
// tier is scaled against the actual graph size and density.
func (c *BudgetController) BudgetFor(metrics *storage.GraphMetrics, cx Complexity) Budget {
	if metrics == nil || metrics.TotalNodes < c.params.ColdStartNodes {
		return tierBudget(c.params.ColdStart)
	}

	var tier config.BudgetTier
	switch cx {
	case ComplexitySimple:
		tier = c.params.Simple
	case ComplexityComplex:
		tier = c.params.Complex
	default:
		tier = c.params.Standard
	}

	b := tierBudget(tier)

	// Never budget more nodes or seeds than the graph holds.
	if b.MaxNodes > metrics.TotalNodes {
		b.MaxNodes = metrics.TotalNodes
	}
	if b.EntryPoints > metrics.TotalNodes {
		b.EntryPoints = metrics.TotalNodes
	}

	// Dense graphs trade depth for breadth.
	if metrics.Density > denseGraphThreshold && b.MaxHops > 1 {
		b.MaxHops--
	}

	return b
}

func tierBudget(t config.BudgetTier) Budget {
	return Budget{EntryPoints: t.EntryPoints, MaxHops: t.MaxHops, MaxNodes: t.MaxNodes}
}

// ConvergenceTracker decides when traversal can stop early: once the top
// activation has moved less than epsilon for a full window of expansion
// rounds, further hops are unlikely to change the ranking.
type ConvergenceTracker struct {
	window  int
	epsilon float64

	last   float64
	stable int
	seeded bool
}

// NewConvergenceTracker returns a tracker using the controller's parameters.
func (c *BudgetController) NewConvergenceTracker() *ConvergenceTracker {
	return &ConvergenceTracker{
		window:  c.params.ConvergenceWindow,
		epsilon: c.params.ConvergenceEpsilon,
	}
}

// Observe records the top score after one expansion round and reports
// whether traversal should terminate.
func (t *ConvergenceTracker) Observe(topScore float64) bool {
	if t.seeded && topScore-t.last < t.epsilon && t.last-topScore < t.epsilon {
		t.stable++
	} else {
		t.stable = 0
	}
	t.last = topScore
	t.seeded = true
	return t.stable >= t.window
}
