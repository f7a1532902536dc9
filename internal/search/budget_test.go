package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage"
)

func TestClassifyComplexity(t *testing.T) {
	tests := []struct {
		query    string
		entities int
		want     Complexity
	}{
		{"John's birthday", 1, ComplexitySimple},
		{"what is the capital", 0, ComplexitySimple},
		{"what did John and Mary discuss last week", 2, ComplexityStandard},
		{"John's birthday", 2, ComplexityStandard},
		{"tell me everything about the project meetings John Mary and Steve attended in the office last month", 3, ComplexityComplex},
		{"short query", 4, ComplexityComplex},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyComplexity(tt.query, tt.entities), "query %q", tt.query)
	}
}

func TestBudgetColdStartBelowThreshold(t *testing.T) {
	c := NewBudgetController(config.DefaultParameters().Budgets)
	metrics := &storage.GraphMetrics{TotalNodes: 150, Density: 1}

	// Even a complex query gets the reduced cold-start tier on a small graph.
	b := c.BudgetFor(metrics, ComplexityComplex)
	assert.Equal(t, Budget{EntryPoints: 2, MaxHops: 2, MaxNodes: 50}, b)
}

func TestBudgetNilMetricsUsesColdStart(t *testing.T) {
	c := NewBudgetController(config.DefaultParameters().Budgets)
	b := c.BudgetFor(nil, ComplexityStandard)
	assert.Equal(t, Budget{EntryPoints: 2, MaxHops: 2, MaxNodes: 50}, b)
}

func TestBudgetComplexityTiers(t *testing.T) {
	c := NewBudgetController(config.DefaultParameters().Budgets)
	metrics := &storage.GraphMetrics{TotalNodes: 10000, Density: 2}

	assert.Equal(t, Budget{EntryPoints: 3, MaxHops: 2, MaxNodes: 100}, c.BudgetFor(metrics, ComplexitySimple))
	assert.Equal(t, Budget{EntryPoints: 5, MaxHops: 3, MaxNodes: 250}, c.BudgetFor(metrics, ComplexityStandard))
	assert.Equal(t, Budget{EntryPoints: 8, MaxHops: 4, MaxNodes: 500}, c.BudgetFor(metrics, ComplexityComplex))
}

func TestBudgetDenseGraphReducesHops(t *testing.T) {
	c := NewBudgetController(config.DefaultParameters().Budgets)
	metrics := &storage.GraphMetrics{TotalNodes: 10000, Density: 6.5}

	b := c.BudgetFor(metrics, ComplexityComplex)
	assert.Equal(t, 3, b.MaxHops)
}

func TestBudgetCappedAtGraphSize(t *testing.T) {
	c := NewBudgetController(config.DefaultParameters().Budgets)
	metrics := &storage.GraphMetrics{TotalNodes: 220, Density: 1}

	b := c.BudgetFor(metrics, ComplexityComplex)
	assert.Equal(t, 220, b.MaxNodes)
	assert.Equal(t, 8, b.EntryPoints)
}

func TestConvergenceTracker(t *testing.T) {
	c := NewBudgetController(config.DefaultParameters().Budgets) // window 3, epsilon 0.01
	tr := c.NewConvergenceTracker()

	assert.False(t, tr.Observe(0.5)) // first observation seeds
	assert.False(t, tr.Observe(0.505))
	assert.False(t, tr.Observe(0.506))
	assert.True(t, tr.Observe(0.507))
}

func TestConvergenceTrackerResetsOnMovement(t *testing.T) {
	c := NewBudgetController(config.DefaultParameters().Budgets)
	tr := c.NewConvergenceTracker()

	assert.False(t, tr.Observe(0.5))
	assert.False(t, tr.Observe(0.501))
	assert.False(t, tr.Observe(0.502))
	assert.False(t, tr.Observe(0.6)) // jump resets the stable count
	assert.False(t, tr.Observe(0.601))
	assert.False(t, tr.Observe(0.602))
	assert.True(t, tr.Observe(0.603))
}
