package embedding

import (
	"sync"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// HealthTracker records per-provider call outcomes. It is an injected,
// explicitly owned object rather than package state, so tests and parallel
// pipelines can hold isolated instances.
//
// Updates are last-writer-wins per field: health is advisory steering for
// the fallback chain, never a correctness gate.
type HealthTracker struct {
	mu        sync.Mutex
	providers map[string]*types.ProviderHealth
}

// NewHealthTracker returns an empty tracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{providers: make(map[string]*types.ProviderHealth)}
}

// RecordSuccess marks a successful call for the provider and clears its
// failure streak.
func (h *HealthTracker) RecordSuccess(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ph := h.get(provider)
	ph.IsAvailable = true
	ph.LastSuccessAt = time.Now()
	ph.ConsecutiveFailures = 0
	ph.LastError = ""
}

// RecordFailure marks a failed call for the provider.
func (h *HealthTracker) RecordFailure(provider string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ph := h.get(provider)
	ph.IsAvailable = false
	ph.LastFailureAt = time.Now()
	ph.ConsecutiveFailures++
	if err != nil {
		ph.LastError = err.Error()
	}
}

// ConsecutiveFailures returns the provider's current failure streak.
func (h *HealthTracker) ConsecutiveFailures(provider string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.get(provider).ConsecutiveFailures
}

// Snapshot returns a copy of all provider health records.
func (h *HealthTracker) Snapshot() []types.ProviderHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.ProviderHealth, 0, len(h.providers))
	for _, ph := range h.providers {
		out = append(out, *ph)
	}
	return out
}

// get returns the record for provider, creating it on first touch. Caller
// must hold the mutex.
func (h *HealthTracker) get(provider string) *types.ProviderHealth {
	ph, ok := h.providers[provider]
	if !ok {
		ph = &types.ProviderHealth{Provider: provider, IsAvailable: true}
		h.providers[provider] = ph
	}
	return ph
}
