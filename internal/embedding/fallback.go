package embedding

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

// chainEntry is one provider in the ranked fallback chain.
type chainEntry struct {
	provider Provider
	level    types.FallbackLevel
	breaker  *gobreaker.CircuitBreaker // nil for the in-process local provider
}

// FallbackController walks a ranked provider chain (primary → secondary →
// local) and tracks the chain's degradation level.
//
// Level transitions: a failure of the provider at the current level steps the
// level down one; only a primary success resets the level back to primary. A
// success on any non-primary provider clears that provider's failure streak
// but keeps the current degraded level. When the whole chain is exhausted the
// controller returns a null embedding marked degraded — never an error — so
// callers degrade instead of blocking.
type FallbackController struct {
	chain      []chainEntry
	health     *HealthTracker
	maxRetries int

	mu    sync.Mutex
	level int // index into chain of the current starting provider
}

// NewFallbackController builds the chain from the configured providers.
// primary and secondary may be nil (e.g. no API key configured); local is
// always present as the last entry.
func NewFallbackController(primary, secondary Provider, local Provider, health *HealthTracker, params config.EmbeddingParams) *FallbackController {
	fc := &FallbackController{
		health:     health,
		maxRetries: params.MaxRetries,
	}

	add := func(p Provider, level types.FallbackLevel, protected bool) {
		if p == nil {
			return
		}
		entry := chainEntry{provider: p, level: level}
		if protected {
			entry.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name: "embedding-" + p.GetModel(),
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= uint32(params.MaxRetries)
				},
			})
		}
		fc.chain = append(fc.chain, entry)
	}

	add(primary, types.FallbackPrimary, true)
	add(secondary, types.FallbackSecondary, true)
	add(local, types.FallbackLocal, false)
	return fc
}

// CurrentLevel returns the chain's current degradation level.
func (fc *FallbackController) CurrentLevel() types.FallbackLevel {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.level >= len(fc.chain) {
		return types.FallbackDegraded
	}
	return fc.chain[fc.level].level
}

// GetNextProvider returns the provider after the one identified by model in
// the chain, or nil when model is last (the chain is exhausted past it).
func (fc *FallbackController) GetNextProvider(model string) Provider {
	for i, entry := range fc.chain {
		if entry.provider.GetModel() == model {
			if i+1 < len(fc.chain) {
				return fc.chain[i+1].provider
			}
			return nil
		}
	}
	return nil
}

// Embed walks the chain starting at the current level and returns the first
// successful result.
//
// Retryable failures (429, 5xx, network) step down the chain; a terminal
// failure (400/401/403) stops the walk immediately — no retry, no provider
// rotation — and is returned to the caller alongside a degraded result.
// Chain exhaustion is not an error: the result carries a nil vector and
// FallbackLevel=degraded.
func (fc *FallbackController) Embed(ctx context.Context, text string) (*types.EmbeddingResult, error) {
	fc.mu.Lock()
	start := fc.level
	fc.mu.Unlock()

	for i := start; i < len(fc.chain); i++ {
		entry := fc.chain[i]
		vec, err := fc.callProvider(ctx, entry, text)
		if err == nil {
			fc.health.RecordSuccess(entry.provider.GetModel())
			fc.recordLevelAfterSuccess(i)
			return &types.EmbeddingResult{
				Vector:        vec,
				Provider:      entry.provider.GetModel(),
				FallbackLevel: entry.level,
				Provisional:   entry.level != types.FallbackPrimary,
				ContextHash:   ContextHash(text, entry.provider.GetModel()),
			}, nil
		}

		fc.health.RecordFailure(entry.provider.GetModel(), err)

		if !IsRetryable(err) {
			return &types.EmbeddingResult{FallbackLevel: types.FallbackDegraded}, err
		}

		log.Printf("embedding: provider %s failed (%v), stepping down", entry.provider.GetModel(), err)
		fc.stepDownFrom(i)
	}

	// Chain exhausted: fully degraded, zero latency guarantee for the caller.
	return &types.EmbeddingResult{FallbackLevel: types.FallbackDegraded}, nil
}

// callProvider invokes the provider through its breaker when it has one.
func (fc *FallbackController) callProvider(ctx context.Context, entry chainEntry, text string) ([]float32, error) {
	if entry.breaker == nil {
		return entry.provider.Embed(ctx, text)
	}
	result, err := entry.breaker.Execute(func() (interface{}, error) {
		return entry.provider.Embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			// An open breaker behaves like a fast retryable failure.
			return nil, &ProviderError{Provider: entry.provider.GetModel(), StatusCode: 503, Err: err}
		}
		return nil, err
	}
	return result.([]float32), nil
}

// recordLevelAfterSuccess applies the level rule: only a primary success
// resets the chain to primary.
func (fc *FallbackController) recordLevelAfterSuccess(idx int) {
	if fc.chain[idx].level != types.FallbackPrimary {
		return
	}
	fc.mu.Lock()
	fc.level = 0
	fc.mu.Unlock()
}

// RunPrimaryProbe re-probes the primary provider at the given interval while
// the chain is degraded, so a recovered primary pulls the level back up
// without waiting on query traffic. Blocks until ctx is cancelled; run it on
// its own goroutine.
func (fc *FallbackController) RunPrimaryProbe(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if fc.CurrentLevel() == types.FallbackPrimary {
				continue
			}
			if fc.ProbePrimary(ctx) {
				log.Printf("embedding: primary recovered, chain reset")
			}
		}
	}
}

// ProbePrimary attempts one call against the primary provider regardless of
// the current level, so a recovered primary can pull the chain back up.
// Called from RunPrimaryProbe, not the query path.
func (fc *FallbackController) ProbePrimary(ctx context.Context) bool {
	if len(fc.chain) == 0 || fc.chain[0].level != types.FallbackPrimary {
		return false
	}
	entry := fc.chain[0]
	if _, err := fc.callProvider(ctx, entry, "health probe"); err != nil {
		fc.health.RecordFailure(entry.provider.GetModel(), err)
		return false
	}
	fc.health.RecordSuccess(entry.provider.GetModel())
	fc.recordLevelAfterSuccess(0)
	return true
}

// stepDownFrom moves the current level past idx when the failure happened at
// or before the current level.
func (fc *FallbackController) stepDownFrom(idx int) {
	fc.mu.Lock()
	if idx >= fc.level && fc.level < len(fc.chain) {
		fc.level = idx + 1
	}
	fc.mu.Unlock()
}
