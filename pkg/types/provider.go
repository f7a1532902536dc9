package types

import "time"

// FallbackLevel is the embedding chain's current degradation level.
type FallbackLevel string

// Fallback levels, from healthy to fully degraded.
const (
	// FallbackPrimary means the primary provider is serving embeddings.
	FallbackPrimary FallbackLevel = "primary"

	// FallbackSecondary means the chain stepped down to the secondary.
	FallbackSecondary FallbackLevel = "secondary"

	// FallbackLocal means the in-process fallback embedder is serving.
	FallbackLocal FallbackLevel = "local"

	// FallbackDegraded means the whole chain is exhausted; callers receive
	// a null embedding and must not block waiting for one.
	FallbackDegraded FallbackLevel = "degraded"
)

// ProviderHealth is the advisory health record for one embedding provider.
// Fields follow last-writer-wins under concurrent updates; health steers the
// fallback chain but is never a correctness gate.
type ProviderHealth struct {
	// Provider is the provider identifier (e.g. model name).
	Provider string `json:"provider"`

	// IsAvailable is the last observed availability.
	IsAvailable bool `json:"is_available"`

	// LastSuccessAt is when the provider last succeeded; zero if never.
	LastSuccessAt time.Time `json:"last_success_at"`

	// LastFailureAt is when the provider last failed; zero if never.
	LastFailureAt time.Time `json:"last_failure_at"`

	// LastError is the most recent failure message.
	LastError string `json:"last_error,omitempty"`

	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// EmbeddingResult is the outcome of an embedding request through the chain.
type EmbeddingResult struct {
	// Vector is the embedding; nil when the chain is fully degraded.
	Vector []float32 `json:"vector,omitempty"`

	// Provider is the provider that produced the vector; empty when degraded.
	Provider string `json:"provider,omitempty"`

	// FallbackLevel records which chain level served this request.
	FallbackLevel FallbackLevel `json:"fallback_level"`

	// Provisional is true when a non-primary provider produced the vector;
	// callers should re-embed once the primary recovers. Staleness is
	// detected later by comparing ContextHash against a fresh hash.
	Provisional bool `json:"provisional"`

	// ContextHash fingerprints (content, model) for staleness detection.
	ContextHash string `json:"context_hash,omitempty"`
}
