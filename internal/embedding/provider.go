// Package embedding provides vector-embedding generation behind a ranked
// fallback chain: a primary HTTP provider, a secondary HTTP provider, and an
// in-process local fallback. Chain health is tracked per provider and the
// chain degrades level by level instead of failing.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
)

// Provider generates embeddings for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// ProviderError carries the HTTP status of a failed provider call so the
// chain can classify it as retryable or terminal.
type ProviderError struct {
	// Provider is the model identifier of the failing provider.
	Provider string

	// StatusCode is the HTTP status, 0 for transport-level failures.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding: provider %s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding: provider %s: %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable classifies a provider failure. Rate limiting (429), server
// errors (5xx), and connection/timeout/network failures are retryable;
// malformed or unauthorized requests (400, 401, 403) are terminal — retrying
// or rotating providers cannot fix the request.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.StatusCode == 429:
			return true
		case pe.StatusCode >= 500:
			return true
		case pe.StatusCode == 400, pe.StatusCode == 401, pe.StatusCode == 403:
			return false
		case pe.StatusCode == 0:
			return true // transport-level failure
		}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Unknown failures are treated as retryable so a quirky provider error
	// degrades the chain instead of hard-failing the request.
	return true
}

// ContextHash fingerprints (content, model) for staleness detection. A
// stored hash that no longer matches a freshly computed one signals that the
// content must be re-embedded.
func ContextHash(text, model string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
