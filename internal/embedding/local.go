package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalProvider is the last-resort in-process embedder. It hashes tokens
// into a fixed-dimension bag-of-words projection and L2-normalizes the
// result. The vectors are crude but deterministic and cost no network call,
// which keeps semantic retrieval limping along while the real providers are
// down. Every result it produces is provisional.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local embedder emitting vectors of the given
// dimension. Dimension must match the chain's remote providers so stored
// vectors stay comparable.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = 768
	}
	return &LocalProvider{dimension: dimension}
}

// Embed produces a deterministic hashed bag-of-words vector.
func (p *LocalProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimension)

	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()

		idx := int(sum % uint64(p.dimension))
		// The next hash bit decides sign so common tokens do not all pile
		// into the positive orthant.
		if (sum>>63)&1 == 1 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// GetModel returns the local provider's identifier.
func (p *LocalProvider) GetModel() string {
	return "local-hash"
}

var _ Provider = (*LocalProvider)(nil)
