package vecsearch

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const hashDimensions = 256

// HashEngine produces deterministic embeddings from token hashes. It
// captures lexical overlap only, no real semantics, but it needs no
// network or API key, which makes it the default for offline use and
// the workhorse for tests.
type HashEngine struct{}

// NewHashEngine creates a hash-projection embedding engine.
func NewHashEngine() *HashEngine {
	return &HashEngine{}
}

// Embed projects each token into a fixed-size vector via FNV-1a,
// alternating sign by hash parity, then L2-normalizes.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashDimensions)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % hashDimensions)
		if (sum>>32)&1 == 1 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}

	var mag float64
	for _, v := range vec {
		mag += float64(v * v)
	}
	if mag > 0 {
		norm := float32(math.Sqrt(mag))
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *HashEngine) Dimensions() int {
	return hashDimensions
}

// Name returns the engine name.
func (e *HashEngine) Name() string {
	return "hash:fnv64a"
}
