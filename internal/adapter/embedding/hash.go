package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"helpdesk-ai/internal/domain"
)

// HashProvider is an offline embedder: each lowercased token is hashed into
// a bucket of a fixed-size vector and the result is L2-normalized. Texts
// that share words land near each other, which is enough for demo retrieval
// without an API key.
type HashProvider struct {
	dims int
}

// NewHashProvider returns a hash embedder of the given dimensionality.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = 768
	}
	return &HashProvider{dims: dims}
}

// Embed implements domain.EmbeddingProvider. It never fails.
func (p *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *HashProvider) vector(text string) []float32 {
	vec := make([]float32, p.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[(sum>>1)%uint64(p.dims)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// Dimensions implements domain.EmbeddingProvider.
func (p *HashProvider) Dimensions() int { return p.dims }

// Name implements domain.EmbeddingProvider.
func (p *HashProvider) Name() string { return "hash" }

var _ domain.EmbeddingProvider = (*HashProvider)(nil)
