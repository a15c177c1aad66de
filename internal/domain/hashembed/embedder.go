// Package hashembed is an offline embedder that maps text to a fixed-size
// vector by hashing word and character trigram features.
package hashembed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kailas-cloud/rulebook/internal/domain"
)

// DefaultDimensions matches the default vector size of small local embedding models.
const DefaultDimensions = 384

// Embedder produces L2-normalized feature-hash vectors.
type Embedder struct {
	dim int
}

// New creates an Embedder. dim <= 0 selects DefaultDimensions.
func New(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDimensions
	}
	return &Embedder{dim: dim}
}

// Dimensions returns the vector size.
func (e *Embedder) Dimensions() int { return e.dim }

// Embed vectorizes one text. Token counts report the number of word features.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, err
	}
	vec, words := e.vector(text)
	return domain.EmbeddingResult{Embedding: vec, PromptTokens: words, TotalTokens: words}, nil
}

// BatchEmbed vectorizes texts in order.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		vec, words := e.vector(t)
		out.Embeddings[i] = vec
		out.PromptTokens += words
		out.TotalTokens += words
	}
	return out, nil
}

// HealthCheck always succeeds.
func (e *Embedder) HealthCheck(context.Context) error { return nil }

func (e *Embedder) vector(text string) ([]float32, int) {
	vec := make([]float32, e.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, w := range words {
		e.add(vec, "w:"+w, 1)
		r := []rune(" " + w + " ")
		for i := 0; i+3 <= len(r); i++ {
			e.add(vec, "t:"+string(r[i:i+3]), 0.5)
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
	return vec, len(words)
}

// add uses the signed hashing trick so collisions cancel out on average.
func (e *Embedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
