package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEngine is a deterministic, dependency-free embedding engine using
// signed feature hashing over word unigrams and character trigrams. It
// needs no network, so it serves offline use and tests. Identical texts map
// to identical unit vectors.
type HashEngine struct {
	dimensions int
}

// NewHashEngine creates a hashing engine. Non-positive dimensions default to 256.
func NewHashEngine(dimensions int) *HashEngine {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEngine{dimensions: dimensions}
}

// Embed implements EmbeddingEngine.
func (e *HashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimensions)
	for _, feature := range features(text) {
		h := fnv.New64a()
		h.Write([]byte(feature))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return Normalize(vec), nil
}

// EmbedBatch implements EmbeddingEngine.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions implements EmbeddingEngine.
func (e *HashEngine) Dimensions() int { return e.dimensions }

// Name implements EmbeddingEngine.
func (e *HashEngine) Name() string { return fmt.Sprintf("local:hash%d", e.dimensions) }

func features(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	out := make([]string, 0, len(words)*4)
	for _, w := range words {
		out = append(out, "w:"+w)
		padded := []rune("^" + w + "$")
		for i := 0; i+3 <= len(padded); i++ {
			out = append(out, "c:"+string(padded[i:i+3]))
		}
	}
	return out
}
