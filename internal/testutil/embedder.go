// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
)

const HashDim = 64

// HashEmbedder is a deterministic bag-of-words embedder. Texts sharing words
// end up close, identical texts map to identical vectors.
type HashEmbedder struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

func (h *HashEmbedder) Generate(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.Calls++
	err := h.Err
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashVector(text)
	}
	return vectors, nil
}

func (h *HashEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := h.Generate(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (h *HashEmbedder) SetErr(err error) {
	h.mu.Lock()
	h.Err = err
	h.mu.Unlock()
}

func hashVector(text string) []float32 {
	v := make([]float32, HashDim)
	words := strings.Fields(strings.ToLower(text))
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		v[f.Sum32()%HashDim]++
	}
	if len(words) == 0 {
		// keep the vector non-zero so cosine similarity stays defined
		v[0] = 1
	}
	return v
}
