// Package mock provides an in-memory implementation of [embeddings.Provider]
// for use in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/mallard-ai/mallard/pkg/provider/embeddings"
)

// Ensure Provider implements the embeddings.Provider interface.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of [embeddings.Provider]. By default it
// hashes each text into a deterministic vector of Dims length, so equal texts
// embed equally and distinct texts (almost always) differ.
type Provider struct {
	mu sync.Mutex

	// Dims is the vector length. Zero defaults to 8.
	Dims int

	// EmbedError is returned by Embed and EmbedBatch when set.
	EmbedError error

	// Texts records every embedded string in order.
	Texts []string
}

// Embed implements [embeddings.Provider].
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, text)
	if p.EmbedError != nil {
		return nil, p.EmbedError
	}
	return p.vector(text), nil
}

// EmbedBatch implements [embeddings.Provider].
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, texts...)
	if p.EmbedError != nil {
		return nil, p.EmbedError
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimensions implements [embeddings.Provider].
func (p *Provider) Dimensions() int {
	if p.Dims <= 0 {
		return 8
	}
	return p.Dims
}

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string { return "mock-embeddings" }

func (p *Provider) vector(text string) []float32 {
	dims := p.Dims
	if dims <= 0 {
		dims = 8
	}
	v := make([]float32, dims)
	var h uint32 = 2166136261
	for _, b := range []byte(text) {
		h ^= uint32(b)
		h *= 16777619
	}
	for i := range v {
		h = h*1664525 + 1013904223
		v[i] = float32(h%1000) / 1000
	}
	return v
}
