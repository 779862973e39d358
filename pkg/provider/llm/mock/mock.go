// Package mock provides an in-memory implementation of [llm.Provider] for use
// in unit tests. Set the exported Result fields before use; inspect the
// recorded requests after.
package mock

import (
	"context"
	"sync"

	"github.com/mallard-ai/mallard/pkg/provider/llm"
)

// Ensure Provider implements the llm.Provider interface.
var _ llm.Provider = (*Provider)(nil)

// Provider is a mock implementation of [llm.Provider].
type Provider struct {
	mu sync.Mutex

	// StreamChunks are emitted, in order, by StreamCompletion.
	StreamChunks []llm.Chunk

	// StreamError is returned by StreamCompletion. When set, no channel is
	// opened.
	StreamError error

	// CompleteResult is returned by Complete.
	CompleteResult *llm.CompletionResponse

	// CompleteError is returned by Complete.
	CompleteError error

	// Requests records every request passed to either method.
	Requests []llm.CompletionRequest
}

// StreamCompletion implements [llm.Provider].
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	err := p.StreamError
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.CompleteError != nil {
		return nil, p.CompleteError
	}
	if p.CompleteResult != nil {
		return p.CompleteResult, nil
	}
	return &llm.CompletionResponse{}, nil
}
