// Package mock provides an in-memory implementation of [stt.Provider] for use
// in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/mallard-ai/mallard/pkg/provider/stt"
)

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider is a mock implementation of [stt.Provider]. Set the exported
// Result fields before use; inspect Requests after.
type Provider struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe.
	TranscribeResult string

	// TranscribeError is returned by Transcribe. When set, TranscribeResult
	// is ignored.
	TranscribeError error

	// Requests records every Transcribe invocation.
	Requests []stt.Request
}

// Transcribe implements [stt.Provider].
func (p *Provider) Transcribe(_ context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.TranscribeError != nil {
		return "", p.TranscribeError
	}
	return p.TranscribeResult, nil
}
