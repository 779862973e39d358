// Package mock provides an in-memory implementation of [tts.Provider] for use
// in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/mallard-ai/mallard/pkg/provider/tts"
)

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider is a mock implementation of [tts.Provider]. Set the exported
// Result fields before use; inspect Requests after.
type Provider struct {
	mu sync.Mutex

	// SynthesizeResult is returned by Synthesize.
	SynthesizeResult *tts.Response

	// SynthesizeError is returned by Synthesize. When set, SynthesizeResult
	// is ignored.
	SynthesizeError error

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// ListVoicesError is returned by ListVoices.
	ListVoicesError error

	// Requests records every Synthesize invocation.
	Requests []tts.Request
}

// Synthesize implements [tts.Provider].
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (*tts.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.SynthesizeError != nil {
		return nil, p.SynthesizeError
	}
	if p.SynthesizeResult != nil {
		return p.SynthesizeResult, nil
	}
	return &tts.Response{Audio: []byte("mock-audio"), MIMEType: "audio/mpeg"}, nil
}

// ListVoices implements [tts.Provider].
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesError != nil {
		return nil, p.ListVoicesError
	}
	return p.Voices, nil
}
