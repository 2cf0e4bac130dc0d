// Package mock provides a scriptable test double for llm.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hark/pkg/provider/llm"
)

// Provider is a mock llm.Provider. Responses are consumed in order; when the
// script is exhausted an empty stop response is returned.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in order from successive Complete calls.
	Responses []llm.Response

	// Err, when non-nil, is returned from every Complete call.
	Err error

	// Delay, when non-nil, runs before the scripted result and may return a
	// context error. Lets tests exercise timeout and cancellation paths.
	Delay func(ctx context.Context) error

	// Calls records every request passed to Complete.
	Calls []llm.Request
}

// Compile-time assertion that Provider satisfies llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Name implements llm.Provider.
func (p *Provider) Name() string { return "mock" }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if p.Delay != nil {
		if err := p.Delay(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &llm.Response{FinishReason: llm.FinishStop}, nil
	}
	r := p.Responses[0]
	p.Responses = p.Responses[1:]
	return &r, nil
}

// CallCount returns how many Complete calls were recorded.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastRequest returns the most recent recorded request, or nil.
func (p *Provider) LastRequest() *llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return nil
	}
	r := p.Calls[len(p.Calls)-1]
	return &r
}
