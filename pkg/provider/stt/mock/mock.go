// Package mock provides a scriptable test double for stt.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hark/pkg/provider/stt"
)

// Provider is a mock stt.Provider. Results are consumed in order, one per
// Transcribe call; when the script is exhausted the zero Transcript is
// returned.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order from successive Transcribe calls.
	Results []stt.Transcript

	// Err, when non-nil, is returned from every Transcribe call.
	Err error

	// Delay, when non-zero, makes Transcribe block for the given duration or
	// until the context is done, whichever comes first. Lets tests exercise
	// timeout and cancellation paths.
	Delay func(ctx context.Context) error

	// Calls records every segment passed to Transcribe.
	Calls []stt.Segment
}

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Name implements stt.Provider.
func (p *Provider) Name() string { return "mock" }

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, seg stt.Segment) (stt.Transcript, error) {
	if p.Delay != nil {
		if err := p.Delay(ctx); err != nil {
			return stt.Transcript{}, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, seg)
	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	if len(p.Results) == 0 {
		return stt.Transcript{}, nil
	}
	r := p.Results[0]
	p.Results = p.Results[1:]
	return r, nil
}

// CallCount returns how many Transcribe calls were recorded.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
