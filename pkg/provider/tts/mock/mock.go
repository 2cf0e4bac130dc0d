// Package mock provides a scriptable test double for tts.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/tts"
)

// Provider is a mock tts.Provider. Each Synthesize call emits the configured
// frames and then closes the stream. Frames are delivered respecting context
// cancellation, so tests can interrupt playback mid-stream.
type Provider struct {
	mu sync.Mutex

	// Frames are emitted on every synthesized stream.
	Frames []audio.Frame

	// SynthesizeErr, when non-nil, is returned from Synthesize immediately.
	SynthesizeErr error

	// StreamErr, when non-nil, is recorded on the stream before it closes,
	// after emitting Frames.
	StreamErr error

	// Gate, when non-nil, is received from between frames. Lets tests hold a
	// stream open until they trigger barge-in.
	Gate chan struct{}

	// Calls records the text of every Synthesize call.
	Calls []string

	// Voices records the voice of every Synthesize call.
	Voices []tts.Voice
}

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Name implements tts.Provider.
func (p *Provider) Name() string { return "mock" }

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Stream, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, text)
	p.Voices = append(p.Voices, voice)
	frames := make([]audio.Frame, len(p.Frames))
	copy(frames, p.Frames)
	streamErr := p.StreamErr
	gate := p.Gate
	err := p.SynthesizeErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan audio.Frame)
	stream, fail := tts.NewStream(ch)
	go func() {
		defer close(ch)
		for _, f := range frames {
			if gate != nil {
				select {
				case <-gate:
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
		fail(streamErr)
	}()
	return stream, nil
}

// CallCount returns how many Synthesize calls were recorded.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
