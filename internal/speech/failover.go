package speech

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NewFailoverProviderPair builds recognition/synthesis providers that prefer
// the primary backend and switch to fallback when primary startup fails.
// Once fallback succeeds it stays active until it fails; then primary is
// retried. Both sides share the failover state so a recognition failure also
// moves synthesis over.
func NewFailoverProviderPair(
	primaryRecognition RecognitionProvider,
	primarySynthesis SynthesisProvider,
	fallbackRecognition RecognitionProvider,
	fallbackSynthesis SynthesisProvider,
) (RecognitionProvider, SynthesisProvider) {
	state := &failoverState{}
	return &failoverRecognitionProvider{
			state:    state,
			primary:  primaryRecognition,
			fallback: fallbackRecognition,
		}, &failoverSynthesisProvider{
			state:    state,
			primary:  primarySynthesis,
			fallback: fallbackSynthesis,
		}
}

type failoverState struct {
	fallbackActive atomic.Bool
}

type failoverRecognitionProvider struct {
	state    *failoverState
	primary  RecognitionProvider
	fallback RecognitionProvider
}

func (p *failoverRecognitionProvider) Available() bool {
	return p.primary.Available() || p.fallback.Available()
}

func (p *failoverRecognitionProvider) StartStream(ctx context.Context, cfg StreamConfig) (RecognitionStream, error) {
	if p.state.fallbackActive.Load() {
		stream, fbErr := p.fallback.StartStream(ctx, cfg)
		if fbErr == nil {
			return stream, nil
		}
		// Fallback failed after being active; try primary again.
		stream, prErr := p.primary.StartStream(ctx, cfg)
		if prErr == nil {
			p.state.fallbackActive.Store(false)
			return stream, nil
		}
		return nil, fmt.Errorf("recognition fallback failed: %v; primary failed: %w", fbErr, prErr)
	}

	stream, prErr := p.primary.StartStream(ctx, cfg)
	if prErr == nil {
		return stream, nil
	}
	stream, fbErr := p.fallback.StartStream(ctx, cfg)
	if fbErr != nil {
		return nil, fmt.Errorf("recognition primary failed: %v; fallback failed: %w", prErr, fbErr)
	}
	p.state.fallbackActive.Store(true)
	return stream, nil
}

type failoverSynthesisProvider struct {
	state    *failoverState
	primary  SynthesisProvider
	fallback SynthesisProvider
}

func (p *failoverSynthesisProvider) Available() bool {
	return p.primary.Available() || p.fallback.Available()
}

func (p *failoverSynthesisProvider) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, string, error) {
	if p.state.fallbackActive.Load() {
		audio, format, fbErr := p.fallback.Synthesize(ctx, req)
		if fbErr == nil {
			return audio, format, nil
		}
		audio, format, prErr := p.primary.Synthesize(ctx, req)
		if prErr == nil {
			p.state.fallbackActive.Store(false)
			return audio, format, nil
		}
		return nil, "", fmt.Errorf("synthesis fallback failed: %v; primary failed: %w", fbErr, prErr)
	}

	audio, format, prErr := p.primary.Synthesize(ctx, req)
	if prErr == nil {
		return audio, format, nil
	}
	audio, format, fbErr := p.fallback.Synthesize(ctx, req)
	if fbErr != nil {
		return nil, "", fmt.Errorf("synthesis primary failed: %v; fallback failed: %w", prErr, fbErr)
	}
	p.state.fallbackActive.Store(true)
	return audio, format, nil
}
