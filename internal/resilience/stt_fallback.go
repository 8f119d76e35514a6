package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/somatic/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover across engines.
//
// [stt.ErrBusy] is not counted against an engine's breaker: a busy engine is
// healthy, just occupied, and the next engine is tried instead.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred engine.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	base := cfg.CircuitBreaker.IsFailure
	if base == nil {
		base = countsAsFailure
	}
	cfg.CircuitBreaker.IsFailure = func(err error) bool {
		return !errors.Is(err, stt.ErrBusy) && base(err)
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional engine.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe returns the first successful transcription.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (stt.Transcription, error) {
	return Do(ctx, f.group, func(ctx context.Context, p stt.Provider) (stt.Transcription, error) {
		return p.Transcribe(ctx, pcm, sampleRate)
	})
}

// Healthy reports whether any engine is accepting calls.
func (f *STTFallback) Healthy() bool { return f.group.Healthy() }
