package stt

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by [Gate] when the wrapped engine is already
// transcribing and the caller's wait bound elapsed.
var ErrBusy = errors.New("stt: transcription engine busy")

// Gate allows one transcription at a time through a shared engine.
type Gate struct {
	p    Provider
	sem  *semaphore.Weighted
	wait time.Duration
}

var _ Provider = (*Gate)(nil)

// NewGate wraps p. Callers of Transcribe wait at most wait for the engine;
// zero means fail immediately when busy.
func NewGate(p Provider, wait time.Duration) *Gate {
	return &Gate{p: p, sem: semaphore.NewWeighted(1), wait: wait}
}

// Transcribe implements [Provider] using the gate's default wait.
func (g *Gate) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Transcription, error) {
	return g.TranscribeWithin(ctx, g.wait, pcm, sampleRate)
}

// TranscribeWithin is Transcribe with an explicit wait bound.
func (g *Gate) TranscribeWithin(ctx context.Context, wait time.Duration, pcm []byte, sampleRate int) (Transcription, error) {
	if err := g.acquire(ctx, wait); err != nil {
		return Transcription{}, err
	}
	defer g.sem.Release(1)
	return g.p.Transcribe(ctx, pcm, sampleRate)
}

func (g *Gate) acquire(ctx context.Context, wait time.Duration) error {
	if g.sem.TryAcquire(1) {
		return nil
	}
	if wait <= 0 {
		return ErrBusy
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	return nil
}
