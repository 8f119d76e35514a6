// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcription{Text: "my shoulders feel heavy"}}
//	got, _ := p.Transcribe(ctx, pcm, 16000)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/somatic/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// PCM is a copy of the audio passed to Transcribe.
	PCM []byte
	// SampleRate is the rate passed to Transcribe.
	SampleRate int
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe.
	Result stt.Transcription

	// Results, when non-empty, are returned in order and take precedence
	// over Result until exhausted.
	Results []stt.Transcription

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeFunc, if set, replaces all canned behaviour.
	TranscribeFunc func(ctx context.Context, pcm []byte, sampleRate int) (stt.Transcription, error)

	calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the configured reply.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (stt.Transcription, error) {
	p.mu.Lock()
	p.calls = append(p.calls, TranscribeCall{PCM: append([]byte(nil), pcm...), SampleRate: sampleRate})
	n := len(p.calls)
	res := p.Result
	if n <= len(p.Results) {
		res = p.Results[n-1]
	}
	fn, err := p.TranscribeFunc, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, pcm, sampleRate)
	}
	if err != nil {
		return stt.Transcription{}, err
	}
	return res, nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TranscribeCall(nil), p.calls...)
}
