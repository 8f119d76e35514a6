// Package stt defines the batch speech-to-text interface used by the session
// loop and the web transport.
//
// A Provider receives one complete utterance of 16-bit mono PCM and returns
// its text. Providers backed by a single local engine are wrapped in a
// [Gate] so concurrent callers get [ErrBusy] instead of queueing.
package stt

import (
	"context"
	"time"
)

// Transcription is the result of one Transcribe call.
type Transcription struct {
	// Text is the recognised speech with surrounding whitespace removed.
	// It is empty when nothing intelligible was heard.
	Text string

	// Language is the detected or configured language code, if known.
	Language string

	// Confidence in [0, 1]. Zero when the backend does not report one.
	Confidence float64

	// Duration is the length of the submitted audio.
	Duration time.Duration
}

// Provider transcribes complete utterances.
//
// Implementations must be safe for concurrent use; they may serialise
// internally.
type Provider interface {
	// Transcribe converts pcm (int16 little-endian mono at sampleRate Hz)
	// to text.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Transcription, error)
}

// AudioDuration returns the playback length of int16 mono pcm.
func AudioDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(pcm)/2) * time.Second / time.Duration(sampleRate)
}
