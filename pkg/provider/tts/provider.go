// Package tts defines how the facilitator's replies are voiced.
//
// A [Speaker] turns text into audible speech and blocks until it finished.
// Engines that only produce audio implement [Synthesizer] and are turned into
// a Speaker with [NewPlaybackSpeaker] and an [audio.Player].
package tts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/somatic/pkg/audio"
)

// Speaker voices text.
//
// Implementations must be safe for concurrent use. Speak on a busy speaker
// interrupts the current utterance first.
type Speaker interface {
	// Speak blocks until text finished playing, Stop was called, or ctx is
	// done. Blank text returns immediately.
	Speak(ctx context.Context, text string) error

	// Stop interrupts the current utterance, if any.
	Stop() error

	// IsSpeaking reports whether an utterance is playing.
	IsSpeaking() bool
}

// Synthesizer renders text to PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error)
}

// PlaybackSpeaker plays a Synthesizer's output through an audio.Player.
type PlaybackSpeaker struct {
	synth    Synthesizer
	player   audio.Player
	speaking atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

var _ Speaker = (*PlaybackSpeaker)(nil)

// NewPlaybackSpeaker returns a speaker that synthesizes with s and plays
// through p.
func NewPlaybackSpeaker(s Synthesizer, p audio.Player) *PlaybackSpeaker {
	return &PlaybackSpeaker{synth: s, player: p}
}

// Speak implements [Speaker].
func (s *PlaybackSpeaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_ = s.Stop()

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.speaking.Store(true)
	defer s.speaking.Store(false)

	pcm, format, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("tts: synthesize: %w", err)
	}
	if err := s.player.Play(ctx, pcm, format); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tts: play: %w", err)
	}
	return nil
}

// Stop implements [Speaker].
func (s *PlaybackSpeaker) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return s.player.Stop()
}

// IsSpeaking implements [Speaker].
func (s *PlaybackSpeaker) IsSpeaking() bool { return s.speaking.Load() }

// TextSpeaker writes each utterance to w instead of voicing it. It backs
// the "none" engine.
type TextSpeaker struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Speaker = (*TextSpeaker)(nil)

// NewTextSpeaker returns a speaker that prints to w.
func NewTextSpeaker(w io.Writer) *TextSpeaker { return &TextSpeaker{w: w} }

// Speak implements [Speaker].
func (s *TextSpeaker) Speak(_ context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "Facilitator: %s\n", text)
	return err
}

// Stop implements [Speaker].
func (s *TextSpeaker) Stop() error { return nil }

// IsSpeaking implements [Speaker].
func (s *TextSpeaker) IsSpeaking() bool { return false }
