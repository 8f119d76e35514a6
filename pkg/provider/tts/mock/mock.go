// Package mock provides a test double for the tts.Speaker interface.
//
// Example:
//
//	sp := &mock.Speaker{}
//	_ = sp.Speak(ctx, "Gently coming back...")
//	spoken := sp.Spoken()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/somatic/pkg/provider/tts"
)

// Speaker is a mock implementation of tts.Speaker.
type Speaker struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned from Speak after recording the text.
	SpeakErr error

	// SpeakFunc, if set, runs after the text is recorded and its result is
	// returned.
	SpeakFunc func(ctx context.Context, text string) error

	spoken    []string
	stopCalls int
}

var _ tts.Speaker = (*Speaker)(nil)

// Speak records text.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	fn, err := s.SpeakFunc, s.SpeakErr
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return err
}

// Stop counts the call.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	return nil
}

// IsSpeaking always reports false.
func (s *Speaker) IsSpeaking() bool { return false }

// Spoken returns a copy of every text passed to Speak.
func (s *Speaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// StopCalls reports how many times Stop was called.
func (s *Speaker) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}
