// Package mock provides test doubles for the vad package interfaces.
//
// Session replays a scripted list of [vad.Result] values, one per Process
// call, and records the frames it was given. Once the script is exhausted it
// keeps returning Default.
package mock

import (
	"sync"

	"github.com/MrWong99/somatic/pkg/audio"
	"github.com/MrWong99/somatic/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a new empty Session is
	// returned.
	Session vad.Session

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every NewSession call.
	NewSessionCalls []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.Session.
type Session struct {
	mu sync.Mutex

	// Results are returned in order by successive Process calls.
	Results []vad.Result

	// Default is returned once Results is exhausted.
	Default vad.Result

	// Frames records every frame passed to Process.
	Frames []audio.AudioFrame

	// ResetCalls counts calls to Reset.
	ResetCalls int

	ended bool
}

// Process records the frame and returns the next scripted result.
func (s *Session) Process(frame audio.AudioFrame) vad.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = append(s.Frames, frame)
	res := s.Default
	if len(s.Frames) <= len(s.Results) {
		res = s.Results[len(s.Frames)-1]
	}
	if res.State == vad.StateSpeechEnded {
		s.ended = true
	}
	return res
}

// TakeEnded reports whether a scripted speech_ended result was returned since
// the last call.
func (s *Session) TakeEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ended := s.ended
	s.ended = false
	return ended
}

// Reset counts the call. It does not rewind the script.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCalls++
}

var _ vad.Session = (*Session)(nil)
