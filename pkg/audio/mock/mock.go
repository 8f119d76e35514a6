// Package mock provides scripted implementations of [audio.Source] and
// [audio.Player] for tests. Both are safe for concurrent use and record
// their calls.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/somatic/pkg/audio"
)

// Source replays Frames in order.
type Source struct {
	mu sync.Mutex

	// Frames are returned by Next one at a time.
	Frames []audio.AudioFrame

	// StartErr is returned by Start.
	StartErr error

	// ExhaustedErr is returned by Next once Frames ran out. When nil, Next
	// reports a timeout (ok == false) instead.
	ExhaustedErr error

	// OnExhausted, when set, is called once the first time Frames ran out.
	OnExhausted func()

	pos          int
	exhausted    bool
	StartCalls   int
	StopCalls    int
	ClearCalls   int
	NextCalls    int
	ClearedAtPos []int
}

var _ audio.Source = (*Source)(nil)

// Start implements [audio.Source].
func (s *Source) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	return s.StartErr
}

// Next implements [audio.Source].
func (s *Source) Next(ctx context.Context, _ time.Duration) (audio.AudioFrame, bool, error) {
	if err := ctx.Err(); err != nil {
		return audio.AudioFrame{}, false, err
	}
	s.mu.Lock()
	s.NextCalls++
	if s.pos < len(s.Frames) {
		f := s.Frames[s.pos]
		s.pos++
		s.mu.Unlock()
		return f, true, nil
	}
	var hook func()
	if !s.exhausted {
		s.exhausted = true
		hook = s.OnExhausted
	}
	err := s.ExhaustedErr
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return audio.AudioFrame{}, false, err
}

// ClearBuffer implements [audio.Source]. Scripted frames are kept since
// they stand for audio that arrives later.
func (s *Source) ClearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClearCalls++
	s.ClearedAtPos = append(s.ClearedAtPos, s.pos)
}

// Stop implements [audio.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	return nil
}

// Remaining reports how many scripted frames have not been read.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames) - s.pos
}

// PlayCall records one Play invocation.
type PlayCall struct {
	PCM    []byte
	Format audio.Format
}

// Player records playback without producing sound.
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by Play.
	PlayErr error

	Plays     []PlayCall
	StopCalls int
}

var _ audio.Player = (*Player)(nil)

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, pcm []byte, f audio.Format) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Plays = append(p.Plays, PlayCall{PCM: append([]byte(nil), pcm...), Format: f})
	if p.PlayErr != nil {
		return p.PlayErr
	}
	return ctx.Err()
}

// Stop implements [audio.Player].
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StopCalls++
	return nil
}

// PlayCalls returns a copy of the recorded plays.
func (p *Player) PlayCalls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlayCall(nil), p.Plays...)
}
