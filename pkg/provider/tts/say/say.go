// Package say voices text with the macOS say(1) command.
package say

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/somatic/pkg/provider/tts"
)

// Option configures a [Speaker].
type Option func(*Speaker)

// WithBinary replaces the say executable.
func WithBinary(path string) Option {
	return func(s *Speaker) { s.binary = path }
}

// Speaker runs one say process per utterance.
type Speaker struct {
	binary string
	voice  string
	rate   int

	mu   sync.Mutex
	proc *exec.Cmd
}

var _ tts.Speaker = (*Speaker)(nil)

// New returns a speaker for voice (e.g. "Samantha") at rate words per
// minute. A rate of zero keeps the system default.
func New(voice string, rate int, opts ...Option) *Speaker {
	s := &Speaker{binary: "say", voice: voice, rate: rate}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Speaker) args(text string) []string {
	var args []string
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	if s.rate > 0 {
		args = append(args, "-r", strconv.Itoa(s.rate))
	}
	return append(args, text)
}

// Speak implements [tts.Speaker].
func (s *Speaker) Speak(ctx context.Context, text string) error {
	_ = s.Stop()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx, s.binary, s.args(text)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("say: start: %w", err)
	}
	s.mu.Lock()
	s.proc = cmd
	s.mu.Unlock()

	err := cmd.Wait()

	s.mu.Lock()
	stopped := s.proc != cmd
	if !stopped {
		s.proc = nil
	}
	s.mu.Unlock()

	if err != nil {
		if stopped {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("say: %w", err)
	}
	return nil
}

// Stop implements [tts.Speaker].
func (s *Speaker) Stop() error {
	s.mu.Lock()
	cmd := s.proc
	s.proc = nil
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("say: stop: %w", err)
	}
	return nil
}

// IsSpeaking implements [tts.Speaker].
func (s *Speaker) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil
}

// Voices lists the voice names reported by "say -v ?".
func Voices(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "say", "-v", "?").Output()
	if err != nil {
		return nil, fmt.Errorf("say: list voices: %w", err)
	}
	return parseVoices(string(out)), nil
}

func parseVoices(out string) []string {
	var voices []string
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) > 0 {
			voices = append(voices, f[0])
		}
	}
	return voices
}
