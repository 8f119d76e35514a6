// Package piper synthesizes speech with the Piper neural TTS command line
// (https://github.com/rhasspy/piper). Raw PCM is read from the process's
// stdout, so no temporary files are involved.
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/somatic/pkg/audio"
	"github.com/MrWong99/somatic/pkg/provider/tts"
)

const (
	defaultSampleRate = 22050

	// baseRate is the words-per-minute figure that maps to length_scale 1.
	baseRate = 180
)

// Option configures a [Synthesizer].
type Option func(*Synthesizer)

// WithBinary replaces the piper executable.
func WithBinary(path string) Option {
	return func(s *Synthesizer) { s.binary = path }
}

// WithSampleRate overrides the sample rate read from the model config.
func WithSampleRate(rate int) Option {
	return func(s *Synthesizer) { s.sampleRate = rate }
}

// Synthesizer is a [tts.Synthesizer] running one piper process per
// utterance.
type Synthesizer struct {
	binary      string
	model       string
	lengthScale float64
	sampleRate  int
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// New returns a synthesizer for the .onnx voice model at model. rate is in
// words per minute; zero means normal speed. The output sample rate comes
// from the model's .onnx.json config when present.
func New(model string, rate int, opts ...Option) (*Synthesizer, error) {
	if model == "" {
		return nil, errors.New("piper: model must not be empty")
	}
	s := &Synthesizer{binary: "piper", model: model, lengthScale: 1}
	if rate > 0 {
		s.lengthScale = float64(baseRate) / float64(rate)
	}
	for _, o := range opts {
		o(s)
	}
	if s.sampleRate == 0 {
		s.sampleRate = modelSampleRate(model + ".json")
	}
	return s, nil
}

// Synthesize implements [tts.Synthesizer].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error) {
	format := audio.Format{SampleRate: s.sampleRate, Channels: 1}
	cmd := exec.CommandContext(ctx, s.binary,
		"--model", s.model,
		"--output-raw",
		"--length_scale", strconv.FormatFloat(s.lengthScale, 'f', 3, 64),
	)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, format, ctx.Err()
		}
		return nil, format, fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), format, nil
}

// modelSampleRate reads audio.sample_rate from a piper voice config.
func modelSampleRate(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultSampleRate
	}
	var cfg struct {
		Audio struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil || cfg.Audio.SampleRate <= 0 {
		return defaultSampleRate
	}
	return cfg.Audio.SampleRate
}
