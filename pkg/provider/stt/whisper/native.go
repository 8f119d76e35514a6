// The whisper.cpp static library (libwhisper.a) and headers (whisper.h)
// must be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/somatic/pkg/audio"
	"github.com/MrWong99/somatic/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// whisper.cpp expects 16 kHz input.
const nativeSampleRate = 16000

// NativeProvider runs whisper.cpp in-process. The model is loaded on first
// use (or by [NativeProvider.Load]) exactly once and shared across calls.
type NativeProvider struct {
	modelPath string
	language  string

	once    sync.Once
	model   whisperlib.Model
	loadErr error
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the recognition language. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative returns a provider for the ggml model file at modelPath.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	p := &NativeProvider{modelPath: modelPath, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Load loads the model if it is not loaded yet.
func (p *NativeProvider) Load() error {
	p.once.Do(func() {
		slog.Info("loading whisper model", "path", p.modelPath)
		p.model, p.loadErr = whisperlib.New(p.modelPath)
		if p.loadErr != nil {
			p.loadErr = fmt.Errorf("whisper: load model %q: %w", p.modelPath, p.loadErr)
		}
	})
	return p.loadErr
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements [stt.Provider]. Each call gets its own whisper
// context from the shared model.
func (p *NativeProvider) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (stt.Transcription, error) {
	res := stt.Transcription{Language: p.language, Duration: stt.AudioDuration(pcm, sampleRate)}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(pcm) < 2 {
		return res, nil
	}
	if err := p.Load(); err != nil {
		return res, err
	}

	if sampleRate != nativeSampleRate {
		pcm = audio.Resample(pcm, sampleRate, nativeSampleRate)
	}
	samples := audio.PCM16ToFloat32(pcm)

	wctx, err := p.model.NewContext()
	if err != nil {
		return res, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return res, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	res.Text = strings.Join(parts, " ")
	return res, nil
}
