package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/somatic/internal/config"
	"github.com/MrWong99/somatic/internal/resilience"
	"github.com/MrWong99/somatic/pkg/audio/local"
	"github.com/MrWong99/somatic/pkg/provider/llm"
	"github.com/MrWong99/somatic/pkg/provider/llm/anyllm"
	"github.com/MrWong99/somatic/pkg/provider/llm/openai"
	"github.com/MrWong99/somatic/pkg/provider/stt"
	"github.com/MrWong99/somatic/pkg/provider/stt/whisper"
	"github.com/MrWong99/somatic/pkg/provider/tts"
	"github.com/MrWong99/somatic/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/somatic/pkg/provider/tts/piper"
	"github.com/MrWong99/somatic/pkg/provider/tts/say"
)

// STTWait bounds how long a transcription waits for the shared engine.
const STTWait = 15 * time.Second

// ErrMissingAPIKey is returned when a hosted engine is selected without
// credentials.
var ErrMissingAPIKey = errors.New("app: missing API key")

// Providers holds one value per provider slot, built from the registry.
type Providers struct {
	// LLM is the primary provider behind a fallback group, so it always
	// has a circuit breaker.
	LLM *resilience.LLMFallback

	// STT is gated: concurrent callers beyond the first wait up to
	// [STTWait] and then get [stt.ErrBusy].
	STT *stt.Gate

	// STTHealthy reports the STT breaker state when a fallback engine is
	// configured. Nil otherwise.
	STTHealthy func() bool

	// TTS is nil in web mode.
	TTS tts.Speaker

	LLMName string
	STTName string
	TTSName string
}

// RegisterBuiltinProviders wires every built-in provider factory into reg.
func RegisterBuiltinProviders(reg *config.Registry) {
	// claude_proxy and openai talk the Chat Completions protocol.
	reg.RegisterLLM("claude_proxy", func(e config.ProviderEntry) (llm.Provider, error) {
		return openai.New(e.APIKey, e.Model,
			openai.WithBaseURL(strings.TrimRight(e.BaseURL, "/")+"/v1"),
			openai.WithLegacyMaxTokens(),
		)
	})
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		return openai.New(e.APIKey, e.Model, opts...)
	})

	for _, name := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if e.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
		}
		return anyllm.NewOllama(e.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(c config.STTConfig) (stt.Provider, error) {
		return whisper.New(c.BaseURL, whisper.WithModel(c.Model), whisper.WithLanguage(c.Language))
	})
	reg.RegisterSTT("whisper-native", func(c config.STTConfig) (stt.Provider, error) {
		return whisper.NewNative(c.ModelPath, whisper.WithNativeLanguage(c.Language))
	})

	reg.RegisterTTS("say", func(c config.TTSConfig) (tts.Speaker, error) {
		return say.New(c.Voice, c.Rate), nil
	})
	reg.RegisterTTS("piper", func(c config.TTSConfig) (tts.Speaker, error) {
		s, err := piper.New(c.ModelPath, c.Rate)
		if err != nil {
			return nil, err
		}
		return tts.NewPlaybackSpeaker(s, local.NewPlayer()), nil
	})
	reg.RegisterTTS("elevenlabs", func(c config.TTSConfig) (tts.Speaker, error) {
		if c.APIKey == "" {
			return nil, fmt.Errorf("%w: tts.api_key is required for elevenlabs", ErrMissingAPIKey)
		}
		s, err := elevenlabs.New(c.APIKey, c.VoiceID,
			elevenlabs.WithModel(c.ModelID),
			elevenlabs.WithVoiceSettings(c.Stability, c.SimilarityBoost),
		)
		if err != nil {
			return nil, err
		}
		return tts.NewPlaybackSpeaker(s, local.NewPlayer()), nil
	})
	reg.RegisterTTS("none", func(config.TTSConfig) (tts.Speaker, error) {
		return tts.NewTextSpeaker(os.Stdout), nil
	})

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// BuildProviders instantiates the providers named in cfg. withTTS is false
// in web mode, where the browser does the speaking.
func BuildProviders(cfg *config.Config, reg *config.Registry, withTTS bool) (*Providers, error) {
	primary := cfg.LLM.Primary()
	p, err := reg.CreateLLM(primary)
	if err != nil {
		return nil, fmt.Errorf("app: create llm provider %q: %w", primary.Name, err)
	}
	ps := &Providers{
		LLM:     resilience.NewLLMFallback(p, primary.Name, resilience.FallbackConfig{}),
		LLMName: primary.Name,
		STTName: cfg.STT.Engine,
	}
	slog.Info("provider created", "kind", "llm", "name", primary.Name, "model", primary.Model)

	for _, fb := range cfg.LLM.Fallbacks {
		fp, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("app: create llm fallback %q: %w", fb.Name, err)
		}
		ps.LLM.AddFallback(fb.Name, fp)
		slog.Info("provider created", "kind", "llm", "name", fb.Name, "model", fb.Model, "fallback", true)
	}

	sp, err := reg.CreateSTT(cfg.STT)
	if err != nil {
		return nil, fmt.Errorf("app: create stt engine %q: %w", cfg.STT.Engine, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.STT.Engine, "model", cfg.STT.Model)
	if fb := cfg.STT.Fallback; fb != nil {
		fp, err := reg.CreateSTT(*fb)
		if err != nil {
			return nil, fmt.Errorf("app: create stt fallback %q: %w", fb.Engine, err)
		}
		group := resilience.NewSTTFallback(sp, cfg.STT.Engine, resilience.FallbackConfig{})
		group.AddFallback(fb.Engine, fp)
		ps.STTHealthy = group.Healthy
		sp = group
		slog.Info("provider created", "kind", "stt", "name", fb.Engine, "fallback", true)
	}
	ps.STT = stt.NewGate(sp, STTWait)

	if withTTS {
		ps.TTS, err = reg.CreateTTS(cfg.TTS)
		if err != nil {
			return nil, fmt.Errorf("app: create tts engine %q: %w", cfg.TTS.Engine, err)
		}
		ps.TTSName = cfg.TTS.Engine
		slog.Info("provider created", "kind", "tts", "name", cfg.TTS.Engine)
	}
	return ps, nil
}
