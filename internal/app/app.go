// Package app wires configuration and providers into a running facilitator.
//
// The App struct owns the shared lifecycle: New opens the transcript store,
// Run drives one local microphone session, Serve runs the web service, and
// Shutdown releases everything in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithSource, WithVAD, ...). When an option is not provided, New creates
// the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/MrWong99/somatic/internal/config"
	"github.com/MrWong99/somatic/internal/facilitation"
	"github.com/MrWong99/somatic/internal/health"
	"github.com/MrWong99/somatic/internal/observe"
	"github.com/MrWong99/somatic/internal/orchestrator"
	"github.com/MrWong99/somatic/internal/pacing"
	"github.com/MrWong99/somatic/internal/session"
	"github.com/MrWong99/somatic/internal/transcript"
	"github.com/MrWong99/somatic/internal/web"
	"github.com/MrWong99/somatic/pkg/audio"
	"github.com/MrWong99/somatic/pkg/audio/local"
	"github.com/MrWong99/somatic/pkg/provider/vad"
	"github.com/MrWong99/somatic/pkg/provider/vad/energy"
)

// App owns the store and providers shared by the run and web modes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store   transcript.Store
	source  audio.Source
	vad     vad.Session
	prompts *facilitation.Builder
	metrics *observe.Metrics

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a transcript store instead of opening one from config.
func WithStore(s transcript.Store) Option {
	return func(a *App) { a.store = s }
}

// WithSource injects the audio source used by Run instead of the microphone.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithVAD injects the speech detector used by Run.
func WithVAD(v vad.Session) Option {
	return func(a *App) { a.vad = v }
}

// WithPrompts injects the phrase builder, typically with a seeded source.
func WithPrompts(b *facilitation.Builder) Option {
	return func(a *App) { a.prompts = b }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App. providers comes from [BuildProviders].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil || providers.STT == nil {
		return nil, errors.New("app: LLM and STT providers are required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.prompts == nil {
		a.prompts = facilitation.NewBuilder(nil)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.store == nil {
		store, closer, err := OpenStore(ctx, cfg.Session)
		if err != nil {
			return nil, err
		}
		a.store = store
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}
	return a, nil
}

// OpenStore opens the transcript backend selected by cfg.Store. The returned
// closer is nil for backends without resources to release.
func OpenStore(ctx context.Context, cfg config.SessionConfig) (transcript.Store, func() error, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		path := cfg.DSN
		if path == "" {
			path = filepath.Join(cfg.SaveDirectory, "sessions.db")
		}
		s, err := transcript.OpenSQLite(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("app: open session store: %w", err)
		}
		slog.Info("session store opened", "store", "sqlite", "path", path)
		return s, s.Close, nil
	case config.StorePostgres:
		s, err := transcript.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("app: open session store: %w", err)
		}
		slog.Info("session store opened", "store", "postgres")
		return s, func() error { s.Close(); return nil }, nil
	default:
		s, err := transcript.NewFileStore(cfg.SaveDirectory, cfg.IncludeTimestamps)
		if err != nil {
			return nil, nil, fmt.Errorf("app: open session store: %w", err)
		}
		slog.Info("session store opened", "store", "file", "dir", cfg.SaveDirectory)
		return s, nil, nil
	}
}

// Store returns the transcript store.
func (a *App) Store() transcript.Store { return a.store }

// VADConfig derives the detector settings: speech ends after the pacing
// response delay, and runs shorter than the pacing minimum are discarded.
func VADConfig(cfg *config.Config) vad.Config {
	v := vad.DefaultConfig()
	v.SampleRate = cfg.Audio.SampleRate
	v.Sensitivity = cfg.Audio.VADSensitivity
	v.MinSpeech = cfg.Pacing.MinSpeech()
	v.SpeechEndSilence = cfg.Pacing.ResponseDelay()
	return v
}

// PacingConfig converts the configured thresholds.
func PacingConfig(cfg *config.Config) pacing.Config {
	return pacing.Config{
		ResponseDelay:     cfg.Pacing.ResponseDelay(),
		MinSpeechDuration: cfg.Pacing.MinSpeech(),
		ExtendedSilence:   cfg.Pacing.ExtendedSilence(),
	}
}

// SessionConfig converts the context window settings.
func SessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Strategy:   session.Strategy(cfg.LLM.ContextStrategy),
		WindowSize: cfg.LLM.WindowSize,
	}
}

// PromptConfig converts the facilitation style.
func PromptConfig(cfg *config.Config) facilitation.PromptConfig {
	f := cfg.Facilitation
	return facilitation.PromptConfig{
		Focuses:            f.Focuses,
		Qualities:          f.Qualities,
		Directiveness:      f.Directiveness,
		OrientPleasant:     f.OrientPleasant,
		Verbosity:          f.Verbosity,
		CustomInstructions: f.CustomInstructions,
	}
}

// Run drives one local session until ctx is cancelled or the capture device
// fails, and returns the finished record.
func (a *App) Run(ctx context.Context) (*session.Record, error) {
	if a.providers.TTS == nil {
		return nil, errors.New("app: a speech engine is required for local sessions")
	}

	source := a.source
	if source == nil {
		c, err := local.NewCapture(local.CaptureConfig{
			Device:     a.cfg.Audio.InputDevice,
			SampleRate: a.cfg.Audio.SampleRate,
			Channels:   a.cfg.Audio.Channels,
			ChunkSize:  a.cfg.Audio.ChunkSize,
		})
		if err != nil {
			return nil, fmt.Errorf("app: open microphone: %w", err)
		}
		source = c
	}
	det := a.vad
	if det == nil {
		d, err := energy.New(VADConfig(a.cfg))
		if err != nil {
			return nil, fmt.Errorf("app: create vad: %w", err)
		}
		det = d
	}

	comps := orchestrator.Components{
		Source:      source,
		VAD:         det,
		Transcriber: a.providers.STT,
		LLM:         a.providers.LLM,
		Speaker:     a.providers.TTS,
		Pacing:      pacing.New(PacingConfig(a.cfg)),
		Sessions:    session.NewManager(SessionConfig(a.cfg)),
		Prompts:     a.prompts,
	}
	if a.cfg.Session.AutoSave {
		comps.Saver = a.store
	}
	f, err := orchestrator.New(comps, orchestrator.Config{
		SampleRate: a.cfg.Audio.SampleRate,
		Prompt:     PromptConfig(a.cfg),
		MaxTokens:  a.cfg.LLM.MaxTokens,
		LLMTimeout: a.cfg.LLM.Timeout,
		STTName:    a.providers.STTName,
		LLMName:    a.providers.LLMName,
		TTSName:    a.providers.TTSName,
	}, orchestrator.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	return f.Run(ctx)
}

// Serve runs the web service until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	checkers := []health.Checker{health.BreakerChecker("llm", a.providers.LLM.Healthy)}
	if a.providers.STTHealthy != nil {
		checkers = append(checkers, health.BreakerChecker("stt", a.providers.STTHealthy))
	}
	if p, ok := a.store.(health.Pinger); ok {
		checkers = append(checkers, health.PingChecker("store", p))
	}

	srv, err := web.New(web.Config{
		ListenAddr:   a.cfg.Server.ListenAddr,
		Session:      SessionConfig(a.cfg),
		Pacing:       PacingConfig(a.cfg),
		Prompt:       PromptConfig(a.cfg),
		MaxTokens:    a.cfg.LLM.MaxTokens,
		LLMTimeout:   a.cfg.LLM.Timeout,
		AutoSave:     a.cfg.Session.AutoSave,
		ServeMetrics: a.cfg.Server.Metrics,
		LLMName:      a.providers.LLMName,
		STTName:      a.providers.STTName,
	}, web.Deps{
		LLM:      a.providers.LLM,
		STT:      a.providers.STT,
		Store:    a.store,
		Prompts:  a.prompts,
		Checkers: checkers,
		Metrics:  a.metrics,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// Shutdown releases the store and any other resources. It is safe to call
// more than once.
func (a *App) Shutdown(_ context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for _, c := range a.closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
