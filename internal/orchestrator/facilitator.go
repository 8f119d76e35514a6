// Package orchestrator runs the turn-taking loop of one facilitation session.
//
// A [Facilitator] pulls frames from an [audio.Source], feeds them through a
// [vad.Session], transcribes finished utterances, asks the language model for
// a reply and speaks it. Capture runs on its own producer goroutine inside
// the source; everything else happens on the single goroutine that calls
// [Facilitator.Run], so pacing and VAD state are never touched concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/somatic/internal/facilitation"
	"github.com/MrWong99/somatic/internal/observe"
	"github.com/MrWong99/somatic/internal/pacing"
	"github.com/MrWong99/somatic/internal/session"
	"github.com/MrWong99/somatic/pkg/audio"
	"github.com/MrWong99/somatic/pkg/provider/llm"
	"github.com/MrWong99/somatic/pkg/provider/stt"
	"github.com/MrWong99/somatic/pkg/provider/tts"
	"github.com/MrWong99/somatic/pkg/provider/vad"
)

// DefaultFallbackLine is spoken when the language model fails.
const DefaultFallbackLine = "What do you notice now?"

const (
	defaultPreBufferFrames = 20
	defaultPollTimeout     = 100 * time.Millisecond
	defaultCloserTimeout   = 15 * time.Second
	defaultMaxTokens       = 300
)

// Saver persists a finished session and returns where it was written.
// [transcript.Store] implementations satisfy it.
type Saver interface {
	Save(ctx context.Context, rec *session.Record) (string, error)
}

// Config holds loop tunables. Zero values select the defaults.
type Config struct {
	// SessionID names the session. Empty generates a timestamp ID.
	SessionID string

	// SampleRate is the capture rate passed to the transcriber.
	SampleRate int

	// PreBufferFrames is the number of frames retained before speech onset.
	PreBufferFrames int

	// PollTimeout bounds each wait for the next captured frame.
	PollTimeout time.Duration

	// Prompt selects the facilitation style.
	Prompt facilitation.PromptConfig

	// MaxTokens caps each completion.
	MaxTokens int

	// LLMTimeout bounds each completion call. Zero leaves it unbounded.
	LLMTimeout time.Duration

	// CloserTimeout bounds speaking the closer and saving at shutdown.
	CloserTimeout time.Duration

	// FallbackLine replaces the reply when the language model fails.
	FallbackLine string

	// STTName, LLMName and TTSName label provider metrics.
	STTName string
	LLMName string
	TTSName string
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.PreBufferFrames == 0 {
		c.PreBufferFrames = defaultPreBufferFrames
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.CloserTimeout <= 0 {
		c.CloserTimeout = defaultCloserTimeout
	}
	if c.FallbackLine == "" {
		c.FallbackLine = DefaultFallbackLine
	}
}

// Components are the collaborators of one session. All are required except
// where noted.
type Components struct {
	Source      audio.Source
	VAD         vad.Session
	Transcriber stt.Provider
	LLM         llm.Provider
	Speaker     tts.Speaker
	Pacing      *pacing.Controller
	Sessions    *session.Manager

	// Prompts defaults to a randomly seeded builder.
	Prompts *facilitation.Builder

	// Saver is optional. Without it, the record is only returned.
	Saver Saver
}

// Option configures a [Facilitator].
type Option func(*Facilitator)

// WithMetrics records loop and provider metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Facilitator) { f.metrics = m }
}

// Facilitator is a single-use session loop.
type Facilitator struct {
	cfg     Config
	c       Components
	metrics *observe.Metrics

	systemPrompt string
	prebuf       *PreBuffer
	utterance    []audio.AudioFrame
	prevState    vad.State
}

// New validates the components and returns a ready loop.
func New(c Components, cfg Config, opts ...Option) (*Facilitator, error) {
	var errs []error
	if c.Source == nil {
		errs = append(errs, errors.New("audio source is required"))
	}
	if c.VAD == nil {
		errs = append(errs, errors.New("vad session is required"))
	}
	if c.Transcriber == nil {
		errs = append(errs, errors.New("transcriber is required"))
	}
	if c.LLM == nil {
		errs = append(errs, errors.New("llm provider is required"))
	}
	if c.Speaker == nil {
		errs = append(errs, errors.New("speaker is required"))
	}
	if c.Pacing == nil {
		errs = append(errs, errors.New("pacing controller is required"))
	}
	if c.Sessions == nil {
		errs = append(errs, errors.New("session manager is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if c.Prompts == nil {
		c.Prompts = facilitation.NewBuilder(nil)
	}

	cfg.applyDefaults()
	f := &Facilitator{
		cfg:          cfg,
		c:            c,
		systemPrompt: facilitation.SystemPrompt(cfg.Prompt),
		prebuf:       NewPreBuffer(cfg.PreBufferFrames),
	}
	for _, o := range opts {
		o(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	return f, nil
}

// Run opens the session, loops until ctx is cancelled or capture fails, and
// always closes and persists the session before returning. The returned
// record is non-nil whenever the session was started.
//
// Cancelling ctx is the normal way to end a session and is not reported as
// an error.
func (f *Facilitator) Run(ctx context.Context) (rec *session.Record, err error) {
	st := f.c.Sessions.Start(f.cfg.SessionID)
	f.c.Pacing.StartSession()
	log := slog.With("session_id", st.ID)

	if err := f.c.Source.Start(ctx); err != nil {
		f.c.Pacing.EndSession()
		_, _ = f.c.Sessions.End()
		return nil, fmt.Errorf("orchestrator: start capture: %w", err)
	}
	log.Info("session started")

	f.metrics.ActiveSessions.Add(ctx, 1)
	defer f.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	defer func() {
		rec, err = f.shutdown(ctx, log, err)
	}()

	if err := f.open(ctx); err != nil {
		return nil, err
	}
	return nil, f.loop(ctx)
}

func (f *Facilitator) open(ctx context.Context) error {
	opener := f.c.Prompts.Opener(f.cfg.Prompt)
	f.say(ctx, opener)
	if err := f.c.Sessions.AddAssistantMessage(opener); err != nil {
		return fmt.Errorf("orchestrator: record opener: %w", err)
	}
	f.c.Pacing.OnResponseEnd()
	return nil
}

func (f *Facilitator) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, ok, err := f.c.Source.Next(ctx, f.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("orchestrator: capture: %w", err)
		}
		if ok {
			if err := f.handleFrame(ctx, frame); err != nil {
				return err
			}
		}

		if f.idle() && f.c.Pacing.ShouldRespond() == pacing.CheckIn {
			if err := f.checkIn(ctx); err != nil {
				return err
			}
		}
	}
}

// idle reports whether no utterance is being collected.
func (f *Facilitator) idle() bool {
	return len(f.utterance) == 0 && !inSpeech(f.prevState)
}

func inSpeech(s vad.State) bool {
	return s == vad.StateSpeechStarted || s == vad.StateSpeaking
}

// handleFrame advances the detector by one frame. The pre-buffer is drained
// into the utterance exactly once, on the edge into speech.
func (f *Facilitator) handleFrame(ctx context.Context, frame audio.AudioFrame) error {
	res := f.c.VAD.Process(frame)
	if res.State != f.prevState {
		slog.Debug("vad transition",
			"from", f.prevState.String(),
			"to", res.State.String(),
			"level", res.AudioLevel,
		)
	}

	switch {
	case inSpeech(res.State) && !inSpeech(f.prevState):
		f.c.Pacing.OnSpeechStart()
		f.utterance = append(f.prebuf.Drain(), frame)
	case inSpeech(res.State):
		f.utterance = append(f.utterance, frame)
	default:
		if res.State == vad.StateSilence && f.prevState == vad.StateSpeechStarted {
			// Rejected as noise before confirmation.
			f.utterance = nil
		}
		f.prebuf.Push(frame)
	}
	f.prevState = res.State

	if f.c.VAD.TakeEnded() {
		return f.endUtterance(ctx)
	}
	return nil
}

func (f *Facilitator) endUtterance(ctx context.Context) error {
	f.c.Pacing.OnSpeechEnd()
	frames := f.utterance
	f.utterance = nil
	if len(frames) == 0 {
		return nil
	}

	var size int
	for _, fr := range frames {
		size += len(fr.Data)
	}
	pcm := make([]byte, 0, size)
	for _, fr := range frames {
		pcm = append(pcm, fr.Data...)
	}

	start := time.Now()
	tr, err := f.c.Transcriber.Transcribe(ctx, pcm, f.cfg.SampleRate)
	f.metrics.ObserveProvider(ctx, f.cfg.STTName, observe.KindSTT, start, err)
	switch {
	case errors.Is(err, stt.ErrBusy):
		slog.Warn("transcriber busy, dropping utterance", "frames", len(frames))
		f.c.Pacing.DiscardSpeechEnd()
		return nil
	case err != nil && ctx.Err() != nil:
		return nil
	case err != nil:
		slog.Warn("transcription failed, answering with fallback", "err", err)
		return f.fallbackTurn(ctx)
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		slog.Debug("empty transcription", "audio", stt.AudioDuration(pcm, f.cfg.SampleRate))
		f.c.Pacing.DiscardSpeechEnd()
		return nil
	}
	slog.Info("meditator", "text", text)
	f.metrics.Utterances.Add(ctx, 1)

	if err := f.c.Sessions.AddUserMessage(text); err != nil {
		return fmt.Errorf("orchestrator: record utterance: %w", err)
	}
	if f.c.Pacing.OnTranscription(text) == pacing.Respond {
		return f.respond(ctx)
	}
	return nil
}

// fallbackTurn answers an utterance that could not be transcribed with the
// neutral fallback line. Nothing is recorded for the meditator.
func (f *Facilitator) fallbackTurn(ctx context.Context) error {
	f.c.Pacing.OnResponseStart()
	defer f.c.Pacing.OnResponseEnd()

	if err := f.c.Sessions.AddAssistantMessage(f.cfg.FallbackLine); err != nil {
		return fmt.Errorf("orchestrator: record fallback: %w", err)
	}
	f.say(ctx, f.cfg.FallbackLine)
	return nil
}

// respond produces one facilitator turn. A turn is abandoned only when the
// model call itself was cut short by cancellation; a reply that arrived is
// always recorded, and only speaking is skipped once ctx is done.
func (f *Facilitator) respond(ctx context.Context) error {
	f.c.Pacing.OnResponseStart()
	defer f.c.Pacing.OnResponseEnd()

	reply, ok := f.complete(ctx)
	if !ok {
		return nil
	}

	signal, text := facilitation.ParseHold(reply)
	if text != "" {
		if err := f.c.Sessions.AddAssistantMessage(text); err != nil {
			return fmt.Errorf("orchestrator: record response: %w", err)
		}
		slog.Info("facilitator", "text", text, "signal", string(signal))
		if ctx.Err() == nil {
			f.say(ctx, text)
		}
	}
	if signal == facilitation.SignalHold {
		slog.Info("entering hold")
		f.c.Pacing.EnterSilenceMode()
		f.metrics.Holds.Add(context.WithoutCancel(ctx), 1)
	}
	return nil
}

// complete asks the model for the next reply and substitutes the fallback
// line on any failure. ok is false when the call failed because the session
// ctx ended, in which case the turn is abandoned.
func (f *Facilitator) complete(parent context.Context) (reply string, ok bool) {
	ctx := parent
	if f.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.LLMTimeout)
		defer cancel()
	}

	var id string
	if st := f.c.Sessions.Current(); st != nil {
		id = st.ID
	}
	ctx, span := observe.StartCompletion(ctx, id, f.cfg.LLMName)
	defer span.End()
	log := observe.Logger(ctx)

	start := time.Now()
	resp, err := f.c.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:     f.c.Sessions.ContextMessages(),
		SystemPrompt: f.systemPrompt,
		MaxTokens:    f.cfg.MaxTokens,
	})
	f.metrics.ObserveProvider(ctx, f.cfg.LLMName, observe.KindLLM, start, err)
	switch {
	case err != nil && parent.Err() != nil:
		return "", false
	case err != nil:
		log.Warn("completion failed, using fallback", "err", err)
		observe.MarkFallback(span, err)
		return f.cfg.FallbackLine, true
	case resp == nil || strings.TrimSpace(resp.Content) == "":
		log.Warn("empty completion, using fallback")
		observe.MarkFallback(span, nil)
		return f.cfg.FallbackLine, true
	}
	return resp.Content, true
}

func (f *Facilitator) checkIn(ctx context.Context) error {
	phrase := f.c.Prompts.CheckIn()
	slog.Info("check-in", "text", phrase, "silence", f.c.Pacing.SilenceDuration())
	f.say(ctx, phrase)
	if err := f.c.Sessions.AddAssistantMessage(phrase); err != nil {
		return fmt.Errorf("orchestrator: record check-in: %w", err)
	}
	f.metrics.CheckIns.Add(ctx, 1)
	f.c.Pacing.OnResponseEnd()
	return nil
}

// say speaks text and then discards everything captured meanwhile, so the
// facilitator's own voice is not transcribed.
func (f *Facilitator) say(ctx context.Context, text string) {
	start := time.Now()
	err := f.c.Speaker.Speak(ctx, text)
	f.metrics.ObserveProvider(ctx, f.cfg.TTSName, observe.KindTTS, start, err)
	if err != nil && ctx.Err() == nil {
		slog.Warn("speech failed", "err", err)
	}

	f.c.Source.ClearBuffer()
	f.c.VAD.Reset()
	f.prebuf.Clear()
	f.utterance = nil
	f.prevState = vad.StateSilence
}

// shutdown stops capture, says goodbye, ends the session and saves it.
// Teardown failures are logged; only a failed save is returned.
func (f *Facilitator) shutdown(ctx context.Context, log *slog.Logger, loopErr error) (*session.Record, error) {
	if err := f.c.Source.Stop(); err != nil {
		log.Warn("stop capture", "err", err)
	}
	if err := f.c.Speaker.Stop(); err != nil {
		log.Warn("stop speaker", "err", err)
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.CloserTimeout)
	defer cancel()

	closer := f.c.Prompts.Closer()
	if err := f.c.Speaker.Speak(cctx, closer); err != nil {
		log.Warn("speak closer", "err", err)
	}
	if err := f.c.Sessions.AddAssistantMessage(closer); err != nil {
		log.Warn("record closer", "err", err)
	}
	f.c.Pacing.EndSession()

	errs := []error{loopErr}
	if _, err := f.c.Sessions.End(); err != nil {
		errs = append(errs, fmt.Errorf("orchestrator: end session: %w", err))
	}
	rec, err := f.c.Sessions.Record()
	if err != nil {
		errs = append(errs, fmt.Errorf("orchestrator: record session: %w", err))
		return nil, errors.Join(errs...)
	}
	log.Info("session ended",
		"exchanges", len(rec.Exchanges),
		"duration", time.Duration(rec.Duration*float64(time.Second)).Round(time.Second),
	)

	if f.c.Saver != nil {
		loc, err := f.c.Saver.Save(cctx, rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("orchestrator: save session: %w", err))
		} else {
			log.Info("session saved", "location", loc)
		}
	}
	return rec, errors.Join(errs...)
}
