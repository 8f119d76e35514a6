// Package web serves browser-based facilitation sessions.
//
// The HTTP side exposes the saved-session API, health probes and metrics.
// The websocket at /ws carries the session protocol: JSON events with a
// "type" field (see [ClientEvent] and the server event types). Live
// sessions are keyed by id and survive disconnects, so a browser that
// reconnects and sends start_session with a known id resumes where it left.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/somatic/internal/facilitation"
	"github.com/MrWong99/somatic/internal/health"
	"github.com/MrWong99/somatic/internal/observe"
	"github.com/MrWong99/somatic/internal/pacing"
	"github.com/MrWong99/somatic/internal/session"
	"github.com/MrWong99/somatic/internal/transcript"
	"github.com/MrWong99/somatic/pkg/provider/llm"
	"github.com/MrWong99/somatic/pkg/provider/stt"
)

// Defaults applied by [New] for zero [Config] fields.
const (
	DefaultListenAddr      = ":5555"
	DefaultFallbackLine    = "Mmm. What do you notice now?"
	DefaultCheckInInterval = time.Second
	DefaultMaxTokens       = 300
	DefaultSampleRate      = 16000
)

const shutdownTimeout = 10 * time.Second

// Config configures a [Server].
type Config struct {
	ListenAddr string

	// Session and Pacing configure the manager and controller created for
	// every live session.
	Session session.Config
	Pacing  pacing.Config

	// Prompt is the style used for start_session fields the client omits.
	Prompt facilitation.PromptConfig

	MaxTokens    int
	LLMTimeout   time.Duration
	FallbackLine string

	// AutoSave persists sessions to the store when they end.
	AutoSave bool

	// CheckInInterval is how often idle sessions are polled for check-ins.
	CheckInInterval time.Duration

	// ServeMetrics mounts the Prometheus handler at /metrics.
	ServeMetrics bool

	// OriginPatterns are the host patterns allowed to open the websocket.
	// Empty allows same-origin requests only.
	OriginPatterns []string

	// LLMName and STTName label provider metrics.
	LLMName string
	STTName string

	// Now overrides the clock of live sessions. Intended for tests.
	Now func() time.Time
}

// Deps are the collaborators shared by every live session.
type Deps struct {
	LLM llm.Provider

	// STT transcribes audio_data events. nil rejects audio. Wrap shared
	// local engines in [stt.NewGate] so contention surfaces as
	// [stt.ErrBusy].
	STT stt.Provider

	Store    transcript.Store
	Prompts  *facilitation.Builder
	Checkers []health.Checker
	Metrics  *observe.Metrics
}

// Server owns the live sessions and the HTTP handler.
type Server struct {
	cfg     Config
	deps    Deps
	prompts *facilitation.Builder
	metrics *observe.Metrics
	handler http.Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	live   map[string]*liveSession
	closed bool
}

// New creates a server. deps.LLM is required.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.LLM == nil {
		return nil, errors.New("web: LLM provider is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.FallbackLine == "" {
		cfg.FallbackLine = DefaultFallbackLine
	}
	if cfg.CheckInInterval <= 0 {
		cfg.CheckInInterval = DefaultCheckInInterval
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Session == (session.Config{}) {
		cfg.Session = session.DefaultConfig()
	}
	if cfg.Pacing == (pacing.Config{}) {
		cfg.Pacing = pacing.DefaultConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		prompts: deps.Prompts,
		metrics: deps.Metrics,
		live:    make(map[string]*liveSession),
	}
	if s.prompts == nil {
		s.prompts = facilitation.NewBuilder(nil)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	health.New(s.deps.Checkers...).Register(r)
	if s.cfg.ServeMetrics {
		r.Handle("/metrics", observe.MetricsHandler())
	}
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Get("/{id}", s.getSession)
		r.Delete("/{id}", s.deleteSession)
	})
	r.Get("/ws", s.serveWS)
	return r
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on the configured address and polls live sessions for
// check-ins until ctx is cancelled or the listener fails. Live sessions are
// ended and saved before Run returns.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("web server listening", "addr", s.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.RunCheckIns(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	s.Close()
	return err
}

// Close disconnects every websocket, waits for pending transcriptions and
// ends all live sessions. It is safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	live := s.live
	s.live = make(map[string]*liveSession)
	s.mu.Unlock()

	for _, ls := range live {
		s.finish(context.Background(), ls)
	}
	slog.Info("web server stopped", "sessions_closed", len(live))
}

// RunCheckIns polls attached live sessions for check-ins every
// CheckInInterval until ctx is cancelled. [Server.Run] calls it; callers
// serving [Server.Handler] themselves run it alongside.
func (s *Server) RunCheckIns(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ls := range s.snapshot() {
				s.checkIn(ctx, ls)
			}
		}
	}
}

func (s *Server) snapshot() []*liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*liveSession, 0, len(s.live))
	for _, ls := range s.live {
		out = append(out, ls)
	}
	return out
}

// track registers work that [Server.Close] waits for. It reports false once
// the server is closing.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// goTracked runs fn in the background unless the server is closing.
func (s *Server) goTracked(fn func(ctx context.Context)) bool {
	if !s.track() {
		return false
	}
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
	return true
}

func (s *Server) lookup(id string) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[id]
}

// take removes and returns the live session id.
func (s *Server) take(id string) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.live[id]
	delete(s.live, id)
	return ls
}

// LiveSessions returns the ids of the sessions currently live.
func (s *Server) LiveSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	return ids
}
