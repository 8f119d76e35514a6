package web

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/somatic/internal/facilitation"
	"github.com/MrWong99/somatic/internal/observe"
	"github.com/MrWong99/somatic/internal/pacing"
	"github.com/MrWong99/somatic/internal/session"
	"github.com/MrWong99/somatic/pkg/provider/llm"
)

// writeTimeout bounds a single event write to a browser.
const writeTimeout = 10 * time.Second

// client is one websocket connection.
type client struct {
	id   string
	conn *websocket.Conn
}

func (c *client) send(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, v)
}

// liveSession is a facilitation session that outlives the connections
// attached to it. turn serialises facilitator turns and guards pacing.
type liveSession struct {
	id       string
	prompt   string
	sessions *session.Manager

	turn   sync.Mutex
	pacing *pacing.Controller

	mu     sync.Mutex
	client *client
}

func (ls *liveSession) attach(c *client) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.client = c
}

// detach drops c if it is still the attached connection.
func (ls *liveSession) detach(c *client) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.client == c {
		ls.client = nil
	}
}

func (ls *liveSession) attached() *client {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.client
}

// emit sends v to whichever connection is attached now. Events for a
// detached session are dropped.
func (ls *liveSession) emit(ctx context.Context, v any) {
	c := ls.attached()
	if c == nil {
		slog.Debug("no connection attached, dropping event", "session_id", ls.id)
		return
	}
	if err := c.send(ctx, v); err != nil {
		slog.Debug("event write failed", "session_id", ls.id, "conn_id", c.id, "err", err)
	}
}

// reply runs one user turn: record, ask the model and emit the response.
func (s *Server) reply(ctx context.Context, ls *liveSession, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	ls.turn.Lock()
	defer ls.turn.Unlock()

	s.metrics.Utterances.Add(ctx, 1)
	wasHolding := ls.pacing.InSilenceMode()
	ls.pacing.OnSpeechEnd()
	if err := ls.sessions.AddUserMessage(text); err != nil {
		ls.emit(ctx, errorEvent("No active session"))
		return
	}
	ls.pacing.OnTranscription(text)

	ls.emit(ctx, FacilitatorTyping{Type: EventFacilitatorTyping, Typing: true})
	defer ls.emit(context.WithoutCancel(ctx), FacilitatorTyping{Type: EventFacilitatorTyping, Typing: false})

	ls.pacing.OnResponseStart()
	defer ls.pacing.OnResponseEnd()
	reply, ok := s.complete(ctx, ls)
	if !ok {
		return
	}
	// A reply that arrived is recorded even when the connection went away
	// meanwhile; only the events are skipped.
	signal, response := facilitation.ParseHold(reply)
	if response != "" {
		if err := ls.sessions.AddAssistantMessage(response); err != nil {
			slog.Warn("record response", "session_id", ls.id, "err", err)
		}
		slog.Info("facilitator", "session_id", ls.id, "text", response, "signal", string(signal))
		if ctx.Err() == nil {
			ls.emit(ctx, facilitatorMessage(response, KindResponse))
		}
	}
	if signal == facilitation.SignalHold {
		ls.pacing.EnterSilenceMode()
		s.metrics.Holds.Add(context.WithoutCancel(ctx), 1)
	}

	if holding := ls.pacing.InSilenceMode(); holding != wasHolding && ctx.Err() == nil {
		ls.emit(ctx, Hold{Type: EventHold, Active: holding})
	}
}

// complete asks the model for the next reply, substituting the fallback line
// on error or an empty answer. ok is false when the call failed because
// parent ended.
func (s *Server) complete(parent context.Context, ls *liveSession) (reply string, ok bool) {
	ctx := parent
	if s.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LLMTimeout)
		defer cancel()
	}

	ctx, span := observe.StartCompletion(ctx, ls.id, s.cfg.LLMName)
	defer span.End()
	log := observe.Logger(ctx).With("session_id", ls.id)

	start := time.Now()
	resp, err := s.deps.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:     ls.sessions.ContextMessages(),
		SystemPrompt: ls.prompt,
		MaxTokens:    s.cfg.MaxTokens,
	})
	s.metrics.ObserveProvider(ctx, s.cfg.LLMName, observe.KindLLM, start, err)
	switch {
	case err != nil && parent.Err() != nil:
		return "", false
	case err != nil:
		log.Warn("completion failed, using fallback", "err", err)
		observe.MarkFallback(span, err)
		return s.cfg.FallbackLine, true
	case resp == nil || strings.TrimSpace(resp.Content) == "":
		log.Warn("empty completion, using fallback")
		observe.MarkFallback(span, nil)
		return s.cfg.FallbackLine, true
	}
	return resp.Content, true
}

// checkIn offers a check-in when pacing asks for one. A session busy with a
// turn is skipped until the next tick.
func (s *Server) checkIn(ctx context.Context, ls *liveSession) {
	if ls.attached() == nil || !ls.turn.TryLock() {
		return
	}
	defer ls.turn.Unlock()

	if ls.pacing.ShouldRespond() != pacing.CheckIn {
		return
	}
	phrase := s.prompts.CheckIn()
	slog.Info("check-in", "session_id", ls.id, "text", phrase, "silence", ls.pacing.SilenceDuration())
	if err := ls.sessions.AddAssistantMessage(phrase); err != nil {
		slog.Warn("record check-in", "session_id", ls.id, "err", err)
		return
	}
	ls.emit(ctx, facilitatorMessage(phrase, KindCheckIn))
	s.metrics.CheckIns.Add(ctx, 1)
	ls.pacing.OnResponseEnd()
}

// finish records the closer, ends the session and saves it when auto-save
// is on. It returns the closer and the saved id.
func (s *Server) finish(ctx context.Context, ls *liveSession) (string, *string) {
	ls.turn.Lock()
	defer ls.turn.Unlock()

	closer := s.prompts.Closer()
	if err := ls.sessions.AddAssistantMessage(closer); err != nil {
		slog.Warn("record closer", "session_id", ls.id, "err", err)
	}
	ls.pacing.EndSession()
	s.metrics.ActiveSessions.Add(ctx, -1)

	if _, err := ls.sessions.End(); err != nil {
		slog.Warn("end session", "session_id", ls.id, "err", err)
		return closer, nil
	}
	if !s.cfg.AutoSave || s.deps.Store == nil {
		return closer, nil
	}
	rec, err := ls.sessions.Record()
	if err != nil {
		slog.Warn("build session record", "session_id", ls.id, "err", err)
		return closer, nil
	}
	where, err := s.deps.Store.Save(ctx, rec)
	if err != nil {
		slog.Warn("save session", "session_id", ls.id, "err", err)
		return closer, nil
	}
	slog.Info("session saved", "session_id", ls.id, "location", where)
	return closer, &rec.SessionID
}
