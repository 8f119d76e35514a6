package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/somatic/internal/facilitation"
	"github.com/MrWong99/somatic/internal/observe"
	"github.com/MrWong99/somatic/internal/pacing"
	"github.com/MrWong99/somatic/internal/session"
	"github.com/MrWong99/somatic/internal/transcript"
	"github.com/MrWong99/somatic/pkg/audio"
	"github.com/MrWong99/somatic/pkg/provider/stt"
)

// maxMessageBytes caps a single websocket message. Audio events carry whole
// utterances as base64 float32.
const maxMessageBytes = 32 << 20

// EventSessionStarted tells the client which id to send when reconnecting.
const EventSessionStarted = "session_started"

// SessionStarted acknowledges start_session.
type SessionStarted struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Resumed   bool   `json:"resumed"`
}

// conn is the per-connection state owned by the read loop.
type conn struct {
	*client
	session *liveSession
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		slog.Warn("websocket accept", "err", err)
		return
	}
	ws.SetReadLimit(maxMessageBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	c := &conn{client: &client{id: uuid.NewString(), conn: ws}}
	log := slog.With("conn_id", c.id)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	defer func() {
		if c.session != nil {
			c.session.detach(c.client)
		}
		if err := ws.Close(websocket.StatusNormalClosure, ""); err != nil {
			log.Debug("websocket close", "err", err)
		}
		log.Info("websocket disconnected")
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Warn("websocket read", "err", err)
			}
			return
		}
		var ev ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.reject(ctx, c, "invalid event")
			continue
		}
		s.dispatch(ctx, c, &ev)
	}
}

func (s *Server) dispatch(ctx context.Context, c *conn, ev *ClientEvent) {
	switch ev.Type {
	case EventStartSession:
		s.startSession(ctx, c, ev)
	case EventUserMessage:
		if c.session == nil {
			s.reject(ctx, c, "No active session")
			return
		}
		s.reply(ctx, c.session, ev.Text)
	case EventEndSession:
		s.endSession(ctx, c)
	case EventAudioData:
		if c.session == nil {
			s.reject(ctx, c, "No active session")
			return
		}
		s.transcribe(ctx, c, ev)
	default:
		s.reject(ctx, c, "unknown event type: "+ev.Type)
	}
}

func (s *Server) reject(ctx context.Context, c *conn, msg string) {
	if err := c.send(ctx, errorEvent(msg)); err != nil {
		slog.Debug("event write failed", "conn_id", c.id, "err", err)
	}
}

// startSession creates a session or re-attaches c to a live one with the
// same id. Re-attachment keeps the history and speaks no opener.
func (s *Server) startSession(ctx context.Context, c *conn, ev *ClientEvent) {
	id := strings.TrimSpace(ev.SessionID)
	if id != "" {
		if ls := s.lookup(id); ls != nil {
			s.attach(c, ls)
			slog.Info("session reattached", "session_id", id, "conn_id", c.id)
			ls.emit(ctx, SessionStarted{Type: EventSessionStarted, SessionID: id, Resumed: true})
			return
		}
		if err := transcript.ValidateID(id); err != nil {
			s.reject(ctx, c, "invalid session id")
			return
		}
	} else {
		id = uuid.NewString()
	}

	cfg := s.promptConfig(ev)
	ls := &liveSession{
		id:       id,
		prompt:   facilitation.WithIntention(facilitation.SystemPrompt(cfg), ev.Intention),
		sessions: session.NewManager(s.cfg.Session, session.WithClock(s.cfg.Now)),
		pacing:   pacing.New(s.cfg.Pacing, pacing.WithClock(s.cfg.Now)),
	}
	ls.sessions.Start(id)
	ls.pacing.StartSession()
	ls.turn.Lock()
	defer ls.turn.Unlock()

	s.mu.Lock()
	if existing, ok := s.live[id]; ok {
		s.mu.Unlock()
		s.attach(c, existing)
		existing.emit(ctx, SessionStarted{Type: EventSessionStarted, SessionID: id, Resumed: true})
		return
	}
	s.live[id] = ls
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(ctx, 1)
	s.attach(c, ls)
	slog.Info("session started", "session_id", id, "conn_id", c.id,
		"directiveness", cfg.Directiveness, "verbosity", cfg.Verbosity)
	ls.emit(ctx, SessionStarted{Type: EventSessionStarted, SessionID: id})

	opener := s.prompts.Opener(cfg)
	if err := ls.sessions.AddAssistantMessage(opener); err != nil {
		slog.Warn("record opener", "session_id", id, "err", err)
	}
	ls.emit(ctx, facilitatorMessage(opener, KindOpener))
	ls.pacing.OnResponseEnd()
}

// attach moves c to ls, detaching it from any previous session.
func (s *Server) attach(c *conn, ls *liveSession) {
	if c.session != nil && c.session != ls {
		c.session.detach(c.client)
	}
	c.session = ls
	ls.attach(c.client)
}

func (s *Server) promptConfig(ev *ClientEvent) facilitation.PromptConfig {
	cfg := s.cfg.Prompt
	if ev.Focuses != nil {
		cfg.Focuses = ev.Focuses
	}
	if ev.Qualities != nil {
		cfg.Qualities = ev.Qualities
	}
	if ev.Directiveness != nil {
		cfg.Directiveness = min(max(*ev.Directiveness, 0), 10)
	}
	if ev.OrientPleasant != nil {
		cfg.OrientPleasant = *ev.OrientPleasant
	}
	if ev.Verbosity != "" {
		cfg.Verbosity = ev.Verbosity
	}
	if ev.CustomInstructions != "" {
		cfg.CustomInstructions = ev.CustomInstructions
	}
	return cfg
}

func (s *Server) endSession(ctx context.Context, c *conn) {
	if c.session == nil {
		return
	}
	ls := s.take(c.session.id)
	if ls == nil {
		c.session = nil
		return
	}
	closer, savedID := s.finish(ctx, ls)
	ls.emit(ctx, SessionEnded{Type: EventSessionEnded, Closer: closer, SessionID: savedID})
	ls.detach(c.client)
	c.session = nil
	slog.Info("session ended", "session_id", ls.id, "saved", savedID != nil)
}

// transcribe decodes an audio_data event and transcribes it in the
// background. The result goes to whichever connection is attached to the
// session when transcription finishes.
func (s *Server) transcribe(ctx context.Context, c *conn, ev *ClientEvent) {
	ls := c.session
	if s.deps.STT == nil {
		ls.emit(ctx, Transcription{Type: EventTranscription, Error: "transcription unavailable"})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(ev.Audio)
	if err != nil || len(raw)%4 != 0 {
		ls.emit(ctx, Transcription{Type: EventTranscription, Error: "invalid audio payload"})
		return
	}
	rate := ev.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	pcm := audio.Float32ToPCM16(raw)
	if rate != DefaultSampleRate {
		pcm = audio.Resample(pcm, rate, DefaultSampleRate)
	}
	slog.Debug("audio received", "session_id", ls.id, "samples", len(raw)/4, "sample_rate", rate,
		"duration", stt.AudioDuration(pcm, DefaultSampleRate))

	s.goTracked(func(bg context.Context) {
		start := time.Now()
		res, err := s.deps.STT.Transcribe(bg, pcm, DefaultSampleRate)
		if !errors.Is(err, stt.ErrBusy) {
			s.metrics.ObserveProvider(bg, s.cfg.STTName, observe.KindSTT, start, err)
		}
		switch {
		case errors.Is(err, stt.ErrBusy):
			slog.Warn("transcription engine busy, dropping audio", "session_id", ls.id)
			ls.emit(bg, Transcription{Type: EventTranscription, Error: "busy"})
		case err != nil:
			slog.Warn("transcription failed", "session_id", ls.id, "err", err)
			ls.emit(bg, Transcription{Type: EventTranscription, Error: err.Error()})
		default:
			slog.Info("transcribed", "session_id", ls.id, "text", res.Text, "elapsed", time.Since(start))
			ls.emit(bg, Transcription{Type: EventTranscription, Text: res.Text})
		}
	})
}
