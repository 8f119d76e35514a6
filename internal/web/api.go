package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/somatic/internal/transcript"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSON(w, http.StatusOK, []transcript.Summary{})
		return
	}
	sums, err := s.deps.Store.List(r.Context())
	if err != nil {
		slog.Warn("list sessions", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to list sessions"})
		return
	}
	if sums == nil {
		sums = []transcript.Summary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var doc *transcript.Document
	if s.deps.Store != nil {
		var err error
		doc, err = s.deps.Store.Load(r.Context(), id)
		if err != nil && !errors.Is(err, transcript.ErrInvalidID) {
			slog.Warn("load session", "session_id", id, "err", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to load session"})
			return
		}
	}
	if doc == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Session not found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted := false
	if s.deps.Store != nil {
		var err error
		deleted, err = s.deps.Store.Delete(r.Context(), id)
		if err != nil && !errors.Is(err, transcript.ErrInvalidID) {
			slog.Warn("delete session", "session_id", id, "err", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to delete session"})
			return
		}
	}
	if deleted {
		slog.Info("session deleted", "session_id", id)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
