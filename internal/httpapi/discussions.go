package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/persona"
	"github.com/ent0n29/roundtable/internal/protocol"
	"github.com/ent0n29/roundtable/internal/session"
)

type actionRequest struct {
	Topic    string   `json:"topic"`
	Personas []string `json:"personas"`
}

type decisionRequest struct {
	Continue *bool `json:"continue"`
}

func (s *Server) handleCreateDiscussion(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	names := persona.DefaultSelection()
	if req.Personas != nil {
		resolved, err := s.registry.ResolveAll(req.Personas)
		if err != nil {
			respondError(w, http.StatusBadRequest, "unknown_persona", err.Error())
			return
		}
		names = names[:0]
		for _, p := range resolved {
			names = append(names, p.Name)
		}
	}

	sess := s.sessions.Create(strings.TrimSpace(req.Topic), names)
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.SessionEvent("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		Status:          sess.Status,
		State:           sess.State,
		Topic:           sess.Topic,
		Personas:        sess.Personas,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleGetDiscussion(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}
	out, err := s.orchestrator.View(r.Context(), chi.URLParam(r, "id"))
	s.respondOutcome(w, out, err)
}

func (s *Server) handleEndDiscussion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.SessionEvent("ended")
	s.hub.Publish(id, protocol.SessionState{
		Type:      protocol.TypeSessionState,
		SessionID: id,
		Status:    string(sess.Status),
		State:     string(sess.State),
		Topic:     sess.Topic,
		Rounds:    sess.Rounds,
	})
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, protocol.ActionStart)
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, protocol.ActionContinue)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}
	out, err := s.orchestrator.Clear(r.Context(), chi.URLParam(r, "id"))
	s.respondOutcome(w, out, err)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil || req.Continue == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", `body must be {"continue": true|false}`)
		return
	}
	out, err := s.orchestrator.Decide(r.Context(), chi.URLParam(r, "id"), *req.Continue)
	s.respondOutcome(w, out, err)
}

func (s *Server) runAction(w http.ResponseWriter, r *http.Request, action string) {
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	var (
		out discussion.Outcome
		err error
	)
	if action == protocol.ActionStart {
		out, err = s.orchestrator.Start(r.Context(), id, req.Topic, req.Personas)
	} else {
		out, err = s.orchestrator.Continue(r.Context(), id, req.Topic, req.Personas)
	}
	s.respondOutcome(w, out, err)
}

// respondOutcome maps an action's result onto an HTTP response. No-ops are
// successful responses with executed=false; round failures carry the intact
// transcript.
func (s *Server) respondOutcome(w http.ResponseWriter, out discussion.Outcome, err error) {
	switch {
	case err == nil, errors.Is(err, discussion.ErrInvalidAction):
		respondJSON(w, http.StatusOK, out)
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, session.ErrBusy):
		respondError(w, http.StatusConflict, "session_busy", err.Error())
	case errors.Is(err, session.ErrEnded):
		respondError(w, http.StatusConflict, "session_ended", err.Error())
	case errors.Is(err, persona.ErrUnknownPersona):
		respondError(w, http.StatusBadRequest, "unknown_persona", err.Error())
	case out.Session != nil:
		respondJSON(w, http.StatusBadGateway, out)
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
