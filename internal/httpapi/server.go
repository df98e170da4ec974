package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/roundtable/internal/config"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/observability"
	"github.com/ent0n29/roundtable/internal/persona"
	"github.com/ent0n29/roundtable/internal/protocol"
	"github.com/ent0n29/roundtable/internal/session"
)

// Orchestrator runs the presentation actions of a discussion.
type Orchestrator interface {
	Start(ctx context.Context, sessionID, topic string, personas []string) (discussion.Outcome, error)
	Continue(ctx context.Context, sessionID, topic string, personas []string) (discussion.Outcome, error)
	Clear(ctx context.Context, sessionID string) (discussion.Outcome, error)
	Decide(ctx context.Context, sessionID string, proceed bool) (discussion.Outcome, error)
	View(ctx context.Context, sessionID string) (discussion.Outcome, error)
}

type Server struct {
	cfg          config.Config
	sessions     *session.Manager
	orchestrator Orchestrator
	hub          *Hub
	registry     *persona.Registry
	metrics      *observability.Metrics
	upgrader     websocket.Upgrader

	// wsReadTimeout bounds how long a connection may stay silent, pongs
	// included. The server pings at a third of it.
	wsReadTimeout time.Duration
}

const defaultWSReadTimeout = 120 * time.Second

func New(cfg config.Config, sessions *session.Manager, orchestrator Orchestrator, hub *Hub, metrics *observability.Metrics) *Server {
	if hub == nil {
		hub = NewHub(metrics)
	}
	return &Server{
		cfg:          cfg,
		sessions:     sessions,
		orchestrator: orchestrator,
		hub:          hub,
		registry:     persona.Default(),
		metrics:      metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the serving origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/personas", s.handleListPersonas)
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)

	r.Route("/v1/discussions", func(r chi.Router) {
		r.Post("/", s.handleCreateDiscussion)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDiscussion)
			r.Delete("/", s.handleEndDiscussion)
			r.Post("/start", s.handleStart)
			r.Post("/continue", s.handleContinue)
			r.Post("/clear", s.handleClear)
			r.Post("/decision", s.handleDecision)
			r.Get("/ws", s.handleDiscussionWS)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"agent_mode":  s.cfg.AgentMode,
		"scrape_mode": s.cfg.ScrapeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.orchestrator == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type personaResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
	Default     bool     `json:"default"`
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	defaults := map[string]bool{}
	for _, n := range persona.DefaultSelection() {
		defaults[n] = true
	}
	all := s.registry.All()
	out := make([]personaResponse, 0, len(all))
	for _, p := range all {
		tools := make([]string, 0, len(p.Tools))
		for _, t := range p.Tools {
			tools = append(tools, string(t))
		}
		out = append(out, personaResponse{
			Name:        p.Name,
			Description: p.Description,
			Tools:       tools,
			Default:     defaults[p.Name],
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"personas": out})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.TurnAppended:
		return m.Type, true
	case protocol.RoundStarted:
		return m.Type, true
	case protocol.RoundCompleted:
		return m.Type, true
	case protocol.RoundFailed:
		return m.Type, true
	case protocol.TranscriptCleared:
		return m.Type, true
	case protocol.SessionState:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
