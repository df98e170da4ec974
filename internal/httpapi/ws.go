package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/policy"
	"github.com/ent0n29/roundtable/internal/protocol"
	"github.com/ent0n29/roundtable/internal/reliability"
	"github.com/ent0n29/roundtable/internal/session"
)

func (s *Server) handleDiscussionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.hub.Subscribe(sessionID, 256)
	defer unsubscribe()
	replies := make(chan any, 16)

	// Initial snapshot so late joiners can render state before the next event.
	replies <- protocol.SessionState{
		Type:      protocol.TypeSessionState,
		SessionID: sessionID,
		Status:    string(sess.Status),
		State:     string(sess.State),
		Topic:     sess.Topic,
		Rounds:    sess.Rounds,
	}

	readTimeout, pingInterval := s.wsTimeouts()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Pings keep a silent client's read deadline moving while a round runs.
		ping := time.NewTicker(pingInterval)
		defer ping.Stop()
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					cancel()
					return
				}
				continue
			case m, ok := <-events:
				if !ok {
					return
				}
				msg = m
			case m := <-replies:
				msg = m
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessage("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	var actions sync.WaitGroup
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.reply(replies, errorEvent(sessionID, "invalid_client_message", "gateway", false, err.Error()))
			continue
		}
		control, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		s.metrics.WSMessage("inbound", string(control.Type))
		if control.SessionID != sessionID {
			s.reply(replies, errorEvent(sessionID, "session_mismatch", "gateway", false, "session_id does not match the connection"))
			continue
		}

		actions.Add(1)
		go func() {
			defer actions.Done()
			if ev, ok := s.dispatch(ctx, control); ok {
				s.reply(replies, ev)
			}
		}()
	}

	cancel()
	actions.Wait()
	<-writerDone
	s.metrics.SessionEvent("ws_disconnected")
}

func (s *Server) wsTimeouts() (read, ping time.Duration) {
	read = s.wsReadTimeout
	if read <= 0 {
		read = defaultWSReadTimeout
	}
	return read, read / 3
}

// dispatch runs one client control action. Successful actions are reported
// through hub events; only refusals produce a direct reply.
func (s *Server) dispatch(ctx context.Context, c protocol.ClientControl) (protocol.ErrorEvent, bool) {
	var err error
	switch c.Action {
	case protocol.ActionStart:
		_, err = s.orchestrator.Start(ctx, c.SessionID, c.Topic, c.Personas)
	case protocol.ActionContinue:
		_, err = s.orchestrator.Continue(ctx, c.SessionID, c.Topic, c.Personas)
	case protocol.ActionClear:
		_, err = s.orchestrator.Clear(ctx, c.SessionID)
	case protocol.ActionDecide:
		_, err = s.orchestrator.Decide(ctx, c.SessionID, *c.Continue)
	case protocol.ActionEnd:
		var sess *session.Session
		sess, err = s.sessions.End(c.SessionID)
		if err == nil {
			s.metrics.SetActiveSessions(s.sessions.ActiveCount())
			s.metrics.SessionEvent("ended")
			s.hub.Publish(c.SessionID, protocol.SessionState{
				Type:      protocol.TypeSessionState,
				SessionID: c.SessionID,
				Status:    string(sess.Status),
				State:     string(sess.State),
				Topic:     sess.Topic,
				Rounds:    sess.Rounds,
			})
		}
	}

	var re *discussion.RoundError
	switch {
	case err == nil, errors.As(err, &re):
		// Round failures already reached subscribers as round_failed.
		return protocol.ErrorEvent{}, false
	case errors.Is(err, discussion.ErrInvalidAction):
		return errorEvent(c.SessionID, "invalid_action", "orchestrator", false, err.Error()), true
	case errors.Is(err, session.ErrBusy):
		return errorEvent(c.SessionID, "session_busy", "orchestrator", true, err.Error()), true
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrEnded):
		return errorEvent(c.SessionID, "session_unavailable", "orchestrator", false, err.Error()), true
	default:
		return errorEvent(c.SessionID, "action_failed", "orchestrator", reliability.IsRetryable(err), policy.Detail(err)), true
	}
}

func (s *Server) reply(replies chan<- any, ev any) {
	select {
	case replies <- ev:
	default:
		s.metrics.WSMessage("dropped", string(protocol.TypeErrorEvent))
	}
}

func errorEvent(sessionID, code, source string, retryable bool, detail string) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	}
}
