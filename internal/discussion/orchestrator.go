// Package discussion drives rounds of persona turns over a shared transcript.
package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/roundtable/internal/agent"
	"github.com/ent0n29/roundtable/internal/observability"
	"github.com/ent0n29/roundtable/internal/persona"
	"github.com/ent0n29/roundtable/internal/policy"
	"github.com/ent0n29/roundtable/internal/protocol"
	"github.com/ent0n29/roundtable/internal/reliability"
	"github.com/ent0n29/roundtable/internal/sentiment"
	"github.com/ent0n29/roundtable/internal/session"
	"github.com/ent0n29/roundtable/internal/transcript"
	"github.com/ent0n29/roundtable/internal/webcontext"
)

const (
	contributeObjective    = "Contribute to the discussion"
	contributeInstructions = "Respond to the topic and previous comments in character. " +
		"Use the provided background information to make relevant observations. " +
		"Keep responses 1-2 paragraphs max."

	DefaultMemoryTurns = 10
)

// Scorer classifies the sentiment of a message.
type Scorer interface {
	Score(ctx context.Context, text string) (sentiment.Result, error)
}

// ContextFetcher derives background text for a topic.
type ContextFetcher interface {
	FetchTopicContext(ctx context.Context, topic string) webcontext.TopicContext
}

// Publisher receives transcript events for live subscribers.
type Publisher interface {
	Publish(sessionID string, event any)
}

// StatusLevel is the severity of an action's user-visible status.
type StatusLevel string

const (
	LevelInfo    StatusLevel = "info"
	LevelWarning StatusLevel = "warning"
	LevelError   StatusLevel = "error"
)

type Status struct {
	Level     StatusLevel `json:"level"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

// Outcome is the result of one presentation action.
type Outcome struct {
	Session    *session.Session         `json:"session"`
	Transcript []transcript.TurnRecord  `json:"transcript"`
	Executed   bool                     `json:"executed"`
	Status     Status                   `json:"status"`
	Context    *webcontext.TopicContext `json:"context,omitempty"`
}

// Deps wires an Orchestrator.
type Deps struct {
	Sessions    *session.Manager
	Transcripts transcript.Store
	Registry    *persona.Registry
	Runtime     agent.Runtime
	Scorer      Scorer
	Fetcher     ContextFetcher
	Publisher   Publisher
	Metrics     *observability.Metrics
	// MemoryTurns caps how many recent turns each persona sees. Zero or less
	// disables transcript memory.
	MemoryTurns int
	Logger      *slog.Logger
}

type Orchestrator struct {
	sessions    *session.Manager
	transcripts transcript.Store
	registry    *persona.Registry
	runtime     agent.Runtime
	scorer      Scorer
	fetcher     ContextFetcher
	publisher   Publisher
	metrics     *observability.Metrics
	memoryTurns int
	logger      *slog.Logger
}

func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := d.Registry
	if registry == nil {
		registry = persona.Default()
	}
	return &Orchestrator{
		sessions:    d.Sessions,
		transcripts: d.Transcripts,
		registry:    registry,
		runtime:     d.Runtime,
		scorer:      d.Scorer,
		fetcher:     d.Fetcher,
		publisher:   d.Publisher,
		metrics:     d.Metrics,
		memoryTurns: d.MemoryTurns,
		logger:      logger,
	}
}

// RunRound asks each persona, in order, for one turn and appends it. The
// first generation or scoring failure stops the round; the records appended
// so far are returned together with a *RoundError.
func (o *Orchestrator) RunRound(ctx context.Context, sessionID, topic, background string, personas []persona.Persona) ([]transcript.TurnRecord, error) {
	round, err := o.nextRound(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	appended := make([]transcript.TurnRecord, 0, len(personas))
	for _, p := range personas {
		history, err := o.memory(ctx, sessionID)
		if err != nil {
			return appended, err
		}

		spec := p.AgentSpec()
		res, err := o.runtime.Run(ctx, agent.Task{
			Objective:    contributeObjective,
			Instructions: contributeInstructions,
			Persona:      &spec,
			Context: map[string]string{
				"topic":           topic,
				"background_info": background,
				"transcript":      history,
			},
			ResultType: agent.ResultText,
		})
		if err != nil {
			return appended, &RoundError{Persona: p.Name, Kind: KindGeneration, Round: round, Err: err}
		}

		score, err := o.scorer.Score(ctx, res.Text)
		if err != nil {
			return appended, &RoundError{Persona: p.Name, Kind: KindScoring, Round: round, Err: err}
		}

		rec, err := o.transcripts.Append(ctx, sessionID, transcript.TurnRecord{
			Persona:        p.Name,
			Message:        res.Text,
			SentimentScore: score.Score,
			SentimentLabel: score.Label,
			Round:          round,
		})
		if err != nil {
			return appended, fmt.Errorf("append turn: %w", err)
		}
		appended = append(appended, rec)
		o.metrics.Turn(rec.Persona, string(rec.SentimentLabel))
		o.publish(sessionID, protocol.TurnAppended{Type: protocol.TypeTurnAppended, SessionID: sessionID, Turn: rec})
	}
	return appended, nil
}

// Start clears the transcript and runs one round on topic. A blank topic or
// an empty persona selection is a no-op. A nil selection uses the session's
// personas.
func (o *Orchestrator) Start(ctx context.Context, sessionID, topic string, names []string) (Outcome, error) {
	prev, err := o.sessions.Begin(sessionID)
	if err != nil {
		return Outcome{}, err
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return o.noop(ctx, prev, "Please enter a topic to start the discussion.")
	}
	personas, err := o.selection(prev, names)
	if err != nil {
		return o.abort(ctx, prev, err)
	}
	if len(personas) == 0 {
		return o.noop(ctx, prev, "Please select at least one character.")
	}

	if err := o.transcripts.Clear(ctx, sessionID); err != nil {
		return o.abort(ctx, prev, fmt.Errorf("clear transcript: %w", err))
	}
	o.publish(sessionID, protocol.TranscriptCleared{Type: protocol.TypeTranscriptCleared, SessionID: sessionID})
	return o.round(ctx, sessionID, topic, personas)
}

// Continue appends one round to a non-empty transcript.
func (o *Orchestrator) Continue(ctx context.Context, sessionID, topic string, names []string) (Outcome, error) {
	prev, err := o.sessions.Begin(sessionID)
	if err != nil {
		return Outcome{}, err
	}

	n, err := o.transcripts.Len(ctx, sessionID)
	if err != nil {
		return o.abort(ctx, prev, err)
	}
	if n == 0 {
		return o.noop(ctx, prev, "Start a discussion before continuing it.")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return o.noop(ctx, prev, "Please enter a topic to continue the discussion.")
	}
	personas, err := o.selection(prev, names)
	if err != nil {
		return o.abort(ctx, prev, err)
	}
	if len(personas) == 0 {
		return o.noop(ctx, prev, "Please select at least one character.")
	}
	return o.round(ctx, sessionID, topic, personas)
}

// Clear empties the transcript and waits for a new topic.
func (o *Orchestrator) Clear(ctx context.Context, sessionID string) (Outcome, error) {
	prev, err := o.sessions.Begin(sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if err := o.transcripts.Clear(ctx, sessionID); err != nil {
		return o.abort(ctx, prev, fmt.Errorf("clear transcript: %w", err))
	}
	o.publish(sessionID, protocol.TranscriptCleared{Type: protocol.TypeTranscriptCleared, SessionID: sessionID})

	sess, err := o.sessions.Finish(sessionID, func(s *session.Session) {
		s.State = session.StateAwaitingTopic
		s.Rounds = 0
		s.LastError = ""
	})
	if err != nil {
		return Outcome{}, err
	}
	o.publishState(sess)
	return Outcome{
		Session:    sess,
		Transcript: []transcript.TurnRecord{},
		Executed:   true,
		Status:     Status{Level: LevelInfo, Message: "Discussion cleared."},
	}, nil
}

// Decide answers the moderator question asked after each round: keep going
// with another round on the same topic, or end the discussion.
func (o *Orchestrator) Decide(ctx context.Context, sessionID string, proceed bool) (Outcome, error) {
	prev, err := o.sessions.Begin(sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if prev.State != session.StateAwaitingDecision {
		return o.noop(ctx, prev, "There is no round awaiting a decision.")
	}

	if !proceed {
		sess, err := o.sessions.Finish(sessionID, func(s *session.Session) { s.State = session.StateDone })
		if err != nil {
			return Outcome{}, err
		}
		o.publishState(sess)
		snap, err := o.transcripts.Snapshot(ctx, sessionID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Session:    sess,
			Transcript: snap,
			Executed:   true,
			Status:     Status{Level: LevelInfo, Message: "Discussion ended by the moderator."},
		}, nil
	}

	personas, err := o.selection(prev, nil)
	if err != nil {
		return o.abort(ctx, prev, err)
	}
	return o.round(ctx, sessionID, prev.Topic, personas)
}

// View returns the session and its transcript without running anything.
func (o *Orchestrator) View(ctx context.Context, sessionID string) (Outcome, error) {
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return Outcome{}, err
	}
	snap, err := o.transcripts.Snapshot(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Session: sess, Transcript: snap}, nil
}

// round fetches fresh context and runs one round. The session must be held.
func (o *Orchestrator) round(ctx context.Context, sessionID, topic string, personas []persona.Persona) (Outcome, error) {
	tc := o.fetcher.FetchTopicContext(ctx, topic)

	number, err := o.nextRound(ctx, sessionID)
	if err != nil {
		return o.release(ctx, sessionID, topic, personas, err)
	}
	o.publish(sessionID, protocol.RoundStarted{
		Type:        protocol.TypeRoundStarted,
		SessionID:   sessionID,
		Round:       number,
		Topic:       topic,
		Personas:    names(personas),
		SourceCount: tc.SourceCount,
	})

	appended, runErr := o.RunRound(ctx, sessionID, topic, tc.Text, personas)
	out, err := o.release(ctx, sessionID, topic, personas, runErr)
	out.Context = &tc
	if err != nil {
		var re *RoundError
		if errors.As(err, &re) {
			o.publish(sessionID, protocol.RoundFailed{
				Type:      protocol.TypeRoundFailed,
				SessionID: sessionID,
				Round:     re.Round,
				Persona:   re.Persona,
				Kind:      string(re.Kind),
				Retryable: out.Status.Retryable,
				Detail:    policy.Detail(re.Err),
			})
		}
		return out, err
	}

	out.Status.Message = fmt.Sprintf("Round %d complete.", number)
	o.publish(sessionID, protocol.RoundCompleted{
		Type:      protocol.TypeRoundCompleted,
		SessionID: sessionID,
		Round:     number,
		Turns:     len(appended),
	})
	o.logger.Info("round completed", "session_id", sessionID, "round", number, "turns", len(appended))
	return out, nil
}

// release records the round's result on the session and lets it go.
func (o *Orchestrator) release(ctx context.Context, sessionID, topic string, personas []persona.Persona, runErr error) (Outcome, error) {
	snap, err := o.transcripts.Snapshot(ctx, sessionID)
	if err != nil && runErr == nil {
		runErr = err
	}
	next := session.StateAwaitingTopic
	if len(snap) > 0 {
		next = session.StateAwaitingDecision
	}

	sess, err := o.sessions.Finish(sessionID, func(s *session.Session) {
		s.Topic = topic
		s.Personas = names(personas)
		s.State = next
		if runErr != nil {
			s.LastError = policy.Detail(runErr)
			return
		}
		s.Rounds++
		s.LastError = ""
	})
	if err != nil {
		return Outcome{}, err
	}
	o.publishState(sess)

	out := Outcome{Session: sess, Transcript: snap, Executed: true}
	if runErr != nil {
		o.metrics.Round("failed")
		var re *RoundError
		if errors.As(runErr, &re) {
			o.metrics.ProviderError("agent", string(re.Kind))
		}
		o.logger.Error("round failed", "session_id", sessionID, "error", runErr)
		out.Status = Status{Level: LevelError, Message: policy.Detail(runErr), Retryable: reliability.IsRetryable(runErr)}
		return out, runErr
	}
	o.metrics.Round("completed")
	out.Status = Status{Level: LevelInfo, Message: "Round complete."}
	return out, nil
}

// noop releases the session unchanged and reports why nothing ran.
func (o *Orchestrator) noop(ctx context.Context, prev *session.Session, reason string) (Outcome, error) {
	sess, err := o.sessions.Finish(prev.ID, func(s *session.Session) { s.State = prev.State })
	if err != nil {
		return Outcome{}, err
	}
	snap, err := o.transcripts.Snapshot(ctx, prev.ID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Session:    sess,
		Transcript: snap,
		Executed:   false,
		Status:     Status{Level: LevelWarning, Message: reason},
	}, invalid(reason)
}

// abort releases the session unchanged and returns err.
func (o *Orchestrator) abort(_ context.Context, prev *session.Session, err error) (Outcome, error) {
	if _, ferr := o.sessions.Finish(prev.ID, func(s *session.Session) { s.State = prev.State }); ferr != nil {
		return Outcome{}, errors.Join(err, ferr)
	}
	return Outcome{}, err
}

func (o *Orchestrator) selection(s *session.Session, requested []string) ([]persona.Persona, error) {
	chosen := requested
	if chosen == nil {
		chosen = s.Personas
	}
	if chosen == nil {
		chosen = persona.DefaultSelection()
	}
	return o.registry.ResolveAll(chosen)
}

func (o *Orchestrator) nextRound(ctx context.Context, sessionID string) (int, error) {
	last, err := o.transcripts.Recent(ctx, sessionID, 1)
	if err != nil {
		return 0, err
	}
	if len(last) == 0 {
		return 1, nil
	}
	return last[0].Round + 1, nil
}

// memory renders the most recent turns as "Name: message" lines.
func (o *Orchestrator) memory(ctx context.Context, sessionID string) (string, error) {
	if o.memoryTurns <= 0 {
		return "", nil
	}
	recent, err := o.transcripts.Recent(ctx, sessionID, o.memoryTurns)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(recent))
	for _, r := range recent {
		lines = append(lines, r.Persona+": "+r.Message)
	}
	return strings.Join(lines, "\n"), nil
}

func (o *Orchestrator) publish(sessionID string, event any) {
	if o.publisher != nil {
		o.publisher.Publish(sessionID, event)
	}
}

func (o *Orchestrator) publishState(s *session.Session) {
	o.publish(s.ID, protocol.SessionState{
		Type:      protocol.TypeSessionState,
		SessionID: s.ID,
		Status:    string(s.Status),
		State:     string(s.State),
		Topic:     s.Topic,
		Rounds:    s.Rounds,
	})
}

func names(ps []persona.Persona) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}
