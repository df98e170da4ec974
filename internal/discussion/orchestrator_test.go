package discussion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/roundtable/internal/agent"
	"github.com/ent0n29/roundtable/internal/persona"
	"github.com/ent0n29/roundtable/internal/protocol"
	"github.com/ent0n29/roundtable/internal/sentiment"
	"github.com/ent0n29/roundtable/internal/session"
	"github.com/ent0n29/roundtable/internal/transcript"
	"github.com/ent0n29/roundtable/internal/webcontext"
)

type scriptedRuntime struct {
	mu     sync.Mutex
	failOn map[string]error
	tasks  []agent.Task
	block  chan struct{}
}

func (r *scriptedRuntime) Run(ctx context.Context, task agent.Task) (agent.Result, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return agent.Result{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	name := task.Persona.Name
	if err := r.failOn[name]; err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Type: agent.ResultText, Text: name + " on " + task.Context["topic"]}, nil
}

type stubScorer struct {
	failOn map[string]error
}

func (s stubScorer) Score(_ context.Context, text string) (sentiment.Result, error) {
	for prefix, err := range s.failOn {
		if strings.HasPrefix(text, prefix) {
			return sentiment.Result{}, err
		}
	}
	return sentiment.Result{Score: 0.65, Label: sentiment.LabelFor(0.65)}, nil
}

type stubFetcher struct {
	calls int
	text  string
}

func (f *stubFetcher) FetchTopicContext(_ context.Context, topic string) webcontext.TopicContext {
	f.calls++
	return webcontext.TopicContext{Text: f.text + topic, MaxLength: 500, SourceCount: 2}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ string, event any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []protocol.MessageType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []protocol.MessageType
	for _, e := range p.events {
		switch ev := e.(type) {
		case protocol.TurnAppended:
			out = append(out, ev.Type)
		case protocol.RoundStarted:
			out = append(out, ev.Type)
		case protocol.RoundCompleted:
			out = append(out, ev.Type)
		case protocol.RoundFailed:
			out = append(out, ev.Type)
		case protocol.TranscriptCleared:
			out = append(out, ev.Type)
		case protocol.SessionState:
			out = append(out, ev.Type)
		}
	}
	return out
}

type harness struct {
	orch        *Orchestrator
	sessions    *session.Manager
	transcripts *transcript.InMemoryStore
	runtime     *scriptedRuntime
	fetcher     *stubFetcher
	publisher   *recordingPublisher
}

func newHarness(t *testing.T, scorer Scorer) *harness {
	t.Helper()
	if scorer == nil {
		scorer = stubScorer{}
	}
	h := &harness{
		sessions:    session.NewManager(time.Minute),
		transcripts: transcript.NewInMemoryStore(),
		runtime:     &scriptedRuntime{failOn: map[string]error{}},
		fetcher:     &stubFetcher{text: "Topic background: "},
		publisher:   &recordingPublisher{},
	}
	h.orch = New(Deps{
		Sessions:    h.sessions,
		Transcripts: h.transcripts,
		Runtime:     h.runtime,
		Scorer:      scorer,
		Fetcher:     h.fetcher,
		Publisher:   h.publisher,
		MemoryTurns: DefaultMemoryTurns,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func personasOf(records []transcript.TurnRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Persona)
	}
	return out
}

func TestStartRunsPersonasInOrder(t *testing.T) {
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)

	out, err := h.orch.Start(context.Background(), s.ID, "time travel", []string{"Penny", "Sheldon", "Raj"})
	require.NoError(t, err)

	assert.True(t, out.Executed)
	assert.Equal(t, []string{"Penny", "Sheldon", "Raj"}, personasOf(out.Transcript))
	for _, r := range out.Transcript {
		assert.Equal(t, 1, r.Round)
		assert.Equal(t, 0.65, r.SentimentScore)
		assert.Equal(t, sentiment.Positive, r.SentimentLabel)
		assert.NotEmpty(t, r.ID)
	}
	assert.Equal(t, session.StateAwaitingDecision, out.Session.State)
	assert.Equal(t, 1, out.Session.Rounds)
	assert.Equal(t, 1, h.fetcher.calls, "context is fetched once per action")
	assert.Equal(t, LevelInfo, out.Status.Level)
	require.NotNil(t, out.Context)
	assert.Equal(t, 2, out.Context.SourceCount)
}

func TestStartUsesDefaultSelection(t *testing.T) {
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)

	out, err := h.orch.Start(context.Background(), s.ID, "physics", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sheldon", "Leonard", "Penny", "Howard"}, personasOf(out.Transcript))
}

func TestStartBuildsGenerationTask(t *testing.T) {
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)

	_, err := h.orch.Start(context.Background(), s.ID, "lasers", []string{"Howard", "Raj"})
	require.NoError(t, err)
	require.Len(t, h.runtime.tasks, 2)

	first := h.runtime.tasks[0]
	assert.Equal(t, contributeObjective, first.Objective)
	assert.Equal(t, contributeInstructions, first.Instructions)
	assert.Equal(t, agent.ResultText, first.ResultType)
	assert.False(t, first.Interactive)
	assert.Equal(t, "lasers", first.Context["topic"])
	assert.Equal(t, "Topic background: lasers", first.Context["background_info"])
	assert.Empty(t, first.Context["transcript"])
	assert.Equal(t, []string{"web_scrape"}, first.Persona.Tools)

	// Later personas see earlier same-round turns.
	assert.Equal(t, "Howard: Howard on lasers", h.runtime.tasks[1].Context["transcript"])
}

func TestMemoryIsCapped(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.memoryTurns = 2
	s := h.sessions.Create("", nil)

	_, err := h.orch.Start(context.Background(), s.ID, "x", []string{"Sheldon", "Leonard", "Penny"})
	require.NoError(t, err)
	assert.Equal(t, "Sheldon: Sheldon on x\nLeonard: Leonard on x", h.runtime.tasks[2].Context["transcript"])
}

func TestStartBlankTopicIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)

	out, err := h.orch.Start(context.Background(), s.ID, "   ", nil)
	require.ErrorIs(t, err, ErrInvalidAction)
	assert.False(t, out.Executed)
	assert.Equal(t, LevelWarning, out.Status.Level)
	assert.Empty(t, out.Transcript)
	assert.Equal(t, session.StateAwaitingTopic, out.Session.State)
	assert.Zero(t, h.fetcher.calls)
	assert.Empty(t, h.runtime.tasks)
}

func TestStartEmptySelectionIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)

	out, err := h.orch.Start(context.Background(), s.ID, "topic", []string{})
	require.ErrorIs(t, err, ErrInvalidAction)
	assert.False(t, out.Executed)
}

func TestStartUnknownPersona(t *testing.T) {
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)

	_, err := h.orch.Start(context.Background(), s.ID, "topic", []string{"Sheldon", "Amy"})
	require.ErrorIs(t, err, persona.ErrUnknownPersona)

	got, err := h.sessions.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingTopic, got.State, "session must be released")
}

func TestClearThenStartHasOnlyNewRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)

	_, err := h.orch.Start(ctx, s.ID, "first", []string{"Sheldon", "Penny"})
	require.NoError(t, err)
	_, err = h.orch.Continue(ctx, s.ID, "first", []string{"Sheldon", "Penny"})
	require.NoError(t, err)

	cleared, err := h.orch.Clear(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Transcript)
	assert.Equal(t, session.StateAwaitingTopic, cleared.Session.State)

	out, err := h.orch.Start(ctx, s.ID, "second", []string{"Raj"})
	require.NoError(t, err)
	require.Len(t, out.Transcript, 1)
	assert.Equal(t, "Raj on second", out.Transcript[0].Message)
	assert.Equal(t, 1, out.Transcript[0].Round)
}

func TestStartReplacesPreviousTranscript(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)

	_, err := h.orch.Start(ctx, s.ID, "first", []string{"Sheldon"})
	require.NoError(t, err)
	out, err := h.orch.Start(ctx, s.ID, "second", []string{"Leonard"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Leonard"}, personasOf(out.Transcript))
}

func TestContinueOnEmptyTranscriptIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)

	out, err := h.orch.Continue(context.Background(), s.ID, "topic", nil)
	require.ErrorIs(t, err, ErrInvalidAction)
	assert.False(t, out.Executed)
	assert.Empty(t, out.Transcript)
	assert.Empty(t, h.runtime.tasks)
	assert.Zero(t, h.fetcher.calls)
}

func TestContinueBlankTopicIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)
	_, err := h.orch.Start(ctx, s.ID, "topic", []string{"Penny"})
	require.NoError(t, err)

	out, err := h.orch.Continue(ctx, s.ID, "", nil)
	require.ErrorIs(t, err, ErrInvalidAction)
	assert.Len(t, out.Transcript, 1)
	assert.Equal(t, session.StateAwaitingDecision, out.Session.State, "no-op keeps the prior state")
}

func TestContinueAppendsNextRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)
	_, err := h.orch.Start(ctx, s.ID, "topic", []string{"Penny", "Howard"})
	require.NoError(t, err)

	out, err := h.orch.Continue(ctx, s.ID, "topic", []string{"Penny", "Howard"})
	require.NoError(t, err)
	require.Len(t, out.Transcript, 4)
	assert.Equal(t, []int{1, 1, 2, 2}, []int{out.Transcript[0].Round, out.Transcript[1].Round, out.Transcript[2].Round, out.Transcript[3].Round})
	assert.Equal(t, 2, out.Session.Rounds)
	assert.Equal(t, 2, h.fetcher.calls, "context is fetched fresh for every action")
}

func TestGenerationFailureStopsRound(t *testing.T) {
	h := newHarness(t, nil)
	boom := errors.New("model unavailable")
	h.runtime.failOn["Leonard"] = boom
	s := h.sessions.Create("", nil)

	out, err := h.orch.Start(context.Background(), s.ID, "topic", []string{"Sheldon", "Leonard", "Penny"})
	require.Error(t, err)

	var re *RoundError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Leonard", re.Persona)
	assert.Equal(t, KindGeneration, re.Kind)
	assert.ErrorIs(t, err, boom)

	assert.True(t, out.Executed)
	assert.Equal(t, []string{"Sheldon"}, personasOf(out.Transcript), "earlier turns stay, later personas never run")
	assert.Len(t, h.runtime.tasks, 2)
	assert.Equal(t, LevelError, out.Status.Level)
	assert.Equal(t, session.StateAwaitingDecision, out.Session.State)
	assert.NotEmpty(t, out.Session.LastError)
	assert.Zero(t, out.Session.Rounds)
	assert.Contains(t, h.publisher.types(), protocol.TypeRoundFailed)
}

func TestScoringFailureStopsRound(t *testing.T) {
	boom := errors.New("classifier down")
	h := newHarness(t, stubScorer{failOn: map[string]error{"Leonard": boom}})
	s := h.sessions.Create("", nil)

	out, err := h.orch.Start(context.Background(), s.ID, "topic", []string{"Sheldon", "Leonard", "Penny"})
	var re *RoundError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindScoring, re.Kind)
	assert.Equal(t, "Leonard", re.Persona)
	assert.Equal(t, []string{"Sheldon"}, personasOf(out.Transcript))
}

func TestFailureOnFirstPersonaLeavesEmptyTranscript(t *testing.T) {
	h := newHarness(t, nil)
	h.runtime.failOn["Sheldon"] = errors.New("nope")
	s := h.sessions.Create("", nil)

	out, err := h.orch.Start(context.Background(), s.ID, "topic", []string{"Sheldon"})
	require.Error(t, err)
	assert.Empty(t, out.Transcript)
	assert.Equal(t, session.StateAwaitingTopic, out.Session.State)
}

func TestDecideContinueRunsAnotherRound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)
	_, err := h.orch.Start(ctx, s.ID, "robots", []string{"Howard"})
	require.NoError(t, err)

	out, err := h.orch.Decide(ctx, s.ID, true)
	require.NoError(t, err)
	require.Len(t, out.Transcript, 2)
	assert.Equal(t, "Howard on robots", out.Transcript[1].Message)
	assert.Equal(t, 2, out.Transcript[1].Round)
}

func TestDecideStopEndsDiscussion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)
	_, err := h.orch.Start(ctx, s.ID, "robots", []string{"Howard"})
	require.NoError(t, err)

	out, err := h.orch.Decide(ctx, s.ID, false)
	require.NoError(t, err)
	assert.True(t, out.Executed)
	assert.Equal(t, session.StateDone, out.Session.State)
	assert.Len(t, out.Transcript, 1)

	_, err = h.orch.Decide(ctx, s.ID, true)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestDecideWithoutPendingRoundIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)
	_, err := h.orch.Decide(context.Background(), s.ID, true)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestBusySessionRejectsSecondAction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.runtime.block = make(chan struct{})
	s := h.sessions.Create("", nil)

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Start(ctx, s.ID, "topic", []string{"Sheldon"})
		done <- err
	}()

	require.Eventually(t, func() bool {
		got, err := h.sessions.Get(s.ID)
		return err == nil && got.State == session.StateRoundInFlight
	}, time.Second, 5*time.Millisecond)

	_, err := h.orch.Clear(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrBusy)

	close(h.runtime.block)
	require.NoError(t, <-done)
}

func TestEventsFollowRoundLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)

	_, err := h.orch.Start(context.Background(), s.ID, "topic", []string{"Sheldon", "Penny"})
	require.NoError(t, err)
	assert.Equal(t, []protocol.MessageType{
		protocol.TypeTranscriptCleared,
		protocol.TypeRoundStarted,
		protocol.TypeTurnAppended,
		protocol.TypeTurnAppended,
		protocol.TypeSessionState,
		protocol.TypeRoundCompleted,
	}, h.publisher.types())
}

func TestUnknownSession(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Start(context.Background(), "missing", "topic", nil)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRunRoundWithMockRuntime(t *testing.T) {
	ctx := context.Background()
	store := transcript.NewInMemoryStore()
	rt := agent.NewMockRuntime()
	o := New(Deps{
		Sessions:    session.NewManager(time.Minute),
		Transcripts: store,
		Runtime:     rt,
		Scorer:      sentiment.NewScorer(rt, ""),
		Fetcher:     &stubFetcher{},
		MemoryTurns: DefaultMemoryTurns,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ps, err := persona.Default().ResolveAll([]string{"Sheldon", "Raj"})
	require.NoError(t, err)
	got, err := o.RunRound(ctx, "s1", "string theory", "", ps)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.GreaterOrEqual(t, r.SentimentScore, 0.0)
		assert.LessOrEqual(t, r.SentimentScore, 1.0)
		assert.Equal(t, sentiment.LabelFor(r.SentimentScore), r.SentimentLabel)
	}
	n, _ := store.Len(ctx, "s1")
	assert.Equal(t, 2, n)
}

func TestViewDoesNotRunAnything(t *testing.T) {
	h := newHarness(t, nil)
	s := h.sessions.Create("", nil)
	_, err := h.orch.Start(context.Background(), s.ID, "trains", []string{"Sheldon"})
	require.NoError(t, err)
	calls := len(h.runtime.tasks)

	out, err := h.orch.View(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, out.Executed)
	assert.Equal(t, []string{"Sheldon"}, personasOf(out.Transcript))
	assert.Equal(t, session.StateAwaitingDecision, out.Session.State)
	assert.Len(t, h.runtime.tasks, calls)

	_, err = h.orch.View(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}
