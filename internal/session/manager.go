package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// State is the discussion's position in its action cycle.
type State string

const (
	StateAwaitingTopic    State = "awaiting_topic"
	StateRoundInFlight    State = "round_in_flight"
	StateAwaitingDecision State = "awaiting_continue_decision"
	StateDone             State = "done"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session ended")
	ErrBusy     = errors.New("session has an action in flight")
)

type Session struct {
	ID             string    `json:"session_id"`
	Status         Status    `json:"status"`
	State          State     `json:"state"`
	Topic          string    `json:"topic"`
	Personas       []string  `json:"personas"`
	Rounds         int       `json:"rounds"`
	LastError      string    `json:"last_error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) InactivityTimeout() time.Duration {
	return m.inactivityTimeout
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(topic string, personas []string) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		Status:         StatusActive,
		State:          StateAwaitingTopic,
		Topic:          topic,
		Personas:       slices.Clone(personas),
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Begin claims the session for one action and marks a round in flight. It
// returns the session as it was before the claim. Only one action may hold
// a session at a time.
func (m *Manager) Begin(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status == StatusEnded {
		return nil, ErrEnded
	}
	if s.State == StateRoundInFlight {
		return nil, ErrBusy
	}
	prev := clone(s)
	s.State = StateRoundInFlight
	s.LastActivityAt = time.Now().UTC()
	return prev, nil
}

// Finish releases a claim taken by Begin. update runs under the manager lock
// and must move State away from StateRoundInFlight.
func (m *Manager) Finish(sessionID string, update func(*Session)) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if update != nil {
		update(s)
	}
	if s.State == StateRoundInFlight {
		s.State = StateAwaitingTopic
	}
	if s.Status == StatusEnded {
		s.State = StateDone
	}
	s.LastActivityAt = time.Now().UTC()
	return clone(s), nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	if s.State != StateRoundInFlight {
		s.State = StateDone
	}
	s.LastActivityAt = time.Now().UTC()
	return clone(s), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.State == StateRoundInFlight {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.State = StateDone
		s.LastActivityAt = now
		expired = append(expired, clone(s))
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	// An empty selection stays distinct from no selection.
	c.Personas = slices.Clone(s.Personas)
	return &c
}
