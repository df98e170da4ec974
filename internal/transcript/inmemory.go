package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps transcripts in process memory only.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]TurnRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]TurnRecord)}
}

func (s *InMemoryStore) Append(_ context.Context, sessionID string, record TurnRecord) (TurnRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[sessionID] = append(s.records[sessionID], record)
	return record, nil
}

func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[sessionID] = nil
	return nil
}

func (s *InMemoryStore) Snapshot(_ context.Context, sessionID string) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[sessionID]
	out := make([]TurnRecord, len(arr))
	copy(out, arr)
	return out, nil
}

// Recent returns the last limit records in order. A limit <= 0 returns all.
func (s *InMemoryStore) Recent(_ context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]TurnRecord, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Len(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[sessionID]), nil
}

func (s *InMemoryStore) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
}

func (s *InMemoryStore) Close() error { return nil }
