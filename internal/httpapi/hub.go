package httpapi

import (
	"sync"

	"github.com/ent0n29/roundtable/internal/observability"
)

// Hub fans discussion events out to websocket subscribers of a session.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[chan any]struct{}
	metrics *observability.Metrics
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		subs:    make(map[string]map[chan any]struct{}),
		metrics: metrics,
	}
}

// Subscribe registers a buffered event channel for sessionID. The returned
// func unsubscribes and closes the channel.
func (h *Hub) Subscribe(sessionID string, buffer int) (<-chan any, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan any, buffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan any]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[sessionID], ch)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers event to every subscriber without blocking. Slow
// subscribers miss events.
func (h *Hub) Publish(sessionID string, event any) {
	msgType := "unknown"
	if t, ok := messageTypeOf(event); ok {
		msgType = string(t)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- event:
		default:
			h.metrics.WSMessage("dropped", msgType)
		}
	}
}

// Subscribers reports how many listeners sessionID has.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
