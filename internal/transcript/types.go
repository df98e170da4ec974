// Package transcript keeps the ordered record of each discussion.
package transcript

import (
	"context"
	"time"

	"github.com/ent0n29/roundtable/internal/sentiment"
)

// TurnRecord is one persona's contribution. Records are immutable once appended.
type TurnRecord struct {
	ID             string          `json:"id"`
	Persona        string          `json:"persona"`
	Message        string          `json:"message"`
	SentimentScore float64         `json:"sentiment_score"`
	SentimentLabel sentiment.Label `json:"sentiment_label"`
	Round          int             `json:"round"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Store holds per-session transcripts in speaking order.
type Store interface {
	Append(ctx context.Context, sessionID string, record TurnRecord) (TurnRecord, error)
	Clear(ctx context.Context, sessionID string) error
	Snapshot(ctx context.Context, sessionID string) ([]TurnRecord, error)
	Recent(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	Len(ctx context.Context, sessionID string) (int, error)
	Drop(sessionID string)
	Close() error
}
