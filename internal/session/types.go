package session

import "time"

// CreateRequest defines payload for creating a new discussion session.
type CreateRequest struct {
	Topic    string   `json:"topic"`
	Personas []string `json:"personas"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	Status          Status    `json:"status"`
	State           State     `json:"state"`
	Topic           string    `json:"topic"`
	Personas        []string  `json:"personas"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
