package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification statuses as persisted on the notifications table.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Delivery channels.
const (
	ChannelInApp    = "in_app"
	ChannelGateway  = "gateway"
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

// Notification is the internal record persisted for every event the
// orchestrator handles, regardless of which external channels fire.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    int        `json:"user_id"`
	Type      string     `json:"type"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// Event is what reaches the orchestrator, either from the Kafka intake or
// from an API call.
type Event struct {
	UserID  int               `json:"user_id"`
	Type    string            `json:"type"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Target  string            `json:"target,omitempty"` // phone number for gateway delivery
	Email   string            `json:"email,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

// Preference is a per-user, per-channel opt-in row. A user with no rows at
// all gets every channel.
type Preference struct {
	UserID  int    `json:"user_id"`
	Channel string `json:"channel"`
	Enabled bool   `json:"enabled"`
}
