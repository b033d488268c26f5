package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert rule conditions.
const (
	CondGreaterThan = "greater_than"
	CondLessThan    = "less_than"
	CondEquals      = "equals"
	CondNotEquals   = "not_equals"
)

// AlertRecipient is one staff member an alert rule notifies. Which field is
// used depends on the channel the rule fires on.
type AlertRecipient struct {
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

// AlertRule is a threshold check against a named system metric. Rules are
// edited through the configuration API; the evaluator only reads them.
type AlertRule struct {
	ID              uuid.UUID        `json:"id"`
	Name            string           `json:"name"`
	Metric          string           `json:"metric"`
	Condition       string           `json:"condition"`
	Threshold       float64          `json:"threshold"`
	Severity        int              `json:"severity"`
	CooldownMinutes int              `json:"cooldown_minutes"`
	Channels        []string         `json:"channels"`
	Recipients      []AlertRecipient `json:"recipients"`
	IsActive        bool             `json:"is_active"`
	CreatedAt       time.Time        `json:"created_at"`
}

// AlertHistory records a single firing of a rule and how delivery went per
// channel.
type AlertHistory struct {
	ID          uuid.UUID       `json:"id"`
	RuleID      uuid.UUID       `json:"rule_id"`
	Metric      string          `json:"metric"`
	Value       float64         `json:"value"`
	Threshold   float64         `json:"threshold"`
	Severity    int             `json:"severity"`
	Message     string          `json:"message"`
	ChannelSent map[string]bool `json:"channel_sent"`
	FiredAt     time.Time       `json:"fired_at"`
}
