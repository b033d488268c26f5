package models

import (
	"time"

	"github.com/google/uuid"
)

// Routing condition operators.
const (
	OpEquals = "equals" // exact string match
	OpIn     = "in"     // value must be in the allowed set
	OpMax    = "max"    // numeric value must be <= threshold
)

// RoutingCondition is one predicate over the event payload. A rule with no
// conditions matches every event of its type.
type RoutingCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// RoutingRule maps a notification type plus conditions to group targets.
type RoutingRule struct {
	ID               uuid.UUID          `json:"id"`
	NotificationType string             `json:"notification_type"`
	Conditions       []RoutingCondition `json:"conditions"`
	TargetChannels   []string           `json:"target_channels"`
	TargetGroups     []string           `json:"target_groups"`
	TemplateCode     string             `json:"template_code"`
	IsActive         bool               `json:"is_active"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Template is a human-editable message body with {{name}} placeholders.
type Template struct {
	ID       uuid.UUID `json:"id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	Body     string    `json:"body"`
	IsActive bool      `json:"is_active"`
}
