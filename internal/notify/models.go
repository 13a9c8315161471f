package notify

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the relationship of a recipient to the breaching worker.
type Role string

const (
	RoleWorker           Role = "worker"
	RoleManager          Role = "manager"
	RoleReportingManager Role = "reporting_manager"
)

// Channel names a delivery mechanism.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
	ChannelInApp   Channel = "inapp"
)

// Priority orders notifications for display and channel handling.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification is one message addressed to one recipient over one channel.
// In-app notifications persist until read or expired; other channels treat
// this struct as a transient dispatch payload.
type Notification struct {
	ID        string          `json:"id"`
	Recipient string          `json:"recipient"`
	Role      Role            `json:"role"`
	Channel   Channel         `json:"channel"`
	Subject   string          `json:"subject"`
	Body      string          `json:"body"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Priority  Priority        `json:"priority"`
	CreatedAt time.Time       `json:"created_at"`
	Read      bool            `json:"read"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// ParsePriority normalizes a priority string, defaulting to normal.
func ParsePriority(value string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(value))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	case PriorityUrgent:
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}
