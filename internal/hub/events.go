package hub

import (
	"time"

	"docflow/internal/history"
	"docflow/internal/sla"
)

// EventType tags outbound event payloads.
type EventType string

const (
	EventTaskUpdate           EventType = "task_update"
	EventTaskAssigned         EventType = "task_assigned"
	EventStageCompleted       EventType = "stage_completed"
	EventSLABreached          EventType = "sla_breached"
	EventEmployeeConnected    EventType = "employee_connected"
	EventEmployeeDisconnected EventType = "employee_disconnected"
	EventEmployeeStatus       EventType = "employee_status_update"
	EventConnection           EventType = "connection"
	EventPong                 EventType = "pong"
	EventError                EventType = "error"
)

// Event is the envelope every payload crosses the wire in.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps a payload with its type and the current instant.
func NewEvent(eventType EventType, data any) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}
}

// Welcome acknowledges a successful attach on the new connection.
type Welcome struct {
	ConnectionID string `json:"connection_id"`
	EmployeeCode string `json:"employee_code"`
	Message      string `json:"message"`
}

// Presence announces an employee connecting, disconnecting, or changing
// their reported status.
type Presence struct {
	EmployeeCode string `json:"employee_code"`
	Status       string `json:"status,omitempty"`
}

// TaskAssigned announces a stage entry opening with (or awaiting) a worker.
type TaskAssigned struct {
	FileID     string        `json:"file_id"`
	Stage      history.Stage `json:"stage"`
	WorkerID   string        `json:"worker_id,omitempty"`
	WorkerName string        `json:"worker_name,omitempty"`
	EnteredAt  time.Time     `json:"entered_at"`
}

// StageCompleted announces a progression step.
type StageCompleted struct {
	FileID          string        `json:"file_id"`
	Stage           history.Stage `json:"stage"`
	WorkerID        string        `json:"worker_id,omitempty"`
	WorkerName      string        `json:"worker_name,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
	NextStage       history.Stage `json:"next_stage,omitempty"`
	Delivered       bool          `json:"delivered"`
}

// SLABreached carries a breach to connected clients. Consumers dedupe on
// file and stage; the hub offers no replay.
type SLABreached struct {
	sla.Breach
	RecordedAt time.Time `json:"recorded_at"`
}

// Pong answers an inbound ping. It is a flat frame rather than an Event
// envelope: the timestamp field carries the client's own value back verbatim
// so the client can match the pong to the ping that prompted it.
type Pong struct {
	Type      EventType `json:"type"`
	Timestamp string    `json:"timestamp"`
}
