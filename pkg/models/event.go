package models

import "time"

// EventType identifies a project lifecycle event
type EventType string

// EventType constants
const (
	EventProcessingStarted   EventType = "processing.started"
	EventStepProgress        EventType = "step.progress"
	EventProcessingCompleted EventType = "processing.completed"
	EventProcessingCancelled EventType = "processing.cancelled"
	EventProcessingFailed    EventType = "processing.failed"
	EventProjectCreated      EventType = "project.created"
	EventProjectDeleted      EventType = "project.deleted"
)

// ProjectEvent is broadcast to websocket subscribers and the event exchange
type ProjectEvent struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	UserID    string        `json:"user_id"`
	ProjectID string        `json:"project_id"`
	StepIndex int           `json:"step_index"`
	Progress  int           `json:"progress"`
	Status    ProjectStatus `json:"status,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
