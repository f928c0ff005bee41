package models

import "time"

// AgentEventType tags the phase an event describes
type AgentEventType string

const (
	EventRunStarted  AgentEventType = "run_started"
	EventRunFinished AgentEventType = "run_finished"
	EventRunFailed   AgentEventType = "run_failed"
)

// AgentEvent is a transient run-lifecycle notification streamed to live
// observers. The audit record, not the event bus, is the durable history;
// events for the same run share its run_id as the correlation key.
type AgentEvent struct {
	Type      AgentEventType `json:"type"`
	RunID     string         `json:"run_id"`
	Agent     string         `json:"agent"`
	Action    string         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	// Plan is carried on run_started only
	Plan map[string]interface{} `json:"plan,omitempty"`
	// Artifacts is carried on run_finished only
	Artifacts map[string]interface{} `json:"artifacts,omitempty"`
	// Error is carried on run_failed only
	Error string `json:"error,omitempty"`
}
