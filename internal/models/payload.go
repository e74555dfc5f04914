package models

// Job payloads are stored as JSON text and never interpreted by the
// queue itself; only the handler for the matching job type decodes them.

// SyncPayload triggers a reconciliation pass for the owning user.
type SyncPayload struct {
	HistoryID string `json:"history_id,omitempty"` // hint from the push notification, may be empty
	ForceFull bool   `json:"force_full,omitempty"`
}

// ClassifyPayload points the classifier at one message.
type ClassifyPayload struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// Cleanup actions.
const (
	CleanupActionDone      = "done"
	CleanupActionCheckSent = "check_sent"
)

// CleanupPayload carries a lifecycle cleanup action for a thread.
type CleanupPayload struct {
	ThreadID  string `json:"thread_id"`
	Action    string `json:"action"`
	MessageID string `json:"message_id,omitempty"`
}

// DraftPayload asks for a reply draft on a thread.
type DraftPayload struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// ReworkPayload asks for an existing draft to be regenerated.
type ReworkPayload struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}

// AgentProcessPayload routes a message to an agent profile instead of
// the classify pipeline.
type AgentProcessPayload struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
	Profile   string `json:"profile"`
	RouteRule string `json:"route_rule,omitempty"`
}
