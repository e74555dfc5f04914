package syncer

import (
	"context"
	"errors"
)

// ErrStaleWatermark is returned by a Provider when the change log no
// longer covers the requested cursor. The engine converts it into a
// full-sync fallback instead of a failure.
var ErrStaleWatermark = errors.New("watermark invalid or expired")

// MessageRef identifies one message and its thread.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Message is the normalized view of one mail message, enough for
// routing and for the downstream handlers.
type Message struct {
	ID       string
	ThreadID string
	Subject  string
	From     string
	Snippet  string
	BodyText string
	LabelIDs []string
	Headers  map[string]string
}

// MessageAdded is a change-log entry for a message arriving.
type MessageAdded struct {
	Message  MessageRef
	LabelIDs []string
}

// LabelAdded is a change-log entry for labels applied to a message.
type LabelAdded struct {
	Message  MessageRef
	LabelIDs []string
}

// HistoryRecord is one change-log record. A record may carry any
// combination of the three change kinds; unknown kinds are dropped by
// the provider adapter.
type HistoryRecord struct {
	MessagesAdded   []MessageAdded
	LabelsAdded     []LabelAdded
	MessagesDeleted []MessageRef
}

// HistoryPage is one page of the provider change log.
type HistoryPage struct {
	Records       []HistoryRecord
	HistoryID     string // newest cursor the provider reported for this page
	NextPageToken string
}

// Provider is the narrow mailbox-provider surface the engine needs.
// The Gmail adapter implements it; tests fake it.
type Provider interface {
	ListHistory(ctx context.Context, startHistoryID string, pageSize int64, pageToken string) (*HistoryPage, error)
	ListMessages(ctx context.Context, query string, maxResults int64) ([]MessageRef, error)
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	CurrentHistoryID(ctx context.Context) (string, error)
}
