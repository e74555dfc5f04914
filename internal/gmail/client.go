package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/inboxagent/sync-worker/internal/syncer"
)

// Client holds the OAuth application credentials and refreshes user
// tokens. Per-user API access goes through UserClient.
type Client struct {
	clientID     string
	clientSecret string
}

func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// TokenRefreshResult carries the outcome of an OAuth token refresh.
type TokenRefreshResult struct {
	AccessToken  string
	ExpiresAt    time.Time
	RefreshToken string // May be same or new
}

// RefreshAccessToken refreshes the OAuth2 access token
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenRefreshResult, error) {
	config := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}

	token := &oauth2.Token{
		RefreshToken: refreshToken,
	}

	tokenSource := config.TokenSource(ctx, token)
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	result := &TokenRefreshResult{
		AccessToken: newToken.AccessToken,
		ExpiresAt:   newToken.Expiry,
	}

	// Check if refresh token was rotated
	if newToken.RefreshToken != "" && newToken.RefreshToken != refreshToken {
		result.RefreshToken = newToken.RefreshToken
	} else {
		result.RefreshToken = refreshToken
	}

	return result, nil
}

// UserClient is a Gmail service bound to one user's access token. It
// implements syncer.Provider and the mutation calls the job handlers
// need.
type UserClient struct {
	svc *gmail.Service
}

// NewUserClient creates a Gmail service from a bearer token.
func NewUserClient(ctx context.Context, accessToken string) (*UserClient, error) {
	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &UserClient{svc: svc}, nil
}

// ListHistory fetches one page of the change log starting at the given
// cursor. A cursor the log no longer covers surfaces as
// syncer.ErrStaleWatermark.
func (u *UserClient) ListHistory(ctx context.Context, startHistoryID string, pageSize int64, pageToken string) (*syncer.HistoryPage, error) {
	start, err := strconv.ParseUint(startHistoryID, 10, 64)
	if err != nil {
		// The stored cursor is opaque to us; if the API cannot take
		// it, the change log is unusable from here.
		return nil, fmt.Errorf("%w: unparsable cursor %q", syncer.ErrStaleWatermark, startHistoryID)
	}

	call := u.svc.Users.History.List("me").
		StartHistoryId(start).
		MaxResults(pageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	var resp *gmail.ListHistoryResponse
	err = withRetry(ctx, func() error {
		var callErr error
		resp, callErr = call.Do()
		return callErr
	})
	if err != nil {
		if isStaleHistoryErr(err) {
			return nil, fmt.Errorf("%w: %v", syncer.ErrStaleWatermark, err)
		}
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	page := &syncer.HistoryPage{
		NextPageToken: resp.NextPageToken,
	}
	if resp.HistoryId > 0 {
		page.HistoryID = strconv.FormatUint(resp.HistoryId, 10)
	}

	for _, h := range resp.History {
		record := syncer.HistoryRecord{}
		for _, added := range h.MessagesAdded {
			if added.Message == nil {
				continue
			}
			record.MessagesAdded = append(record.MessagesAdded, syncer.MessageAdded{
				Message:  syncer.MessageRef{ID: added.Message.Id, ThreadID: added.Message.ThreadId},
				LabelIDs: added.Message.LabelIds,
			})
		}
		for _, change := range h.LabelsAdded {
			if change.Message == nil {
				continue
			}
			record.LabelsAdded = append(record.LabelsAdded, syncer.LabelAdded{
				Message:  syncer.MessageRef{ID: change.Message.Id, ThreadID: change.Message.ThreadId},
				LabelIDs: change.LabelIds,
			})
		}
		for _, deleted := range h.MessagesDeleted {
			if deleted.Message == nil {
				continue
			}
			record.MessagesDeleted = append(record.MessagesDeleted, syncer.MessageRef{
				ID:       deleted.Message.Id,
				ThreadID: deleted.Message.ThreadId,
			})
		}
		page.Records = append(page.Records, record)
	}

	return page, nil
}

// ListMessages returns refs for messages matching a search query.
func (u *UserClient) ListMessages(ctx context.Context, query string, maxResults int64) ([]syncer.MessageRef, error) {
	call := u.svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx)

	var resp *gmail.ListMessagesResponse
	err := withRetry(ctx, func() error {
		var callErr error
		resp, callErr = call.Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	refs := make([]syncer.MessageRef, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		refs = append(refs, syncer.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return refs, nil
}

// GetMessage fetches and normalizes one full message.
func (u *UserClient) GetMessage(ctx context.Context, messageID string) (*syncer.Message, error) {
	call := u.svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx)

	var msg *gmail.Message
	err := withRetry(ctx, func() error {
		var callErr error
		msg, callErr = call.Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}

	return normalizeMessage(msg), nil
}

// CurrentHistoryID returns the provider's newest cursor value.
func (u *UserClient) CurrentHistoryID(ctx context.Context) (string, error) {
	var profile *gmail.Profile
	err := withRetry(ctx, func() error {
		var callErr error
		profile, callErr = u.svc.Users.GetProfile("me").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to get profile: %w", err)
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}

// ModifyLabels adds and removes labels on a message.
func (u *UserClient) ModifyLabels(ctx context.Context, messageID string, add, remove []string) error {
	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}
	err := withRetry(ctx, func() error {
		_, callErr := u.svc.Users.Messages.Modify("me", messageID, req).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return fmt.Errorf("failed to modify labels on %s: %w", messageID, err)
	}
	return nil
}

// Draft is a reply draft on a thread.
type Draft struct {
	ID       string
	ThreadID string
}

// CreateDraft creates a reply draft on a thread. The body is a plain
// RFC 2822 message built from the parts.
func (u *UserClient) CreateDraft(ctx context.Context, threadID, to, subject, body string) (*Draft, error) {
	raw := buildRawMessage(to, subject, body)
	draft := &gmail.Draft{
		Message: &gmail.Message{
			ThreadId: threadID,
			Raw:      raw,
		},
	}

	var created *gmail.Draft
	err := withRetry(ctx, func() error {
		var callErr error
		created, callErr = u.svc.Users.Drafts.Create("me", draft).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create draft: %w", err)
	}
	return &Draft{ID: created.Id, ThreadID: threadID}, nil
}

// UpdateDraft replaces the content of an existing draft.
func (u *UserClient) UpdateDraft(ctx context.Context, draftID, threadID, to, subject, body string) error {
	raw := buildRawMessage(to, subject, body)
	draft := &gmail.Draft{
		Message: &gmail.Message{
			ThreadId: threadID,
			Raw:      raw,
		},
	}
	err := withRetry(ctx, func() error {
		_, callErr := u.svc.Users.Drafts.Update("me", draftID, draft).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return fmt.Errorf("failed to update draft %s: %w", draftID, err)
	}
	return nil
}

// FindDraftForThread returns the first draft on a thread, or nil.
func (u *UserClient) FindDraftForThread(ctx context.Context, threadID string) (*Draft, error) {
	var resp *gmail.ListDraftsResponse
	err := withRetry(ctx, func() error {
		var callErr error
		resp, callErr = u.svc.Users.Drafts.List("me").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}

	for _, d := range resp.Drafts {
		if d.Message != nil && d.Message.ThreadId == threadID {
			return &Draft{ID: d.Id, ThreadID: threadID}, nil
		}
	}
	return nil, nil
}

// ThreadHasSentMessage reports whether any message in the thread
// carries the SENT label.
func (u *UserClient) ThreadHasSentMessage(ctx context.Context, threadID string) (bool, error) {
	var thread *gmail.Thread
	err := withRetry(ctx, func() error {
		var callErr error
		thread, callErr = u.svc.Users.Threads.Get("me", threadID).Format("minimal").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return false, fmt.Errorf("failed to get thread %s: %w", threadID, err)
	}

	for _, m := range thread.Messages {
		for _, l := range m.LabelIds {
			if l == "SENT" {
				return true, nil
			}
		}
	}
	return false, nil
}

// normalizeMessage flattens a Gmail message into the provider-neutral
// shape the engine and handlers consume.
func normalizeMessage(msg *gmail.Message) *syncer.Message {
	out := &syncer.Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIds,
		Headers:  make(map[string]string),
	}

	if msg.Payload == nil {
		return out
	}

	for _, header := range msg.Payload.Headers {
		out.Headers[header.Name] = header.Value
		switch header.Name {
		case "Subject":
			out.Subject = header.Value
		case "From":
			out.From = header.Value
		}
	}

	out.BodyText = extractBody(msg.Payload)
	return out
}

// extractBody returns the first text/plain part, searching nested
// parts depth-first.
func extractBody(payload *gmail.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" && payload.MimeType == "text/plain" {
		decoded, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			return string(decoded)
		}
	}

	for _, part := range payload.Parts {
		if body := extractBody(part); body != "" {
			return body
		}
	}
	return ""
}

func buildRawMessage(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

var _ syncer.Provider = (*UserClient)(nil)
