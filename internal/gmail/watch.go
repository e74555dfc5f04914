package gmail

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/api/gmail/v1"
)

// WatchResult is the push-subscription lease returned by users.watch.
type WatchResult struct {
	HistoryID  string
	Expiration time.Time
}

// Watch (re)registers the push subscription for this mailbox on the
// given Pub/Sub topic. Gmail expires watches after about a week, so
// the scheduler renews them daily.
func (u *UserClient) Watch(ctx context.Context, topic string) (*WatchResult, error) {
	req := &gmail.WatchRequest{
		TopicName:           topic,
		LabelIds:            []string{"INBOX"},
		LabelFilterBehavior: "INCLUDE",
	}

	var resp *gmail.WatchResponse
	err := withRetry(ctx, func() error {
		var callErr error
		resp, callErr = u.svc.Users.Watch("me", req).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register watch: %w", err)
	}

	return &WatchResult{
		HistoryID:  strconv.FormatUint(resp.HistoryId, 10),
		Expiration: time.UnixMilli(resp.Expiration),
	}, nil
}

// StopWatch tears down the push subscription for this mailbox.
func (u *UserClient) StopWatch(ctx context.Context) error {
	err := withRetry(ctx, func() error {
		return u.svc.Users.Stop("me").Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to stop watch: %w", err)
	}
	return nil
}
