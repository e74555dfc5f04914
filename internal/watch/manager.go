package watch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/inboxagent/sync-worker/internal/gmail"
	"github.com/inboxagent/sync-worker/internal/models"
	"github.com/inboxagent/sync-worker/internal/repository"
)

// renewHorizon: leases expiring within this window get re-registered.
// Gmail watches live about 7 days; the scheduler calls RenewAll daily.
const renewHorizon = 48 * time.Hour

// Manager renews push-notification subscriptions for every active
// mailbox.
type Manager struct {
	users  *repository.UserRepository
	states *repository.SyncStateRepository
	oauth  *gmail.Client
	topic  string
}

func NewManager(users *repository.UserRepository, states *repository.SyncStateRepository, oauth *gmail.Client, topic string) *Manager {
	return &Manager{users: users, states: states, oauth: oauth, topic: topic}
}

// RenewAll walks active users and re-registers watches nearing expiry.
// Each user is handled independently; a failure is logged, not raised.
func (m *Manager) RenewAll(ctx context.Context) error {
	if m.topic == "" {
		log.Printf("Watch renewal skipped: no PUBSUB_TOPIC configured")
		return nil
	}

	users, err := m.users.ListActiveOnboarded(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	for i := range users {
		user := &users[i]
		if err := m.renewUser(ctx, user); err != nil {
			log.Printf("Watch renewal failed for user %s: %v", user.ID, err)
		}
	}
	return nil
}

// Disable tears down the push subscription for a mailbox that is
// being taken out of service. The provider-side stop is best effort;
// the local lease is cleared regardless so renewal never resurrects
// the watch.
func (m *Manager) Disable(ctx context.Context, user *models.User) error {
	token, err := m.oauth.EnsureAccessToken(ctx, user, m.users)
	if err != nil {
		log.Printf("Watch disable for user %s: no usable token, clearing lease only: %v", user.ID, err)
		return m.states.ClearWatch(ctx, user.ID)
	}

	client, err := gmail.NewUserClient(ctx, token)
	if err != nil {
		return err
	}
	if err := client.StopWatch(ctx); err != nil {
		log.Printf("Watch disable for user %s: provider stop failed: %v", user.ID, err)
	}

	return m.states.ClearWatch(ctx, user.ID)
}

func (m *Manager) renewUser(ctx context.Context, user *models.User) error {
	state, err := m.states.GetByUser(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrSyncStateNotFound) {
		return err
	}
	if state != nil && state.WatchExpiration != nil && state.WatchExpiration.After(time.Now().Add(renewHorizon)) {
		return nil
	}

	token, err := m.oauth.EnsureAccessToken(ctx, user, m.users)
	if err != nil {
		return err
	}
	client, err := gmail.NewUserClient(ctx, token)
	if err != nil {
		return err
	}

	result, err := client.Watch(ctx, m.topic)
	if err != nil {
		return err
	}

	resourceID := uuid.New().String()
	if err := m.states.UpdateWatch(ctx, user.ID, result.Expiration, resourceID); err != nil {
		return err
	}

	log.Printf("Renewed watch for user %s, expires %s", user.ID, result.Expiration)
	return nil
}
