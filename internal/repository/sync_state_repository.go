package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inboxagent/sync-worker/internal/models"
)

var ErrSyncStateNotFound = errors.New("sync state not found")

type SyncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// GetByUser retrieves the sync state row for a user.
func (r *SyncStateRepository) GetByUser(ctx context.Context, userID string) (*models.SyncState, error) {
	var state models.SyncState
	result := r.db.WithContext(ctx).First(&state, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSyncStateNotFound
		}
		return nil, fmt.Errorf("failed to get sync state: %w", result.Error)
	}
	return &state, nil
}

// AdvanceWatermark writes the cursor a completed pass reported as
// newest, creating the row if the mailbox has never synced. Callers
// only invoke this after all pages of a pass were consumed, which is
// what keeps the watermark from regressing.
func (r *SyncStateRepository) AdvanceWatermark(ctx context.Context, userID, historyID string) (*models.SyncState, error) {
	now := time.Now()

	state, err := r.GetByUser(ctx, userID)
	if errors.Is(err, ErrSyncStateNotFound) {
		state = &models.SyncState{
			ID:            uuid.New().String(),
			UserID:        userID,
			LastHistoryID: historyID,
			LastSyncAt:    &now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := r.db.WithContext(ctx).Create(state).Error; err != nil {
			return nil, fmt.Errorf("failed to create sync state: %w", err)
		}
		return state, nil
	}
	if err != nil {
		return nil, err
	}

	result := r.db.WithContext(ctx).Model(&models.SyncState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"last_history_id": historyID,
			"last_sync_at":    now,
			"updated_at":      now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to advance watermark: %w", result.Error)
	}

	state.LastHistoryID = historyID
	state.LastSyncAt = &now
	state.UpdatedAt = now
	return state, nil
}

// UpdateWatch persists push-subscription lease bookkeeping after a
// watch call, creating the row if needed.
func (r *SyncStateRepository) UpdateWatch(ctx context.Context, userID string, expiration time.Time, resourceID string) error {
	now := time.Now()

	_, err := r.GetByUser(ctx, userID)
	if errors.Is(err, ErrSyncStateNotFound) {
		state := &models.SyncState{
			ID:              uuid.New().String(),
			UserID:          userID,
			LastHistoryID:   models.NeverSyncedHistoryID,
			WatchExpiration: &expiration,
			WatchResourceID: &resourceID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := r.db.WithContext(ctx).Create(state).Error; err != nil {
			return fmt.Errorf("failed to create sync state: %w", err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&models.SyncState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"watch_expiration":  expiration,
			"watch_resource_id": resourceID,
			"updated_at":        now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update watch state: %w", result.Error)
	}
	return nil
}

// ClearWatch drops the push-subscription lease after the watch was
// stopped. A user with no sync state has nothing to clear.
func (r *SyncStateRepository) ClearWatch(ctx context.Context, userID string) error {
	result := r.db.WithContext(ctx).Model(&models.SyncState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"watch_expiration":  nil,
			"watch_resource_id": nil,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to clear watch state: %w", result.Error)
	}
	return nil
}
