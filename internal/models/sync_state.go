package models

import "time"

// NeverSyncedHistoryID is the watermark value of a mailbox that has
// never completed a reconciliation pass.
const NeverSyncedHistoryID = "0"

// SyncState tracks the reconciliation watermark for one mailbox.
// At most one row exists per user. The watermark is an opaque cursor
// into the provider change log and only ever moves forward: a sync
// pass writes the newest value it observed, or nothing at all.
type SyncState struct {
	ID              string     `gorm:"column:id;primaryKey"`
	UserID          string     `gorm:"column:user_id;uniqueIndex"`
	LastHistoryID   string     `gorm:"column:last_history_id"`
	LastSyncAt      *time.Time `gorm:"column:last_sync_at"`
	WatchExpiration *time.Time `gorm:"column:watch_expiration"`
	WatchResourceID *string    `gorm:"column:watch_resource_id"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (SyncState) TableName() string {
	return "sync_states"
}

// Synced reports whether this mailbox has ever completed a pass.
func (s *SyncState) Synced() bool {
	return s.LastHistoryID != "" && s.LastHistoryID != NeverSyncedHistoryID
}

// StaleSince reports whether the last successful pass is older than
// the given threshold, which forces a full rescan instead of trusting
// the change log.
func (s *SyncState) StaleSince(threshold time.Duration, now time.Time) bool {
	if s.LastSyncAt == nil {
		return true
	}
	return now.Sub(*s.LastSyncAt) > threshold
}
