package models

import "time"

// Control label keys. The user (or onboarding) maps each key to a
// provider label id; applying the label to a thread triggers the
// corresponding lifecycle job.
const (
	LabelKeyNeedsResponse = "needs_response"
	LabelKeyRework        = "rework"
	LabelKeyDone          = "done"
	LabelKeyOutbox        = "outbox"
	LabelKeyWaiting       = "waiting"
	LabelKeyFYI           = "fyi"
)

// UserLabel maps a control label key to the provider's label id for
// one user's mailbox.
type UserLabel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	UserID          string    `gorm:"column:user_id;index"`
	LabelKey        string    `gorm:"column:label_key"`
	ProviderLabelID string    `gorm:"column:provider_label_id"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (UserLabel) TableName() string {
	return "user_labels"
}
