package models

import "time"

// User is one connected mailbox with its OAuth credentials.
type User struct {
	ID                   string     `gorm:"column:id;primaryKey"`
	Email                string     `gorm:"column:email;uniqueIndex"`
	Active               bool       `gorm:"column:active"`
	Onboarded            bool       `gorm:"column:onboarded"`
	AccessToken          *string    `gorm:"column:access_token"`
	RefreshToken         *string    `gorm:"column:refresh_token"`
	AccessTokenExpiresAt *time.Time `gorm:"column:access_token_expires_at"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}
