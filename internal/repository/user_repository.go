package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/inboxagent/sync-worker/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).First(&user, "id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", result.Error)
	}
	return &user, nil
}

// GetByEmail resolves a mailbox address to a user, for the webhook.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", result.Error)
	}
	return &user, nil
}

// ListActiveOnboarded returns every user the scheduler should enqueue
// work for.
func (r *UserRepository) ListActiveOnboarded(ctx context.Context) ([]models.User, error) {
	var users []models.User
	result := r.db.WithContext(ctx).
		Where("active = ? AND onboarded = ?", true, true).
		Order("created_at ASC").
		Find(&users)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list active users: %w", result.Error)
	}
	return users, nil
}

// Deactivate marks a user inactive. The scheduler and webhook stop
// driving the mailbox from the next tick on.
func (r *UserRepository) Deactivate(ctx context.Context, userID string) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"active":     false,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateTokens updates access token, refresh token, and expiry after a
// refresh.
func (r *UserRepository) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"access_token":            accessToken,
			"refresh_token":           refreshToken,
			"access_token_expires_at": expiresAt,
			"updated_at":              time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update tokens: %w", result.Error)
	}
	return nil
}
